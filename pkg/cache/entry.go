// Package cache provides offline response entries, canonical request keys
// and the entry codec shared by every store backend.
package cache

import (
	"net/http"
	"time"

	digest "github.com/opencontainers/go-digest"
)

// Entry represents a cached response.
type Entry struct {
	// Method and URL identify the request the response belongs to
	Method string `json:"method"`
	URL    string `json:"url"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Body is the response body
	Body []byte `json:"body"`

	// Digest is the sha256 digest of Body, verified on decode
	Digest digest.Digest `json:"digest"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Key returns the cache key the entry is stored under.
func (e *Entry) Key() Key {
	return Key{Method: e.Method, URL: e.URL}
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.CachedAt)
	if age < 0 {
		return 0
	}
	return age
}

// OlderThan reports whether the entry was cached more than maxAge before now.
func (e *Entry) OlderThan(maxAge time.Duration, now time.Time) bool {
	return e.Age(now) > maxAge
}

// Verify checks the body against the recorded digest.
// Entries without a digest are accepted as is.
func (e *Entry) Verify() error {
	if e.Digest == "" {
		return nil
	}
	if err := e.Digest.Validate(); err != nil {
		return err
	}
	if digest.FromBytes(e.Body) != e.Digest {
		return ErrInvalidEntry
	}
	return nil
}
