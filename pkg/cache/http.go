package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	digest "github.com/opencontainers/go-digest"
)

// Headers added to responses served from a namespace.
const (
	HeaderCacheStatus = "X-Offline-Cache"
	HeaderCachedAt    = "X-Offline-Cached-At"
)

// IsOK reports whether a response counts as a successful fetch (2xx).
func IsOK(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ResponseToEntry converts an HTTP response to an Entry.
// The response body is restored after reading so the caller can still use it.
func ResponseToEntry(key Key, resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Method:     key.Method,
		URL:        key.URL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Digest:     digest.FromBytes(body),
		CachedAt:   time.Now(),
	}, nil
}

// EntryToResponse converts a cache entry back to an HTTP response for req.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(HeaderCacheStatus, "hit")
	header.Set(HeaderCachedAt, entry.CachedAt.UTC().Format(http.TimeFormat))
	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}
