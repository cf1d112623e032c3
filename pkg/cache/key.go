package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Key represents a unique identifier for a cached response.
type Key struct {
	// Method is the HTTP method (always GET for stored entries)
	Method string

	// URL is the canonical absolute URL of the request
	URL string
}

// NewKey builds the canonical key for a request.
func NewKey(req *http.Request) Key {
	return KeyFor(req.Method, req.URL)
}

// KeyFor builds the canonical key for a method and URL.
func KeyFor(method string, u *url.URL) Key {
	if method == "" {
		method = http.MethodGet
	}
	return Key{
		Method: strings.ToUpper(method),
		URL:    CanonicalURL(u),
	}
}

// String generates a deterministic cache key string.
// Format: METHOD URL
//
// Example:
//
//	GET https://meridian.example/data/points.json?lang=en
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok || method == "" || rawURL == "" {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}
	return Key{Method: method, URL: rawURL}, nil
}

// CanonicalURL normalizes a URL so equivalent requests share a key.
// Scheme and host are lower-cased, default ports dropped, an empty path
// becomes "/", query parameters are sorted by name and the fragment is
// removed. The order of repeated values is significant and kept.
func CanonicalURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil

	host, port := c.Hostname(), c.Port()
	if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		c.Host = host
	}

	if c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}

	// Parameter names are sorted; repeated values keep their order.
	if c.RawQuery != "" {
		query := c.Query()
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			for _, v := range query[key] {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		c.RawQuery = strings.Join(parts, "&")
	}
	c.ForceQuery = false

	return c.String()
}
