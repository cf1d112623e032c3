// Package testutil provides a mock Meridian Mastery origin for tests.
package testutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// ErrOffline is returned by the origin transport while the origin is offline.
var ErrOffline = errors.New("mock origin: network unreachable")

// MockResponse defines the behavior for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable static-site origin for testing.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	offline  bool

	// Tracking
	requestCount int
	pathCounts   map[string]int
}

// NewMockOrigin starts a mock origin serving the default Meridian app:
// the shell, its icons and the point data files.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	for path, resp := range DefaultSite() {
		mock.SetResponse(path, resp)
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the origin base URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the origin.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
}

// SetOffline makes Transport fail every request without reaching the server.
func (m *MockOrigin) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Transport returns a round tripper that honours SetOffline.
func (m *MockOrigin) Transport() http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		m.mu.RLock()
		offline := m.offline
		m.mu.RUnlock()
		if offline {
			return nil, ErrOffline
		}
		return m.server.Client().Transport.RoundTrip(req)
	})
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests that reached the server.
func (m *MockOrigin) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests for path that reached the server.
func (m *MockOrigin) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// DefaultSite returns the pages of the default Meridian app.
func DefaultSite() map[string]MockResponse {
	return map[string]MockResponse{
		"/":                    NewOKResponse("text/html; charset=utf-8", ShellHTML),
		"/index.html":          NewOKResponse("text/html; charset=utf-8", ShellHTML),
		"/manifest.json":       NewOKResponse("application/manifest+json", `{"name":"Meridian Mastery","start_url":"/"}`),
		"/icons/icon-192.png":  NewOKResponse("image/png", "\x89PNG-192"),
		"/icons/icon-512.png":  NewOKResponse("image/png", "\x89PNG-512"),
		"/icons/logo.svg":      NewOKResponse("image/svg+xml", `<svg xmlns="http://www.w3.org/2000/svg"/>`),
		"/favicon.ico":         NewOKResponse("image/x-icon", "ICO"),
		"/data/points.json":    NewOKResponse("application/json", PointsJSON),
		"/data/meridians.json": NewOKResponse("application/json", `[{"id":"LU","name":"Lung"}]`),
	}
}

// Default site bodies.
const (
	ShellHTML  = `<!doctype html><html><body><div id="root"></div></body></html>`
	PointsJSON = `[{"id":"LU-1","name":"Zhongfu","meridian":"LU"},{"id":"LI-4","name":"Hegu","meridian":"LI"}]`
)

// NewOKResponse creates a 200 response with a content type.
func NewOKResponse(contentType, body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":  contentType,
			"Cache-Control": "no-cache",
		},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       "not found",
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
	}
}
