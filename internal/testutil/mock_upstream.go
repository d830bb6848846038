// Package testutil provides testing utilities for the proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock upstream API server for testing.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount      int
	pathCounts        map[string]int
	lastRequestHeader http.Header
	lastRequestURI    string
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		mock.lastRequestURI = r.URL.RequestURI()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Host returns the host:port the mock server listens on.
func (m *MockUpstream) Host() string {
	return m.server.Listener.Addr().String()
}

// Client returns an HTTP client that talks to the mock server.
func (m *MockUpstream) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
	m.lastRequestURI = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
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

// RequestCount returns the number of requests made to the server.
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made for path.
func (m *MockUpstream) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// LastRequestURI returns the path and query of the most recent request.
func (m *MockUpstream) LastRequestURI() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestURI
}

// defaultHandler answers unknown paths with 404, like the Roblox APIs do.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"errors":[{"code":0,"message":"NotFound"}]}`))
}

// NewOKResponse creates a standard 200 OK JSON response.
func NewOKResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type":  "application/json; charset=utf-8",
			"ETag":          `"test-etag-123"`,
			"Last-Modified": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat),
			"Set-Cookie":    "RBXEventTrackerV2=1",
			"X-Request-Id":  "upstream-request",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"errors":[{"code":0,"message":"NotFound"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"code":0,"message":"Too many requests"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"code":0,"message":"InternalServerError"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRedirectHandler creates a handler that redirects to location.
func NewRedirectHandler(location string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, location, http.StatusFound)
	}
}
