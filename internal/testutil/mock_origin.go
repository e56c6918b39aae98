// Package testutil provides testing utilities for offline-shell.
package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Request is a request observed by MockOrigin.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// MockOrigin is a configurable web application origin for testing.
// Unconfigured paths answer 404. While down, every connection is dropped
// without a response so clients observe a network failure.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	down     bool

	requests []Request
	counts   map[string]int
}

// NewMockOrigin creates a new mock origin server.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		mock.mu.Lock()
		down := mock.down
		if !down {
			mock.requests = append(mock.requests, Request{
				Method: r.Method,
				Path:   r.URL.Path,
				Header: r.Header.Clone(),
				Body:   body,
			})
			mock.counts[r.URL.Path]++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if down {
			dropConnection(w)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// NewShellOrigin returns a MockOrigin serving the default application shell.
func NewShellOrigin() *MockOrigin {
	m := NewMockOrigin()
	html := NewHTMLResponse("<html><body>SafeAlert</body></html>")
	m.SetResponse("/", html)
	m.SetResponse("/index.html", html)
	m.SetResponse("/manifest.json", MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"name":"SafeAlert NG"}`,
		Headers:    map[string]string{"Content-Type": "application/manifest+json"},
	})
	for _, p := range []string{"/web-app-manifest-192x192.png", "/web-app-manifest-512x512.png", "/apple-touch-icon.png"} {
		m.SetResponse(p, MockResponse{
			StatusCode: http.StatusOK,
			Body:       "\x89PNG",
			Headers:    map[string]string{"Content-Type": "image/png"},
		})
	}
	return m
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("mock origin: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Client returns an HTTP client wired to the mock server.
func (m *MockOrigin) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// SetDown toggles simulated network failure.
func (m *MockOrigin) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Reset clears all tracking state.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.counts = make(map[string]int)
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

// Count returns the number of requests received for path.
func (m *MockOrigin) Count(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// Requests returns a copy of all requests received while up.
func (m *MockOrigin) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the requests received for path, in arrival order.
func (m *MockOrigin) RequestsTo(path string) []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Request
	for _, r := range m.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// NewHTMLResponse creates a 200 OK HTML document response.
func NewHTMLResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

// NewJSONResponse creates a JSON response with the given status.
func NewJSONResponse(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewJSONResponse(http.StatusInternalServerError, `{"error": "Internal server error"}`)
}
