// Package testutil provides testing utilities for the storefront client.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior of a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Header     map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable fake of the upstream content API. All
// requests land on one endpoint (GraphQL-style); responses are selected by
// substring match against the request body, falling back to a default
// success payload.
type MockUpstream struct {
	server *httptest.Server

	mu        sync.Mutex
	responses []matchedResponse

	// Tracking
	RequestCount int
	LastHeader   http.Header
	LastBody     []byte
}

type matchedResponse struct {
	match string
	resp  MockResponse
}

// NewMockUpstream creates a running mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastHeader = r.Header.Clone()
		mock.LastBody = body
		resp := mock.selectLocked(string(body))
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", "mock-request-id")
		for name, value := range resp.Header {
			w.Header().Set(name, value)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		io.WriteString(w, resp.Body)
	}))

	return mock
}

// selectLocked returns the first registered response whose match is a
// substring of the request body. Callers must hold mu.
func (m *MockUpstream) selectLocked(body string) MockResponse {
	for _, mr := range m.responses {
		if mr.match == "" || strings.Contains(body, mr.match) {
			return mr.resp
		}
	}
	return MockResponse{StatusCode: http.StatusOK, Body: `{"data":{"mock":true}}`}
}

// Respond registers a response for requests whose body contains match.
// Later registrations take precedence.
func (m *MockUpstream) Respond(match string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]matchedResponse{{match: match, resp: resp}}, m.responses...)
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Requests returns the number of requests received so far.
func (m *MockUpstream) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// Reset clears tracking counters and registered responses.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastHeader = nil
	m.LastBody = nil
	m.responses = nil
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}
