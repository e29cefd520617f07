// Package testutil provides testing utilities for the listing crawler.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mocked listing page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPortal is a configurable mock listing portal for testing. Pages are
// addressed either by a pagenumber query parameter or by a /pg<N> path
// segment, matching the two supported sources.
type MockPortal struct {
	server    *httptest.Server
	mu        sync.RWMutex
	pages     map[int]MockResponse
	handlers  map[int]http.HandlerFunc
	fallback  MockResponse
	inFlight  int
	peak      int
	perPage   map[int]int
	requests  int
	condCount int
	lastHdr   http.Header
}

var pgSegment = regexp.MustCompile(`/pg(\d+)`)

// NewMockPortal creates a new mock portal. Unconfigured pages answer 404.
func NewMockPortal() *MockPortal {
	mock := &MockPortal{
		pages:    make(map[int]MockResponse),
		handlers: make(map[int]http.HandlerFunc),
		perPage:  make(map[int]int),
		fallback: MockResponse{StatusCode: http.StatusNotFound, Body: "not found"},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := PageOf(r)

		mock.mu.Lock()
		mock.requests++
		mock.perPage[page]++
		mock.lastHdr = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.condCount++
		}
		mock.inFlight++
		if mock.inFlight > mock.peak {
			mock.peak = mock.inFlight
		}
		handler, hasHandler := mock.handlers[page]
		resp, ok := mock.pages[page]
		if !ok {
			resp = mock.fallback
		}
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if hasHandler {
			handler(w, r)
			return
		}
		writeResponse(w, r, resp)
	}))

	return mock
}

// PageOf extracts the page number of a request, 1 when absent.
func PageOf(r *http.Request) int {
	if v := r.URL.Query().Get("pagenumber"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if m := pgSegment.FindStringSubmatch(r.URL.Path); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 1
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockPortal) URL() string {
	return m.server.URL
}

// Client returns an HTTP client wired to the mock server.
func (m *MockPortal) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockPortal) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPortal) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = 0
	m.condCount = 0
	m.peak = 0
	m.lastHdr = nil
	m.perPage = make(map[int]int)
}

// SetPage configures the response for one page.
func (m *MockPortal) SetPage(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// SetPageHTML serves body as a 200 HTML page.
func (m *MockPortal) SetPageHTML(page int, body []byte) {
	m.SetPage(page, NewHTMLResponse(body))
}

// SetHandler installs a custom handler for one page.
func (m *MockPortal) SetHandler(page int, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[page] = handler
}

// SetDelay delays every configured page by d.
func (m *MockPortal) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for page, resp := range m.pages {
		resp.Delay = d
		m.pages[page] = resp
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPortal) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests
}

// GetPageRequestCount returns the number of requests for one page.
func (m *MockPortal) GetPageRequestCount(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perPage[page]
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockPortal) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.condCount
}

// PeakInFlight returns the highest number of concurrently served requests.
func (m *MockPortal) PeakInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peak
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockPortal) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHdr
}

// NewHTMLResponse creates a 200 OK HTML response.
func NewHTMLResponse(body []byte) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
	}
}

// NewConditionalHandler creates a handler that responds with 304 for
// conditional requests carrying etag.
func NewConditionalHandler(etag string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}
