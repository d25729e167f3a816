// Package testutil provides test doubles for KatScan: a mock KatAPI HTTP
// server and an in-memory page source.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/katscan/pkg/collection"
)

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

type mockCollection struct {
	info  collection.Info
	items []collection.Item
}

// MockKatAPI is a mock KatAPI server. Collections added with AddCollection
// are served from /nfts/tick, /nfts/entries and /nfts/list; any path can be
// overridden with SetHandler or SetResponse.
type MockKatAPI struct {
	server   *httptest.Server
	pageSize int

	mu          sync.RWMutex
	handlers    map[string]http.HandlerFunc
	collections map[string]*mockCollection
	pathCounts  map[string]int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
}

// NewMockKatAPI starts a mock serving entries windows of pageSize items.
func NewMockKatAPI(pageSize int) *MockKatAPI {
	if pageSize <= 0 {
		pageSize = 1000
	}
	mock := &MockKatAPI{
		pageSize:    pageSize,
		handlers:    make(map[string]http.HandlerFunc),
		collections: make(map[string]*mockCollection),
		pathCounts:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
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

// URL returns the base URL to configure a client with.
func (m *MockKatAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockKatAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockKatAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.pathCounts = make(map[string]int)
}

// AddCollection registers a collection. info.Max defaults to len(items).
func (m *MockKatAPI) AddCollection(info collection.Info, items []collection.Item) {
	if info.Max == 0 {
		info.Max = len(items)
	}
	if info.Minted == 0 {
		info.Minted = len(items)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[info.Tick] = &mockCollection{info: info, items: items}
}

// SetHandler sets a custom handler for a specific path.
func (m *MockKatAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// ClearHandler restores the default behaviour for path.
func (m *MockKatAPI) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetResponse configures a fixed response for a path.
func (m *MockKatAPI) SetResponse(path string, resp MockResponse) {
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

// GetRequestCount returns the number of requests made to the server.
func (m *MockKatAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockKatAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// PathCount returns the number of requests made to path.
func (m *MockKatAPI) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

func (m *MockKatAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")

	query := r.URL.Query()
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch r.URL.Path {
	case "/nfts/tick":
		c, ok := m.collections[query.Get("tick")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tick not found"})
			return
		}
		writeResult(w, r, fmt.Sprintf(`"tick-%s"`, c.info.Tick), c.info)

	case "/nfts/entries":
		c, ok := m.collections[query.Get("tick")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tick not found"})
			return
		}
		offset, err := strconv.Atoi(query.Get("offset"))
		if err != nil || offset < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		window := []collection.Item{}
		if offset < len(c.items) {
			end := offset + m.pageSize
			if end > len(c.items) {
				end = len(c.items)
			}
			window = c.items[offset:end]
		}
		writeResult(w, r, fmt.Sprintf(`"entries-%s-%d"`, c.info.Tick, offset), window)

	case "/nfts/list":
		infos := make([]collection.Info, 0, len(m.collections))
		for _, c := range m.collections {
			infos = append(infos, c.info)
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Tick < infos[j].Tick })
		writeResult(w, r, `"list"`, infos)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// writeResult writes {"result": v} with an ETag, answering a matching
// If-None-Match with 304.
func writeResult(w http.ResponseWriter, r *http.Request, etag string, v any) {
	w.Header().Set("Cache-Control", "max-age=60")
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": v})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "95",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "30",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
