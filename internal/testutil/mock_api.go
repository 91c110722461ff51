// Package testutil provides testing utilities for the gourmet search client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockAPIResponse defines a canned response for the mock search endpoint.
type MockAPIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock restaurant-search server.
// By default it serves a catalogue of Total shops paged by start/count.
type MockAPI struct {
	server  *httptest.Server
	mu      sync.RWMutex
	handler func(w http.ResponseWriter, r *http.Request)
	total   int

	// Tracking
	RequestCount int
	LastQuery    url.Values
	LastHeader   http.Header
}

// NewMockAPI creates a mock server that serves total shops.
func NewMockAPI(total int) *MockAPI {
	mock := &MockAPI{total: total}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		mock.LastHeader = r.Header.Clone()
		handler := mock.handler
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		mock.catalogueHandler(w, r)
	}))

	return mock
}

// URL returns the endpoint URL, suitable as a client BaseURL.
func (m *MockAPI) URL() string {
	return m.server.URL + "/hotpepper/gourmet/v1/"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears tracking and restores the catalogue handler.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
	m.LastHeader = nil
	m.handler = nil
}

// SetTotal changes the catalogue size.
func (m *MockAPI) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// SetHandler replaces the catalogue with a custom handler.
func (m *MockAPI) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// SetResponse configures a fixed response for every request.
func (m *MockAPI) SetResponse(resp MockAPIResponse) {
	m.SetHandler(func(w http.ResponseWriter, r *http.Request) {
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
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query of the most recent request.
func (m *MockAPI) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// GetLastHeader returns the headers of the most recent request.
func (m *MockAPI) GetLastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastHeader
}

// catalogueHandler pages through the configured number of shops.
func (m *MockAPI) catalogueHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := strconv.Atoi(q.Get("start"))
	if err != nil || start < 1 {
		start = 1
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count < 1 {
		count = 10
	}

	m.mu.RLock()
	total := m.total
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(PageBody(start, count, total)))
}

// Shop returns a complete shop object with id "J<n>".
func Shop(n int) map[string]any {
	return map[string]any{
		"id":      fmt.Sprintf("J%06d", n),
		"name":    fmt.Sprintf("Shop %d", n),
		"address": fmt.Sprintf("Osaka %d-chome", n),
		"access":  "5 min from Umeda Station",
		"open":    "11:00～23:00",
		"close":   "Monday",
		"budget": map[string]any{
			"code":    "B003",
			"name":    "2001～3000円",
			"average": "2500円",
		},
		"genre": map[string]any{"name": "Izakaya", "code": "G001"},
		"photo": map[string]any{
			"pc": map[string]any{
				"l": fmt.Sprintf("https://img.example.com/%d_l.jpg", n),
				"m": fmt.Sprintf("https://img.example.com/%d_m.jpg", n),
				"s": fmt.Sprintf("https://img.example.com/%d_s.jpg", n),
			},
			"mobile": map[string]any{
				"l": fmt.Sprintf("https://img.example.com/%d_ml.jpg", n),
				"s": fmt.Sprintf("https://img.example.com/%d_ms.jpg", n),
			},
		},
		"urls": map[string]any{"pc": fmt.Sprintf("https://www.example.com/str%06d/", n)},
		"lat":  34.70 + float64(n)*0.0001,
		"lng":  135.50 + float64(n)*0.0001,
	}
}

// ResultsBody wraps shops in the API envelope.
func ResultsBody(shops []map[string]any, available, start int) string {
	if shops == nil {
		shops = []map[string]any{}
	}
	body, _ := json.Marshal(map[string]any{
		"results": map[string]any{
			"api_version":       "1.30",
			"results_available": available,
			"results_returned":  strconv.Itoa(len(shops)),
			"results_start":     start,
			"shop":              shops,
		},
	})
	return string(body)
}

// PageBody renders the page of a total-shop catalogue beginning at start.
func PageBody(start, count, total int) string {
	var shops []map[string]any
	for n := start; n < start+count && n <= total; n++ {
		shops = append(shops, Shop(n))
	}
	return ResultsBody(shops, total, start)
}

// NewPageResponse creates a 200 OK response for one catalogue page.
func NewPageResponse(start, count, total int) MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusOK,
		Body:       PageBody(start, count, total),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"results": {"shop": []}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewAPIErrorResponse creates a 200 response carrying an in-band API error.
func NewAPIErrorResponse(code int, message string) MockAPIResponse {
	body, _ := json.Marshal(map[string]any{
		"results": map[string]any{
			"api_version": "1.30",
			"error":       []map[string]any{{"code": code, "message": message}},
		},
	})
	return MockAPIResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
