// Package testutil provides testing utilities for the wallet sync engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tracklab/walletsync/pkg/profile"
)

// MockAPI is a configurable fake of the dashboard backend for testing. It
// serves GET /v1/profiles/{address} and GET /v1/profiles with per-address
// failure and delay injection, and tracks request counts.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	profiles  map[string]profile.Profile
	listing   []profile.Profile
	failures  map[string]int
	delays    map[string]time.Duration
	listErr   int
	requests  map[string]int
	listCalls int
}

// NewMockAPI creates a mock backend with no profiles.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		profiles: make(map[string]profile.Profile),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
		requests: make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server's base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockAPI) Close() {
	m.server.Close()
}

// AddProfile registers a profile served by address.
func (m *MockAPI) AddProfile(p profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[strings.ToLower(p.Address)] = p
}

// SetListing sets the paged listing content in order.
func (m *MockAPI) SetListing(profiles []profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listing = append([]profile.Profile(nil), profiles...)
}

// FailAddress makes the next n requests for an address return the status.
func (m *MockAPI) FailAddress(address string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[strings.ToLower(address)] = status
}

// ClearFailure removes failure injection for an address.
func (m *MockAPI) ClearFailure(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, strings.ToLower(address))
}

// DelayAddress adds artificial latency to requests for an address.
func (m *MockAPI) DelayAddress(address string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[strings.ToLower(address)] = d
}

// RequestCount returns how many times an address was fetched.
func (m *MockAPI) RequestCount(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[strings.ToLower(address)]
}

// TotalRequests returns the total number of single-profile fetches served.
func (m *MockAPI) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// ListCalls returns how many listing pages were served.
func (m *MockAPI) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/profiles")

	if path == "" || path == "/" {
		m.handleListing(w, r)
		return
	}

	address := strings.ToLower(strings.TrimPrefix(path, "/"))

	m.mu.Lock()
	m.requests[address]++
	delay := m.delays[address]
	status := m.failures[address]
	p, ok := m.profiles[address]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		http.Error(w, fmt.Sprintf("injected failure %d", status), status)
		return
	}
	if !ok {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func (m *MockAPI) handleListing(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.listCalls++
	listing := m.listing
	m.mu.Unlock()

	pageIndex, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 {
		pageSize = 50
	}

	lo := pageIndex * pageSize
	hi := lo + pageSize
	if lo > len(listing) {
		lo = len(listing)
	}
	if hi > len(listing) {
		hi = len(listing)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(profile.Page{
		Entries: listing[lo:hi],
		Total:   len(listing),
	})
}
