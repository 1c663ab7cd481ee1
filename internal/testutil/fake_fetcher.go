package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tracklab/walletsync/pkg/profile"
)

// FakeFetcher is an in-process fetch.Fetcher for unit tests. It tracks the
// number of concurrently in-flight fetches so tests can assert concurrency
// bounds, and supports per-key failure and delay injection.
type FakeFetcher struct {
	mu          sync.Mutex
	profiles    map[string]profile.Profile
	failing     map[string]error
	delay       time.Duration
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

// NewFakeFetcher creates a fake fetcher serving the given profiles.
func NewFakeFetcher(profiles ...profile.Profile) *FakeFetcher {
	f := &FakeFetcher{
		profiles: make(map[string]profile.Profile, len(profiles)),
		failing:  make(map[string]error),
		calls:    make(map[string]int),
	}
	for _, p := range profiles {
		f.profiles[p.Address] = p
	}
	return f
}

// Add registers a profile.
func (f *FakeFetcher) Add(p profile.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.Address] = p
}

// Fail makes fetches for the key return the given error.
func (f *FakeFetcher) Fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[key] = err
}

// SetDelay adds fixed latency to every fetch.
func (f *FakeFetcher) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns how many times the key was fetched.
func (f *FakeFetcher) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// TotalCalls returns the total fetch count.
func (f *FakeFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of simultaneously outstanding
// fetches observed.
func (f *FakeFetcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// FetchProfile implements fetch.Fetcher.
func (f *FakeFetcher) FetchProfile(_ context.Context, address string) (*profile.Profile, error) {
	f.mu.Lock()
	f.calls[address]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	failErr := f.failing[address]
	p, ok := f.profiles[address]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, fmt.Errorf("unknown wallet %q", address)
	}
	return &p, nil
}

// FakeClock is a manually advanced cache.Clock for deterministic TTL tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at the given instant.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now implements cache.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
