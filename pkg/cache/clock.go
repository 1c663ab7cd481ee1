package cache

import "time"

// Clock is the time source used for TTL decisions. Injectable so expiry
// behavior is deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}
