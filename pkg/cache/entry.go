package cache

import (
	"encoding/json"
	"time"
)

// DefaultTTL is how long a cached profile stays valid. Profiles are
// disposable snapshots, so a stale entry simply gets refetched.
const DefaultTTL = 24 * time.Hour

// Entry represents one cached wallet record.
type Entry struct {
	// Key is the normalized cache key (see NormalizeKey).
	Key string `json:"key"`

	// Payload is the serialized record.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the entry becomes stale. Always CreatedAt + TTL.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry creates an entry expiring ttl after now.
func NewEntry(key string, payload json.RawMessage, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Key:       NormalizeKey(key),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the entry is stale at the given instant.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration at the given instant.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
