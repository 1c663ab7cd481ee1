package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound indicates the requested key is absent from the backing store.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is the backing persistence for the TTL cache. Any key-value
// store works: the engine only needs point reads/writes plus batched variants
// so that GetMany/PutMany cost one round trip instead of N.
//
// The ttl passed to writes is advisory. Backends that support native
// expiration (Redis) may use it to garbage-collect abandoned keys; entry-level
// ExpiresAt remains authoritative for staleness decisions.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	PutMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys []string) error

	// Scan returns all stored keys with the given prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore is an in-process KeyValueStore. Useful for tests and for
// embedding the engine without an external backend. Advisory TTLs are
// ignored; expiry is handled entirely at the entry level.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get implements KeyValueStore.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// GetMany implements KeyValueStore. Missing keys are omitted from the result.
func (s *MemoryStore) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := s.data[key]; ok {
			cp := make([]byte, len(value))
			copy(cp, value)
			out[key] = cp
		}
	}
	return out, nil
}

// Put implements KeyValueStore.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

// PutMany implements KeyValueStore.
func (s *MemoryStore) PutMany(_ context.Context, items map[string][]byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range items {
		cp := make([]byte, len(value))
		copy(cp, value)
		s.data[key] = cp
	}
	return nil
}

// DeleteMany implements KeyValueStore.
func (s *MemoryStore) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// Scan implements KeyValueStore.
func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.data {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
