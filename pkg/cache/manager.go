package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles TTL caching over a pluggable KeyValueStore.
//
// Expiry is lazy: a read that finds a stale entry deletes it and reports a
// miss. EvictExpired may be invoked opportunistically for bulk cleanup, but
// no background sweep is required for correctness.
//
// Storage failures degrade to "no cache": reads report misses instead of
// propagating backend errors, so the rest of the engine stays correct even
// with the backing store down.
type Manager struct {
	store  KeyValueStore
	clock  Clock
	ttl    time.Duration
	logger zerolog.Logger
}

// ManagerConfig holds cache manager configuration.
type ManagerConfig struct {
	// TTL is the fixed entry lifetime (default: DefaultTTL).
	TTL time.Duration

	// Clock is the time source (default: SystemClock).
	Clock Clock
}

// NewManager creates a cache manager over the given backing store.
func NewManager(store KeyValueStore, cfg ManagerConfig) *Manager {
	if store == nil {
		panic("backing store cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Manager{
		store:  store,
		clock:  cfg.Clock,
		ttl:    cfg.TTL,
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// TTL returns the configured entry lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// NewEntry builds an entry for the given payload using the manager's clock
// and configured TTL.
func (m *Manager) NewEntry(key string, payload json.RawMessage) *Entry {
	return NewEntry(key, payload, m.clock.Now(), m.ttl)
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist, the entry is expired, or
// the backing store is unavailable.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, error) {
	cacheKey := NormalizeKey(key)

	data, err := m.store.Get(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Store read failed, treating as miss")
		return nil, ErrCacheMiss
	}

	entry, err := m.decode(ctx, cacheKey, data)
	if err != nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

// GetMany retrieves entries for the given keys in one batched store read.
// Only valid hits are included in the result; expired entries are purged.
// A backing store failure yields an empty result (all misses).
func (m *Manager) GetMany(ctx context.Context, keys []string) map[string]*Entry {
	if len(keys) == 0 {
		return map[string]*Entry{}
	}

	cacheKeys := NormalizeKeys(keys)
	raw, err := m.store.GetMany(ctx, cacheKeys)
	if err != nil {
		CacheErrors.WithLabelValues("get_many").Inc()
		m.logger.Warn().Err(err).Int("keys", len(cacheKeys)).Msg("Batch read failed, treating all as misses")
		return map[string]*Entry{}
	}

	now := m.clock.Now()
	hits := make(map[string]*Entry, len(raw))
	var expired []string

	for key, data := range raw {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			expired = append(expired, key)
			continue
		}
		if entry.IsExpired(now) {
			expired = append(expired, key)
			continue
		}
		hits[key] = &entry
	}

	CacheMisses.Add(float64(len(cacheKeys) - len(hits)))
	CacheHits.Add(float64(len(hits)))

	if len(expired) > 0 {
		if err := m.store.DeleteMany(ctx, expired); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			m.logger.Warn().Err(err).Int("keys", len(expired)).Msg("Failed to purge expired entries")
		}
	}

	return hits
}

// Put stores a single entry, overwriting any previous entry for its key.
// Entries that are already expired are not written.
func (m *Manager) Put(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	now := m.clock.Now()
	ttl := entry.TTL(now)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.store.Put(ctx, entry.Key, data, ttl); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("store put: %w", err)
	}
	return nil
}

// PutMany stores entries in one batched store write. Already-expired entries
// are skipped.
func (m *Manager) PutMany(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	now := m.clock.Now()
	items := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.TTL(now) <= 0 {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("put_many").Inc()
			return fmt.Errorf("marshal cache entry %q: %w", entry.Key, err)
		}
		items[entry.Key] = data
	}
	if len(items) == 0 {
		return nil
	}

	if err := m.store.PutMany(ctx, items, m.ttl); err != nil {
		CacheErrors.WithLabelValues("put_many").Inc()
		return fmt.Errorf("store put many: %w", err)
	}
	return nil
}

// IsValid reports whether a live, unexpired entry exists for the key.
func (m *Manager) IsValid(ctx context.Context, key string) bool {
	_, err := m.Get(ctx, key)
	return err == nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key string) error {
	cacheKey := NormalizeKey(key)
	if err := m.store.DeleteMany(ctx, []string{cacheKey}); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("store delete: %w", err)
	}
	return nil
}

// EvictExpired scans the store and removes every expired entry.
// Returns the number of entries evicted.
func (m *Manager) EvictExpired(ctx context.Context) (int, error) {
	keys, err := m.store.Scan(ctx, keyPrefix)
	if err != nil {
		CacheErrors.WithLabelValues("scan").Inc()
		return 0, fmt.Errorf("store scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	raw, err := m.store.GetMany(ctx, keys)
	if err != nil {
		CacheErrors.WithLabelValues("get_many").Inc()
		return 0, fmt.Errorf("store batch read: %w", err)
	}

	now := m.clock.Now()
	var expired []string
	for key, data := range raw {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			expired = append(expired, key)
			continue
		}
		if entry.IsExpired(now) {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := m.store.DeleteMany(ctx, expired); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return 0, fmt.Errorf("store batch delete: %w", err)
	}

	CacheEvictions.Add(float64(len(expired)))
	m.logger.Debug().Int("evicted", len(expired)).Msg("Evicted expired entries")
	return len(expired), nil
}

// decode unmarshals stored bytes and purges the entry if corrupt or expired.
func (m *Manager) decode(ctx context.Context, key string, data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = m.store.DeleteMany(ctx, []string{key})
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired(m.clock.Now()) {
		if err := m.store.DeleteMany(ctx, []string{key}); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
		}
		return nil, ErrCacheMiss
	}

	return &entry, nil
}
