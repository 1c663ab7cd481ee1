// Package cache provides the TTL key-value cache backing the wallet sync
// engine.
//
// Entries carry their own CreatedAt/ExpiresAt pair with a fixed TTL, and
// expiry is lazy: a read that discovers a stale entry deletes it and reports
// a miss. The cache is a disposable snapshot store, not a system of record;
// writes are last-writer-wins.
//
// # Backing stores
//
// The manager works over any KeyValueStore. Three implementations ship with
// the package:
//
//   - RedisStore for shared deployments (MGET/pipeline batched ops)
//   - LevelStore for embedded persistence across restarts
//   - MemoryStore for tests and dependency-free embedding
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//	manager := cache.NewManager(store, cache.ManagerConfig{})
//
//	entry := cache.NewEntry("0xabc", payload, time.Now(), cache.DefaultTTL)
//	if err := manager.Put(ctx, entry); err != nil {
//		return err
//	}
//
//	got, err := manager.Get(ctx, "0xABC") // keys are normalized
//	if err == cache.ErrCacheMiss {
//		// fetch from the remote source
//	}
//
// # Failure behavior
//
// Backing-store errors degrade to misses rather than propagating: with the
// store down, every read misses and consumers simply refetch. Errors are
// still logged and counted in the walletsync_cache_errors_total metric.
//
// # Metrics
//
//   - walletsync_cache_hits_total
//   - walletsync_cache_misses_total
//   - walletsync_cache_evictions_total
//   - walletsync_cache_errors_total{operation}
package cache
