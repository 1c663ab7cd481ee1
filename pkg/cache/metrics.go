package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsync_cache_hits_total",
			Help: "Total number of profile cache hits",
		},
	)

	// CacheMisses tracks cache misses (absent, expired, or store unavailable).
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsync_cache_misses_total",
			Help: "Total number of profile cache misses",
		},
	)

	// CacheEvictions tracks entries removed by EvictExpired.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsync_cache_evictions_total",
			Help: "Total number of expired cache entries evicted",
		},
	)

	// CacheErrors tracks cache operation errors by operation.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "get_many", "put", "put_many", "delete", "scan"
	)
)
