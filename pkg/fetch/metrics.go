package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchWindows counts orchestrator windows executed.
	FetchWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsync_fetch_windows_total",
		Help: "Total number of concurrency windows executed",
	})

	// FetchOutcomes counts per-key outcomes by status.
	FetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_fetch_outcomes_total",
		Help: "Total per-key fetch outcomes",
	}, []string{"status"}) // "success", "error"

	// FetchBatchDuration observes full FetchAll durations.
	FetchBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletsync_fetch_batch_duration_seconds",
		Help:    "Duration of complete batch fetches",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)
