package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTicks counts completed poll ticks by tier.
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_poll_ticks_total",
		Help: "Total number of completed poll ticks by tier",
	}, []string{"tier"})

	// PollErrors counts tier polls that reported errors.
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_poll_errors_total",
		Help: "Total number of tier polls with errors",
	}, []string{"tier"})

	// PolledKeys counts keys successfully refreshed by tier.
	PolledKeys = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_poll_keys_total",
		Help: "Total number of keys refreshed by tier",
	}, []string{"tier"})
)
