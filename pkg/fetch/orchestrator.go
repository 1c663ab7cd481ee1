package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures one FetchAll call.
type Options struct {
	// Concurrency is the window size: the maximum number of fetches
	// in flight at once. Must be positive.
	Concurrency int

	// InterBatchDelay is the pause between consecutive windows, a
	// rate-limiting courtesy to the remote source.
	InterBatchDelay time.Duration
}

// DefaultOptions returns safe defaults for the dashboard backend.
func DefaultOptions() Options {
	return Options{
		Concurrency:     5,
		InterBatchDelay: 100 * time.Millisecond,
	}
}

// Result collects the settled outcomes of one FetchAll call. Per-key
// failures are attached here rather than aborting the batch.
type Result struct {
	Outcomes []Outcome
	Errors   []error
}

// Successes returns only the outcomes that carry a profile.
func (r *Result) Successes() []Outcome {
	out := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Orchestrator fetches sets of keys in fixed-size concurrency windows.
//
// Windows execute strictly sequentially: window n+1 starts only after every
// fetch in window n has settled, which bounds in-flight fetches to the
// configured concurrency. Within a window no ordering is guaranteed, and a
// slow or failing fetch never blocks or cancels its siblings.
//
// The orchestrator never writes to the cache; callers own cache updates so
// the orchestrator stays reusable for non-cached consumers like the poller.
type Orchestrator struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

// NewOrchestrator creates a batch fetch orchestrator over the given fetcher.
func NewOrchestrator(fetcher Fetcher) *Orchestrator {
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	return &Orchestrator{
		fetcher: fetcher,
		logger:  log.With().Str("component", "fetch").Logger(),
	}
}

// FetchAll fetches every key, collecting per-key outcomes regardless of
// success or failure. Duplicate keys are fetched once per call. An empty key
// list returns immediately.
//
// Context cancellation stops before the next window; outcomes gathered so
// far are returned along with the context error.
func (o *Orchestrator) FetchAll(ctx context.Context, keys []string, opts Options) (*Result, error) {
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive (got %d)", opts.Concurrency)
	}

	unique := dedupe(keys)
	result := &Result{}
	if len(unique) == 0 {
		return result, nil
	}

	start := time.Now()
	windows := (len(unique) + opts.Concurrency - 1) / opts.Concurrency

	o.logger.Debug().
		Int("keys", len(unique)).
		Int("windows", windows).
		Int("concurrency", opts.Concurrency).
		Msg("Starting windowed batch fetch")

	for w := 0; w < windows; w++ {
		lo := w * opts.Concurrency
		hi := lo + opts.Concurrency
		if hi > len(unique) {
			hi = len(unique)
		}

		outcomes := o.fetchWindow(ctx, unique[lo:hi])
		for _, oc := range outcomes {
			result.Outcomes = append(result.Outcomes, oc)
			if oc.Err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("fetch %s: %w", oc.Key, oc.Err))
				FetchOutcomes.WithLabelValues("error").Inc()
			} else {
				FetchOutcomes.WithLabelValues("success").Inc()
			}
		}
		FetchWindows.Inc()

		if w+1 < windows && opts.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.InterBatchDelay):
			}
		} else if w+1 < windows {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}
		}
	}

	FetchBatchDuration.Observe(time.Since(start).Seconds())

	o.logger.Debug().
		Int("keys", len(unique)).
		Int("failed", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return result, nil
}

// fetchWindow issues all fetches for one window concurrently and waits for
// every one to settle.
func (o *Orchestrator) fetchWindow(ctx context.Context, keys []string) []Outcome {
	outcomes := make([]Outcome, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			p, err := o.fetcher.FetchProfile(ctx, key)
			if err != nil {
				o.logger.Warn().Err(err).Str("key", key).Msg("Fetch failed")
				outcomes[i] = Outcome{Key: key, Err: err}
				return
			}
			outcomes[i] = Outcome{Key: key, Profile: p}
		}(i, key)
	}
	wg.Wait()

	return outcomes
}

// dedupe removes duplicate keys, keeping first-occurrence order.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
