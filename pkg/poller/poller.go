// Package poller partitions wallets into priority tiers and polls each tier
// on its own schedule, merging the latest results across tiers.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tracklab/walletsync/pkg/cache"
	"github.com/tracklab/walletsync/pkg/fetch"
	"github.com/tracklab/walletsync/pkg/profile"
)

// Result is the latest polled record for one wallet.
type Result struct {
	Key       string
	Profile   *profile.Profile
	FetchedAt time.Time
	Tier      string
}

// Snapshot is the merged, de-duplicated state across all tiers.
type Snapshot struct {
	Results   []Result
	IsLoading bool
	Errors    []error
}

// Config holds poller configuration.
type Config struct {
	// Tiers defines score thresholds and per-tier intervals.
	Tiers TierConfig

	// Fetch configures each tier's batch fetches.
	Fetch fetch.Options

	// Clock is the time source for recency stamps (default: SystemClock).
	Clock cache.Clock
}

// DefaultConfig returns safe poller defaults.
func DefaultConfig() Config {
	return Config{
		Tiers: DefaultTierConfig(),
		Fetch: fetch.DefaultOptions(),
		Clock: cache.SystemClock{},
	}
}

// Poller runs one independent, self-rescheduling poll loop per tier. Each
// tier holds its own cancellable timer handle (a cron entry ID) in a map, so
// Stop deterministically cancels every outstanding timer. A tier whose fetch
// fails never disturbs other tiers' schedules or results.
//
// Tier membership is a judgment-free full recompute on SetKeys. A key whose
// tier changes while a poll for its old tier is still in flight is resolved
// as "last poll to complete for that key wins": results are applied by key
// at completion time, and the recency merge surfaces the freshest.
type Poller struct {
	orch   *fetch.Orchestrator
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	tiers    []Tier
	latest   map[string][]Result
	tierErrs map[string]error
	inFlight int
	running  bool
}

// New creates a priority poller over the given orchestrator.
func New(orch *fetch.Orchestrator, cfg Config) (*Poller, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if err := cfg.Tiers.Validate(); err != nil {
		return nil, err
	}
	if cfg.Fetch.Concurrency <= 0 {
		return nil, fmt.Errorf("fetch concurrency must be positive (got %d)", cfg.Fetch.Concurrency)
	}
	if cfg.Clock == nil {
		cfg.Clock = cache.SystemClock{}
	}

	return &Poller{
		orch:     orch,
		cfg:      cfg,
		entries:  make(map[string]cron.EntryID),
		latest:   make(map[string][]Result),
		tierErrs: make(map[string]error),
		logger:   log.With().Str("component", "poller").Logger(),
	}, nil
}

// Start partitions keys by score, arms one timer per non-empty tier, and
// kicks an immediate first poll for each. Calling Start on a running poller
// is an error; use SetKeys to change membership.
func (p *Poller) Start(ctx context.Context, keys []string, scoreOf func(string) float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already started")
	}
	if scoreOf == nil {
		return fmt.Errorf("score function is required")
	}

	p.ctx = ctx
	p.cron = cron.New()
	p.tiers = Partition(keys, scoreOf, p.cfg.Tiers)
	p.arm()
	p.cron.Start()
	p.running = true

	for _, tier := range p.tiers {
		if len(tier.Members) == 0 {
			continue
		}
		go p.pollTier(tier)
	}

	p.logger.Info().Int("keys", len(keys)).Msg("Poller started")
	return nil
}

// Stop cancels every tier's scheduled timer. In-flight fetches are allowed
// to complete; their results still merge by key.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cron.Stop()
	p.entries = make(map[string]cron.EntryID)
	p.running = false
	p.logger.Info().Msg("Poller stopped")
}

// Refetch triggers an immediate out-of-schedule poll of every tier.
func (p *Poller) Refetch() {
	p.mu.Lock()
	tiers := append([]Tier(nil), p.tiers...)
	running := p.running
	p.mu.Unlock()

	if !running {
		return
	}
	for _, tier := range tiers {
		if len(tier.Members) == 0 {
			continue
		}
		go p.pollTier(tier)
	}
}

// SetKeys recomputes the tier partition in full for a changed key set or
// score map, re-arming every tier's timer. Latest results for keys no longer
// in the set are dropped.
func (p *Poller) SetKeys(keys []string, scoreOf func(string) float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tiers = Partition(keys, scoreOf, p.cfg.Tiers)

	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}
	for tierName, results := range p.latest {
		kept := results[:0]
		for _, r := range results {
			if _, ok := keep[r.Key]; ok {
				kept = append(kept, r)
			}
		}
		p.latest[tierName] = kept
	}

	if p.running {
		for name, id := range p.entries {
			p.cron.Remove(id)
			delete(p.entries, name)
		}
		p.arm()
		for _, tier := range p.tiers {
			if len(tier.Members) == 0 {
				continue
			}
			go p.pollTier(tier)
		}
	}
}

// Snapshot merges all tiers' latest results: recency descending, first
// occurrence per key wins, ties broken by tier fetch order.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	var merged []Result
	for _, tier := range p.tiers {
		merged = append(merged, p.latest[tier.Name]...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FetchedAt.After(merged[j].FetchedAt)
	})

	seen := make(map[string]struct{}, len(merged))
	deduped := merged[:0]
	for _, r := range merged {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		deduped = append(deduped, r)
	}

	out := make([]Result, len(deduped))
	copy(out, deduped)

	var errs []error
	for _, tier := range p.tiers {
		if err := p.tierErrs[tier.Name]; err != nil {
			errs = append(errs, err)
		}
	}

	return Snapshot{
		Results:   out,
		IsLoading: p.inFlight > 0,
		Errors:    errs,
	}
}

// arm schedules one cron entry per non-empty tier. Caller holds p.mu.
func (p *Poller) arm() {
	for _, tier := range p.tiers {
		if len(tier.Members) == 0 {
			continue
		}
		tier := tier
		id := p.cron.Schedule(cron.Every(tier.Interval), cron.FuncJob(func() {
			p.pollTier(tier)
		}))
		p.entries[tier.Name] = id
	}
}

// pollTier fetches one tier's members and merges the outcome. Failures are
// recorded per tier and never affect other tiers.
func (p *Poller) pollTier(tier Tier) {
	p.mu.Lock()
	ctx := p.ctx
	p.inFlight++
	p.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := p.orch.FetchAll(ctx, tier.Members, p.cfg.Fetch)
	if result == nil {
		result = &fetch.Result{}
	}

	now := p.cfg.Clock.Now()
	fresh := make([]Result, 0, len(result.Outcomes))
	for _, oc := range result.Outcomes {
		if oc.Err != nil {
			continue
		}
		fresh = append(fresh, Result{
			Key:       oc.Key,
			Profile:   oc.Profile,
			FetchedAt: now,
			Tier:      tier.Name,
		})
	}

	p.mu.Lock()
	p.inFlight--
	if len(fresh) > 0 || err == nil {
		p.latest[tier.Name] = fresh
	}
	switch {
	case err != nil:
		p.tierErrs[tier.Name] = fmt.Errorf("%s: %w", tier.Name, err)
	case len(result.Errors) > 0:
		p.tierErrs[tier.Name] = fmt.Errorf("%s: %w", tier.Name, errors.Join(result.Errors...))
	default:
		p.tierErrs[tier.Name] = nil
	}
	p.mu.Unlock()

	PollTicks.WithLabelValues(tier.Name).Inc()
	PolledKeys.WithLabelValues(tier.Name).Add(float64(len(fresh)))
	if err != nil || len(result.Errors) > 0 {
		PollErrors.WithLabelValues(tier.Name).Inc()
		p.logger.Warn().
			Str("tier", tier.Name).
			Int("failed", len(result.Errors)).
			Msg("Tier poll completed with errors")
		return
	}

	p.logger.Debug().
		Str("tier", tier.Name).
		Int("keys", len(fresh)).
		Msg("Tier poll complete")
}
