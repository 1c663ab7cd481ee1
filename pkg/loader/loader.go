// Package loader provides progressive "initial page + load more" loading of
// wallet profiles, merging cache hits with batch-fetched misses.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tracklab/walletsync/pkg/cache"
	"github.com/tracklab/walletsync/pkg/fetch"
	"github.com/tracklab/walletsync/pkg/profile"
)

// ItemState describes how an item should render.
type ItemState string

const (
	// StateCached means the item carries a usable profile.
	StateCached ItemState = "cached"

	// StateLoading means the profile is not yet available.
	StateLoading ItemState = "loading"

	// StateError means the fetch failed and no cached profile exists.
	StateError ItemState = "error"
)

// Source tags where an item's profile came from, so consumers branch on an
// explicit tag instead of probing field presence.
type Source string

const (
	// SourceCached marks profiles served from the TTL cache.
	SourceCached Source = "cached"

	// SourceFetched marks profiles freshly fetched from the remote source.
	SourceFetched Source = "fetched"
)

// Item is one key's materialized state in the progressive view.
type Item struct {
	Key     string
	Profile *profile.Profile
	State   ItemState
	Source  Source
	Err     error
}

// View is a snapshot of the loaded window.
type View struct {
	Items     []Item
	IsLoading bool
	HasMore   bool
}

// Config holds loader configuration.
type Config struct {
	// InitialPageSize is the window exposed by Initialize (default: 10).
	InitialPageSize int

	// LoadMorePageSize is the increment per LoadMore call (default: 5).
	LoadMorePageSize int

	// Fetch configures the underlying batch orchestrator.
	Fetch fetch.Options
}

// DefaultConfig returns safe loader defaults.
func DefaultConfig() Config {
	return Config{
		InitialPageSize:  10,
		LoadMorePageSize: 5,
		Fetch:            fetch.DefaultOptions(),
	}
}

// Loader exposes an incremental view over an ordered key list. Cache hits
// materialize immediately; misses are fetched through the orchestrator in
// the current window. A failed fetch for one key never blocks merging of
// its siblings' results.
//
// All methods are safe for concurrent use. Async merges are generation
// checked: Refetch and SetKeys start a new generation, and results from a
// superseded generation are discarded on arrival.
type Loader struct {
	cache  *cache.Manager
	orch   *fetch.Orchestrator
	cfg    Config
	logger zerolog.Logger

	mu          sync.Mutex
	keys        []string
	items       map[string]*Item
	loadedCount int
	inFlight    int
	generation  uint64
}

// New creates a progressive loader.
func New(cacheMgr *cache.Manager, orch *fetch.Orchestrator, cfg Config) (*Loader, error) {
	if cacheMgr == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.InitialPageSize <= 0 {
		cfg.InitialPageSize = 10
	}
	if cfg.LoadMorePageSize <= 0 {
		cfg.LoadMorePageSize = 5
	}
	if cfg.Fetch.Concurrency <= 0 {
		return nil, fmt.Errorf("fetch concurrency must be positive (got %d)", cfg.Fetch.Concurrency)
	}

	return &Loader{
		cache:  cacheMgr,
		orch:   orch,
		cfg:    cfg,
		items:  make(map[string]*Item),
		logger: log.With().Str("component", "loader").Logger(),
	}, nil
}

// Initialize sets the ordered key list, materializes cache hits, and fetches
// the missing subset of the initial window. Returns the resulting view.
func (l *Loader) Initialize(ctx context.Context, keys []string) (View, error) {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.keys = dedupe(keys)
	l.items = make(map[string]*Item, len(l.keys))
	l.loadedCount = 0
	allKeys := append([]string(nil), l.keys...)
	l.mu.Unlock()

	// Read the whole key set in one batched cache op so windows beyond the
	// first materialize instantly when exposed later.
	hits := l.cache.GetMany(ctx, allKeys)

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return l.View(), nil
	}
	for _, key := range l.keys {
		if entry, ok := hits[cache.NormalizeKey(key)]; ok {
			if p := decodeProfile(entry.Payload); p != nil {
				l.items[key] = &Item{Key: key, Profile: p, State: StateCached, Source: SourceCached}
				continue
			}
		}
		l.items[key] = &Item{Key: key, State: StateLoading}
	}
	l.loadedCount = minInt(l.cfg.InitialPageSize, len(l.keys))
	window := append([]string(nil), l.keys[:l.loadedCount]...)
	l.mu.Unlock()

	if err := l.fetchMissing(ctx, gen, window); err != nil {
		return l.View(), err
	}
	return l.View(), nil
}

// LoadMore advances the window by min(LoadMorePageSize, remaining) and
// fetches the newly exposed misses. It is a no-op when HasMore is false.
func (l *Loader) LoadMore(ctx context.Context) (View, error) {
	l.mu.Lock()
	if l.loadedCount >= len(l.keys) {
		l.mu.Unlock()
		return l.View(), nil
	}
	gen := l.generation
	lo := l.loadedCount
	l.loadedCount = minInt(l.loadedCount+l.cfg.LoadMorePageSize, len(l.keys))
	window := append([]string(nil), l.keys[lo:l.loadedCount]...)
	l.mu.Unlock()

	if err := l.fetchMissing(ctx, gen, window); err != nil {
		return l.View(), err
	}
	return l.View(), nil
}

// Refetch clears progress and re-runs the initialize procedure over the
// current key list.
func (l *Loader) Refetch(ctx context.Context) (View, error) {
	l.mu.Lock()
	keys := append([]string(nil), l.keys...)
	l.mu.Unlock()
	return l.Initialize(ctx, keys)
}

// SetKeys reconciles the loader against a changed key list: items whose key
// is still present are retained as-is (no flicker), removed keys are
// dropped, and new keys start as loading placeholders. Progress resets and
// the initial window is loaded against the new ordering.
func (l *Loader) SetKeys(ctx context.Context, keys []string) (View, error) {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	next := dedupe(keys)

	retained := make(map[string]*Item, len(next))
	var added []string
	for _, key := range next {
		if item, ok := l.items[key]; ok {
			retained[key] = item
		} else {
			retained[key] = &Item{Key: key, State: StateLoading}
			added = append(added, key)
		}
	}
	l.keys = next
	l.items = retained
	l.loadedCount = minInt(l.cfg.InitialPageSize, len(l.keys))
	window := append([]string(nil), l.keys[:l.loadedCount]...)
	l.mu.Unlock()

	l.logger.Debug().
		Int("keys", len(next)).
		Int("added", len(added)).
		Msg("Reconciled key set")

	// New keys may still have valid cache entries.
	if len(added) > 0 {
		hits := l.cache.GetMany(ctx, added)
		l.mu.Lock()
		if gen == l.generation {
			for _, key := range added {
				if entry, ok := hits[cache.NormalizeKey(key)]; ok {
					if p := decodeProfile(entry.Payload); p != nil {
						l.items[key] = &Item{Key: key, Profile: p, State: StateCached, Source: SourceCached}
					}
				}
			}
		}
		l.mu.Unlock()
	}

	if err := l.fetchMissing(ctx, gen, window); err != nil {
		return l.View(), err
	}
	return l.View(), nil
}

// View returns a snapshot of the currently loaded window.
func (l *Loader) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view()
}

func (l *Loader) view() View {
	items := make([]Item, 0, l.loadedCount)
	for _, key := range l.keys[:l.loadedCount] {
		if item, ok := l.items[key]; ok {
			items = append(items, *item)
		}
	}
	return View{
		Items:     items,
		IsLoading: l.inFlight > 0,
		HasMore:   l.loadedCount < len(l.keys),
	}
}

// fetchMissing fetches the window keys that still lack a profile, writes
// successes to the cache, and merges outcomes into the item map. Results
// from a superseded generation are discarded.
func (l *Loader) fetchMissing(ctx context.Context, gen uint64, window []string) error {
	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return nil
	}
	var missing []string
	for _, key := range window {
		if item, ok := l.items[key]; ok && item.State == StateLoading {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		l.mu.Unlock()
		return nil
	}
	l.inFlight++
	l.mu.Unlock()

	result, err := l.orch.FetchAll(ctx, missing, l.cfg.Fetch)

	l.mu.Lock()
	l.inFlight--
	if gen != l.generation {
		l.mu.Unlock()
		l.logger.Debug().Uint64("generation", gen).Msg("Dropping stale fetch result")
		return nil
	}

	var entries []*cache.Entry
	for _, oc := range result.Outcomes {
		item, ok := l.items[oc.Key]
		if !ok {
			continue
		}
		if oc.Err != nil {
			item.State = StateError
			item.Err = oc.Err
			continue
		}
		item.Profile = oc.Profile
		item.State = StateCached
		item.Source = SourceFetched
		item.Err = nil

		if payload, merr := json.Marshal(oc.Profile); merr == nil {
			entries = append(entries, l.cache.NewEntry(oc.Key, payload))
		}
	}
	l.mu.Unlock()

	// The orchestrator never writes the cache; the loader owns that.
	if len(entries) > 0 {
		if perr := l.cache.PutMany(ctx, entries); perr != nil {
			l.logger.Warn().Err(perr).Int("entries", len(entries)).Msg("Failed to cache fetched profiles")
		}
	}

	return err
}

func decodeProfile(payload json.RawMessage) *profile.Profile {
	var p profile.Profile
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}
	return &p
}

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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
