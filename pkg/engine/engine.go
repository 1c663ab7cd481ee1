// Package engine wires the cache, batch orchestrator, progressive loader,
// priority poller, and search index into one facade. It is constructed once
// per process and passed by reference to consumers; there is no implicit
// global state.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tracklab/walletsync/pkg/cache"
	"github.com/tracklab/walletsync/pkg/fetch"
	"github.com/tracklab/walletsync/pkg/loader"
	"github.com/tracklab/walletsync/pkg/poller"
	"github.com/tracklab/walletsync/pkg/profile"
	"github.com/tracklab/walletsync/pkg/search"
)

// Config holds engine configuration.
type Config struct {
	// Store is the cache backing store (required).
	Store cache.KeyValueStore

	// Cache configures the TTL cache manager.
	Cache cache.ManagerConfig

	// Fetcher is the single-record remote collaborator (required).
	Fetcher fetch.Fetcher

	// Pages is the paged-listing remote collaborator. Optional; required
	// only for remote-backed search.
	Pages fetch.PageFetcher
}

// Engine is the profile synchronization facade.
type Engine struct {
	cache    *cache.Manager
	orch     *fetch.Orchestrator
	pages    fetch.PageFetcher
	notifier *Notifier
	logger   zerolog.Logger
}

// New creates an engine. Concurrent fetches for the same key issued by
// different consumers (loader, poller, search) are collapsed into one remote
// call via singleflight.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("backing store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	deduped := &dedupedFetcher{inner: cfg.Fetcher}

	return &Engine{
		cache:    cache.NewManager(cfg.Store, cfg.Cache),
		orch:     fetch.NewOrchestrator(deduped),
		pages:    cfg.Pages,
		notifier: NewNotifier(),
		logger:   log.With().Str("component", "engine").Logger(),
	}, nil
}

// Cache exposes the TTL cache manager.
func (e *Engine) Cache() *cache.Manager {
	return e.cache
}

// Orchestrator exposes the batch fetch orchestrator.
func (e *Engine) Orchestrator() *fetch.Orchestrator {
	return e.orch
}

// Events exposes the engine's event notifier.
func (e *Engine) Events() *Notifier {
	return e.notifier
}

// LoadProgressive creates a progressive loader over the given keys and runs
// its initial load.
func (e *Engine) LoadProgressive(ctx context.Context, keys []string, cfg loader.Config) (*loader.Loader, loader.View, error) {
	l, err := loader.New(e.cache, e.orch, cfg)
	if err != nil {
		return nil, loader.View{}, err
	}
	view, err := l.Initialize(ctx, keys)
	e.notifier.Publish(Event{Type: EventLoadCompleted, Keys: len(view.Items), Err: err})
	return l, view, err
}

// PollByPriority creates and starts a priority-tiered poller over the keys.
// The caller owns Stop.
func (e *Engine) PollByPriority(ctx context.Context, keys []string, scoreOf func(string) float64, cfg poller.Config) (*poller.Poller, error) {
	p, err := poller.New(e.orch, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx, keys, scoreOf); err != nil {
		return nil, err
	}
	return p, nil
}

// SearchOverLoader creates a search index fed by an existing progressive
// loader.
func (e *Engine) SearchOverLoader(l *loader.Loader, cfg search.Config) (*search.Index, error) {
	return search.New(&loaderSource{loader: l}, cfg)
}

// SearchOverListing creates a search index fed by the remote paged listing.
func (e *Engine) SearchOverListing(pageSize int, sortBy, sortOrder string, cfg search.Config) (*search.Index, error) {
	if e.pages == nil {
		return nil, fmt.Errorf("page fetcher not configured")
	}
	return search.New(search.NewRemoteSource(e.pages, pageSize, sortBy, sortOrder), cfg)
}

// EvictExpired runs an opportunistic bulk eviction of expired cache entries.
func (e *Engine) EvictExpired(ctx context.Context) (int, error) {
	n, err := e.cache.EvictExpired(ctx)
	if n > 0 || err != nil {
		e.notifier.Publish(Event{Type: EventCacheEvicted, Keys: n, Err: err})
	}
	return n, err
}

// dedupedFetcher collapses concurrent fetches for the same key into one
// remote call shared by all waiters.
type dedupedFetcher struct {
	inner fetch.Fetcher
	group singleflight.Group
}

// FetchProfile implements fetch.Fetcher.
func (d *dedupedFetcher) FetchProfile(ctx context.Context, address string) (*profile.Profile, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.inner.FetchProfile(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	return v.(*profile.Profile), nil
}

// loaderSource adapts a progressive loader to the search page source.
type loaderSource struct {
	loader *loader.Loader
}

// Loaded implements search.PageSource, exposing profiles materialized in the
// loader's current window.
func (s *loaderSource) Loaded() []profile.Profile {
	view := s.loader.View()
	out := make([]profile.Profile, 0, len(view.Items))
	for _, item := range view.Items {
		if item.State == loader.StateCached && item.Profile != nil {
			out = append(out, *item.Profile)
		}
	}
	return out
}

// HasMore implements search.PageSource.
func (s *loaderSource) HasMore() bool {
	return s.loader.View().HasMore
}

// LoadMore implements search.PageSource.
func (s *loaderSource) LoadMore(ctx context.Context) error {
	_, err := s.loader.LoadMore(ctx)
	return err
}
