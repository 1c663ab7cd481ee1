// Package search provides relevance-ranked progressive search over wallet
// profiles. It filters the currently loaded dataset and pulls additional
// pages from its source until enough matches are found or pages run out.
package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tracklab/walletsync/pkg/fetch"
	"github.com/tracklab/walletsync/pkg/profile"
)

var (
	// ErrStale indicates the search was superseded by a newer query while a
	// page load was in flight. Callers drop the result silently.
	ErrStale = errors.New("stale search generation")

	searchQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsync_search_queries_total",
		Help: "Total number of search queries executed",
	})

	searchPagesPulled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsync_search_pages_pulled_total",
		Help: "Total number of extra pages pulled to satisfy searches",
	})
)

// PageSource feeds the index incrementally. The progressive loader and the
// remote paged listing both satisfy it.
type PageSource interface {
	// Loaded returns the records loaded so far.
	Loaded() []profile.Profile

	// HasMore reports whether more pages exist.
	HasMore() bool

	// LoadMore loads one further page into the source.
	LoadMore(ctx context.Context) error
}

// Outcome is the result of one search.
type Outcome struct {
	Results     []Match
	FoundCount  int
	IsSearching bool

	// Partial is set when a page pull failed; the matches found so far are
	// still returned.
	Partial bool
}

// Config holds search configuration.
type Config struct {
	// MaxExtraPages bounds how many additional pages one query may pull
	// from the source (default: 5).
	MaxExtraPages int
}

// Index runs relevance-ranked searches over a progressively loaded dataset.
// Each query starts a new generation; a page load belonging to a stale
// generation is discarded on arrival rather than cancelled.
type Index struct {
	source     PageSource
	cfg        Config
	logger     zerolog.Logger
	generation atomic.Uint64
}

// New creates a search index over the given page source.
func New(source PageSource, cfg Config) (*Index, error) {
	if source == nil {
		return nil, errors.New("page source is required")
	}
	if cfg.MaxExtraPages <= 0 {
		cfg.MaxExtraPages = 5
	}
	return &Index{
		source: source,
		cfg:    cfg,
		logger: log.With().Str("component", "search").Logger(),
	}, nil
}

// Search filters and ranks the dataset for the query. If fewer than
// maxResults matches are loaded and more pages exist, it pulls one page at a
// time, re-filters, and repeats up to MaxExtraPages. Returns ErrStale when a
// newer query supersedes this one mid-flight.
func (ix *Index) Search(ctx context.Context, query string, maxResults int) (*Outcome, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return &Outcome{}, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	gen := ix.generation.Add(1)
	searchQueries.Inc()

	partial := false
	matches := rank(ix.source.Loaded(), q)

	for pulls := 0; len(matches) < maxResults && ix.source.HasMore() && pulls < ix.cfg.MaxExtraPages; pulls++ {
		err := ix.source.LoadMore(ctx)
		if gen != ix.generation.Load() {
			ix.logger.Debug().Str("query", q).Uint64("generation", gen).Msg("Dropping stale search")
			return nil, ErrStale
		}
		searchPagesPulled.Inc()
		if err != nil {
			ix.logger.Warn().Err(err).Str("query", q).Msg("Page pull failed, returning partial matches")
			partial = true
			break
		}
		matches = rank(ix.source.Loaded(), q)
	}

	found := len(matches)
	if found > maxResults {
		matches = matches[:maxResults]
	}

	ix.logger.Debug().
		Str("query", q).
		Int("found", found).
		Bool("partial", partial).
		Msg("Search complete")

	return &Outcome{
		Results:    matches,
		FoundCount: found,
		Partial:    partial,
	}, nil
}

// RemoteSource is a PageSource over the remote paged profile listing. Pages
// accumulate in memory in listing order.
type RemoteSource struct {
	fetcher   fetch.PageFetcher
	pageSize  int
	sortBy    string
	sortOrder string

	records  []profile.Profile
	nextPage int
	total    int
	fetched  bool
}

// NewRemoteSource creates a page source over a remote listing.
func NewRemoteSource(fetcher fetch.PageFetcher, pageSize int, sortBy, sortOrder string) *RemoteSource {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &RemoteSource{
		fetcher:   fetcher,
		pageSize:  pageSize,
		sortBy:    sortBy,
		sortOrder: sortOrder,
	}
}

// Loaded implements PageSource.
func (s *RemoteSource) Loaded() []profile.Profile {
	return s.records
}

// HasMore implements PageSource.
func (s *RemoteSource) HasMore() bool {
	return !s.fetched || len(s.records) < s.total
}

// LoadMore implements PageSource.
func (s *RemoteSource) LoadMore(ctx context.Context) error {
	page, err := s.fetcher.FetchProfilePage(ctx, s.nextPage, s.pageSize, s.sortBy, s.sortOrder)
	if err != nil {
		return err
	}
	s.fetched = true
	s.total = page.Total
	s.nextPage++
	s.records = append(s.records, page.Entries...)
	return nil
}
