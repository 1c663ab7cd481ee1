package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tracklab/walletsync/pkg/profile"
)

// fakeSource is a PageSource over pre-built pages. An optional hook runs on
// every LoadMore before the page is appended.
type fakeSource struct {
	pages     [][]profile.Profile
	loaded    []profile.Profile
	loadErr   error
	loadCalls int
	onLoad    func()
}

func (s *fakeSource) Loaded() []profile.Profile { return s.loaded }

func (s *fakeSource) HasMore() bool { return len(s.pages) > 0 }

func (s *fakeSource) LoadMore(ctx context.Context) error {
	s.loadCalls++
	if s.onLoad != nil {
		s.onLoad()
	}
	if s.loadErr != nil {
		return s.loadErr
	}
	if len(s.pages) == 0 {
		return nil
	}
	s.loaded = append(s.loaded, s.pages[0]...)
	s.pages = s.pages[1:]
	return nil
}

func pageOf(addrs ...string) []profile.Profile {
	page := make([]profile.Profile, len(addrs))
	for i, a := range addrs {
		page[i] = profile.Profile{Address: a, DisplayName: "whale " + a, Rank: i + 1}
	}
	return page
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	ix, err := New(&fakeSource{loaded: pageOf("0x1")}, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := ix.Search(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("blank query returned %d results, want 0", len(out.Results))
	}
}

func TestSearch_LoadedOnlyWhenEnough(t *testing.T) {
	src := &fakeSource{
		loaded: pageOf("0x1", "0x2", "0x3"),
		pages:  [][]profile.Profile{pageOf("0x4")},
	}
	ix, _ := New(src, Config{})

	out, err := ix.Search(context.Background(), "whale", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if src.loadCalls != 0 {
		t.Errorf("pulled %d pages despite enough loaded matches", src.loadCalls)
	}
	if len(out.Results) != 2 || out.FoundCount != 3 {
		t.Errorf("got %d results / found %d, want 2 / 3", len(out.Results), out.FoundCount)
	}
}

// Too few loaded matches: the search pulls pages one at a time until
// maxResults is reached.
func TestSearch_PullsUntilSatisfied(t *testing.T) {
	src := &fakeSource{
		loaded: pageOf("0x1"),
		pages: [][]profile.Profile{
			pageOf("0x2"),
			pageOf("0x3"),
			pageOf("0x4"),
		},
	}
	ix, _ := New(src, Config{})

	out, err := ix.Search(context.Background(), "whale", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if src.loadCalls != 2 {
		t.Errorf("pulled %d pages, want 2", src.loadCalls)
	}
	if len(out.Results) != 3 {
		t.Errorf("got %d results, want 3", len(out.Results))
	}
}

// Page pulls stop at MaxExtraPages even when the source has more.
func TestSearch_BoundedPulls(t *testing.T) {
	pages := make([][]profile.Profile, 10)
	for i := range pages {
		pages[i] = pageOf(fmt.Sprintf("0x%d", i))
	}
	src := &fakeSource{pages: pages}
	ix, _ := New(src, Config{MaxExtraPages: 3})

	out, err := ix.Search(context.Background(), "whale", 50)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if src.loadCalls != 3 {
		t.Errorf("pulled %d pages, want MaxExtraPages=3", src.loadCalls)
	}
	if len(out.Results) != 3 {
		t.Errorf("got %d results, want the 3 pulled matches", len(out.Results))
	}
}

// A failed pull returns the matches found so far flagged partial.
func TestSearch_PartialOnPullError(t *testing.T) {
	src := &fakeSource{
		loaded:  pageOf("0x1"),
		pages:   [][]profile.Profile{pageOf("0x2")},
		loadErr: errors.New("listing unavailable"),
	}
	ix, _ := New(src, Config{})

	out, err := ix.Search(context.Background(), "whale", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !out.Partial {
		t.Error("Partial not set after failed pull")
	}
	if len(out.Results) != 1 {
		t.Errorf("got %d results, want the 1 pre-error match", len(out.Results))
	}
}

// A newer query issued while a page pull is in flight invalidates the first:
// the first search returns ErrStale and surfaces nothing.
func TestSearch_StaleGeneration(t *testing.T) {
	src := &fakeSource{
		pages: [][]profile.Profile{pageOf("0x1")},
	}
	ix, _ := New(src, Config{})

	fired := false
	src.onLoad = func() {
		if fired {
			return
		}
		fired = true
		if _, err := ix.Search(context.Background(), "other", 1); err != nil {
			t.Errorf("superseding search failed: %v", err)
		}
	}

	_, err := ix.Search(context.Background(), "whale", 5)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestRemoteSource_Paging(t *testing.T) {
	fetcher := pagedListing{
		entries: pageOf("0x1", "0x2", "0x3", "0x4", "0x5"),
	}

	src := NewRemoteSource(&fetcher, 2, "rank", "asc")
	ctx := context.Background()

	if !src.HasMore() {
		t.Fatal("fresh source reports no more pages")
	}
	for src.HasMore() {
		if err := src.LoadMore(ctx); err != nil {
			t.Fatalf("LoadMore failed: %v", err)
		}
	}
	if got := len(src.Loaded()); got != 5 {
		t.Errorf("loaded %d records, want 5", got)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetched %d pages, want 3", fetcher.calls)
	}
}

// pagedListing serves slices of a fixed entry list as pages.
type pagedListing struct {
	entries []profile.Profile
	calls   int
}

func (f *pagedListing) FetchProfilePage(ctx context.Context, pageIndex, pageSize int, sortBy, sortOrder string) (*profile.Page, error) {
	f.calls++
	start := pageIndex * pageSize
	if start > len(f.entries) {
		start = len(f.entries)
	}
	end := start + pageSize
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return &profile.Page{
		Entries: f.entries[start:end],
		Total:   len(f.entries),
	}, nil
}
