package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tracklab/walletsync/internal/testutil"
	"github.com/tracklab/walletsync/pkg/cache"
	"github.com/tracklab/walletsync/pkg/fetch"
	"github.com/tracklab/walletsync/pkg/profile"
)

func keysN(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("0x%02d", i)
	}
	return keys
}

func setupLoader(t *testing.T, fetcher *testutil.FakeFetcher, cfg Config) (*Loader, *cache.Manager) {
	t.Helper()

	manager := cache.NewManager(cache.NewMemoryStore(), cache.ManagerConfig{})
	l, err := New(manager, fetch.NewOrchestrator(fetcher), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, manager
}

func TestNew_Validation(t *testing.T) {
	manager := cache.NewManager(cache.NewMemoryStore(), cache.ManagerConfig{})
	orch := fetch.NewOrchestrator(testutil.NewFakeFetcher())

	if _, err := New(nil, orch, DefaultConfig()); err == nil {
		t.Error("expected error for nil cache manager")
	}
	if _, err := New(manager, nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil orchestrator")
	}
	if _, err := New(manager, orch, Config{Fetch: fetch.Options{Concurrency: 0}}); err == nil {
		t.Error("expected error for non-positive concurrency")
	}
}

// 23 keys with initial page 10 and load-more page 5 expose windows of
// 10, 15, 20, 23 items; the final view reports hasMore=false and further
// LoadMore calls are no-ops.
func TestProgressiveWindowSequence(t *testing.T) {
	keys := keysN(23)
	fetcher := testutil.NewFakeFetcher()
	for i, k := range keys {
		fetcher.Add(profile.Profile{Address: k, Rank: i + 1})
	}
	cfg := DefaultConfig()
	cfg.InitialPageSize = 10
	cfg.LoadMorePageSize = 5
	l, _ := setupLoader(t, fetcher, cfg)
	ctx := context.Background()

	view, err := l.Initialize(ctx, keys)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if len(view.Items) != 10 || !view.HasMore {
		t.Fatalf("initial view: %d items hasMore=%v, want 10/true", len(view.Items), view.HasMore)
	}

	wantCounts := []int{15, 20, 23}
	for _, want := range wantCounts {
		view, err = l.LoadMore(ctx)
		if err != nil {
			t.Fatalf("LoadMore failed: %v", err)
		}
		if len(view.Items) != want {
			t.Fatalf("view has %d items, want %d", len(view.Items), want)
		}
	}
	if view.HasMore {
		t.Error("hasMore true after all keys loaded")
	}

	// No-op once exhausted.
	calls := fetcher.TotalCalls()
	view, err = l.LoadMore(ctx)
	if err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}
	if len(view.Items) != 23 || fetcher.TotalCalls() != calls {
		t.Error("LoadMore was not a no-op with hasMore=false")
	}
}

// Keys with valid cache entries materialize without any remote fetch.
func TestInitialize_CacheHitsSkipFetch(t *testing.T) {
	keys := []string{"0xa", "0xb"}
	fetcher := testutil.NewFakeFetcher(profile.Profile{Address: "0xb", Rank: 2})
	l, manager := setupLoader(t, fetcher, DefaultConfig())
	ctx := context.Background()

	payload := []byte(`{"address":"0xa","rank":1}`)
	if err := manager.Put(ctx, manager.NewEntry("0xa", payload)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	view, err := l.Initialize(ctx, keys)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if fetcher.Calls("0xa") != 0 {
		t.Errorf("cached key fetched %d times, want 0", fetcher.Calls("0xa"))
	}
	if fetcher.Calls("0xb") != 1 {
		t.Errorf("missing key fetched %d times, want 1", fetcher.Calls("0xb"))
	}

	byKey := itemsByKey(view)
	if byKey["0xa"].Source != SourceCached {
		t.Errorf("0xa source = %s, want cached", byKey["0xa"].Source)
	}
	if byKey["0xb"].Source != SourceFetched {
		t.Errorf("0xb source = %s, want fetched", byKey["0xb"].Source)
	}
}

// Fetched profiles are written back to the cache by the loader.
func TestInitialize_WritesFetchedToCache(t *testing.T) {
	fetcher := testutil.NewFakeFetcher(profile.Profile{Address: "0xa", Rank: 1})
	l, manager := setupLoader(t, fetcher, DefaultConfig())
	ctx := context.Background()

	if _, err := l.Initialize(ctx, []string{"0xa"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !manager.IsValid(ctx, "0xa") {
		t.Error("fetched profile not cached")
	}
}

// A failed key renders as error while its siblings merge normally.
func TestFailureIsolation(t *testing.T) {
	keys := []string{"0xa", "0xb", "0xc"}
	fetcher := testutil.NewFakeFetcher(
		profile.Profile{Address: "0xa", Rank: 1},
		profile.Profile{Address: "0xc", Rank: 3},
	)
	fetcher.Fail("0xb", errors.New("boom"))
	l, _ := setupLoader(t, fetcher, DefaultConfig())

	view, err := l.Initialize(context.Background(), keys)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	byKey := itemsByKey(view)
	if byKey["0xb"].State != StateError {
		t.Errorf("0xb state = %s, want error", byKey["0xb"].State)
	}
	for _, k := range []string{"0xa", "0xc"} {
		if byKey[k].State != StateCached {
			t.Errorf("%s state = %s, want cached", k, byKey[k].State)
		}
	}
}

// SetKeys retains surviving items as-is, drops removed keys, inserts new
// ones as placeholders, and resets the window.
func TestSetKeys_Reconciliation(t *testing.T) {
	fetcher := testutil.NewFakeFetcher(
		profile.Profile{Address: "0xa", Rank: 1},
		profile.Profile{Address: "0xb", Rank: 2},
		profile.Profile{Address: "0xc", Rank: 3},
	)
	l, _ := setupLoader(t, fetcher, DefaultConfig())
	ctx := context.Background()

	if _, err := l.Initialize(ctx, []string{"0xa", "0xb"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	aCalls := fetcher.Calls("0xa")

	view, err := l.SetKeys(ctx, []string{"0xa", "0xc"})
	if err != nil {
		t.Fatalf("SetKeys failed: %v", err)
	}

	byKey := itemsByKey(view)
	if _, ok := byKey["0xb"]; ok {
		t.Error("removed key 0xb still present")
	}
	if byKey["0xc"].State != StateCached {
		t.Errorf("new key 0xc state = %s, want cached after fetch", byKey["0xc"].State)
	}
	// Retained item was not refetched: no flicker.
	if fetcher.Calls("0xa") != aCalls {
		t.Errorf("retained key refetched: %d calls, want %d", fetcher.Calls("0xa"), aCalls)
	}
}

func TestRefetch_RestartsSession(t *testing.T) {
	keys := keysN(8)
	fetcher := testutil.NewFakeFetcher()
	for i, k := range keys {
		fetcher.Add(profile.Profile{Address: k, Rank: i + 1})
	}
	cfg := DefaultConfig()
	cfg.InitialPageSize = 4
	cfg.LoadMorePageSize = 2
	l, _ := setupLoader(t, fetcher, cfg)
	ctx := context.Background()

	if _, err := l.Initialize(ctx, keys); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := l.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	view, err := l.Refetch(ctx)
	if err != nil {
		t.Fatalf("Refetch failed: %v", err)
	}
	if len(view.Items) != 4 {
		t.Errorf("refetched view has %d items, want initial window of 4", len(view.Items))
	}
	if !view.HasMore {
		t.Error("hasMore false after refetch reset")
	}
}

// A generation bump while a fetch is in flight discards the stale merge.
func TestStaleGenerationDiscarded(t *testing.T) {
	fetcher := testutil.NewFakeFetcher(
		profile.Profile{Address: "0xa", Rank: 1},
		profile.Profile{Address: "0xb", Rank: 2},
	)
	fetcher.SetDelay(50 * time.Millisecond)
	l, _ := setupLoader(t, fetcher, DefaultConfig())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Initialize(ctx, []string{"0xa"})
	}()

	// Supersede the in-flight initialize.
	time.Sleep(10 * time.Millisecond)
	if _, err := l.SetKeys(ctx, []string{"0xb"}); err != nil {
		t.Fatalf("SetKeys failed: %v", err)
	}
	<-done

	view := l.View()
	byKey := itemsByKey(view)
	if _, ok := byKey["0xa"]; ok {
		t.Error("stale generation's key leaked into the view")
	}
	if byKey["0xb"].State != StateCached {
		t.Errorf("0xb state = %s, want cached", byKey["0xb"].State)
	}
}

func itemsByKey(view View) map[string]Item {
	out := make(map[string]Item, len(view.Items))
	for _, item := range view.Items {
		out[item.Key] = item
	}
	return out
}
