package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tracklab/walletsync/internal/testutil"
	"github.com/tracklab/walletsync/pkg/profile"
)

func profilesFor(keys ...string) []profile.Profile {
	out := make([]profile.Profile, len(keys))
	for i, k := range keys {
		out[i] = profile.Profile{Address: k, Rank: i + 1}
	}
	return out
}

func TestFetchAll_EmptyKeys(t *testing.T) {
	orch := NewOrchestrator(testutil.NewFakeFetcher())

	result, err := orch.FetchAll(context.Background(), nil, Options{Concurrency: 5})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(result.Outcomes) != 0 || len(result.Errors) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestFetchAll_InvalidConcurrency(t *testing.T) {
	orch := NewOrchestrator(testutil.NewFakeFetcher())

	for _, c := range []int{0, -1} {
		if _, err := orch.FetchAll(context.Background(), []string{"a"}, Options{Concurrency: c}); err == nil {
			t.Errorf("concurrency %d: expected error", c)
		}
	}
}

// 12 keys with concurrency 5 run as windows of 5, 5, 2 with two inter-window
// delays, and never more than 5 fetches in flight at once.
func TestFetchAll_WindowShape(t *testing.T) {
	keys := make([]string, 12)
	for i := range keys {
		keys[i] = fmt.Sprintf("0x%02d", i)
	}
	fetcher := testutil.NewFakeFetcher(profilesFor(keys...)...)
	fetcher.SetDelay(10 * time.Millisecond)
	orch := NewOrchestrator(fetcher)

	start := time.Now()
	result, err := orch.FetchAll(context.Background(), keys, Options{
		Concurrency:     5,
		InterBatchDelay: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(result.Outcomes) != 12 {
		t.Errorf("got %d outcomes, want 12", len(result.Outcomes))
	}
	if got := fetcher.MaxInFlight(); got > 5 {
		t.Errorf("max in-flight fetches = %d, want <= 5", got)
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("elapsed %v, want >= 200ms of inter-window delay", elapsed)
	}
}

// A failing key never disturbs its siblings' outcomes.
func TestFetchAll_PartialFailureIsolation(t *testing.T) {
	keys := []string{"0xa", "0xb", "0xc", "0xd"}
	fetcher := testutil.NewFakeFetcher(profilesFor(keys...)...)
	fetcher.Fail("0xb", errors.New("boom"))
	orch := NewOrchestrator(fetcher)

	result, err := orch.FetchAll(context.Background(), keys, Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(result.Errors))
	}

	byKey := make(map[string]Outcome, len(result.Outcomes))
	for _, oc := range result.Outcomes {
		byKey[oc.Key] = oc
	}
	if byKey["0xb"].Err == nil {
		t.Error("expected error outcome for 0xb")
	}
	for _, k := range []string{"0xa", "0xc", "0xd"} {
		oc := byKey[k]
		if oc.Err != nil || oc.Profile == nil {
			t.Errorf("sibling %s affected by failure: %+v", k, oc)
		}
	}
	if got := len(result.Successes()); got != 3 {
		t.Errorf("Successes() = %d, want 3", got)
	}
}

// Duplicate keys in one call are fetched once.
func TestFetchAll_DeduplicatesWithinCall(t *testing.T) {
	fetcher := testutil.NewFakeFetcher(profilesFor("0xa")...)
	orch := NewOrchestrator(fetcher)

	result, err := orch.FetchAll(context.Background(), []string{"0xa", "0xa", "0xa"}, Options{Concurrency: 5})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Errorf("got %d outcomes, want 1", len(result.Outcomes))
	}
	if fetcher.Calls("0xa") != 1 {
		t.Errorf("key fetched %d times, want 1", fetcher.Calls("0xa"))
	}

	// No cross-call memory: a second call fetches again.
	if _, err := orch.FetchAll(context.Background(), []string{"0xa"}, Options{Concurrency: 5}); err != nil {
		t.Fatalf("second FetchAll failed: %v", err)
	}
	if fetcher.Calls("0xa") != 2 {
		t.Errorf("key fetched %d times across calls, want 2", fetcher.Calls("0xa"))
	}
}

func TestFetchAll_ContextCancelledBetweenWindows(t *testing.T) {
	keys := []string{"0xa", "0xb"}
	fetcher := testutil.NewFakeFetcher(profilesFor(keys...)...)
	orch := NewOrchestrator(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.FetchAll(ctx, keys, Options{Concurrency: 1, InterBatchDelay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// First window still settled before the cancellation check.
	if len(result.Outcomes) != 1 {
		t.Errorf("got %d outcomes before cancellation, want 1", len(result.Outcomes))
	}
}
