// Package fetch provides concurrency-bounded batch fetching with
// partial-failure isolation.
//
// Keys are partitioned into consecutive windows of the configured
// concurrency. All fetches within a window run concurrently and every one is
// allowed to settle; failures are collected per key and never abort siblings
// or the batch. An optional delay between windows rate-limits pressure on
// the remote source.
//
// Example usage:
//
//	orch := fetch.NewOrchestrator(apiClient)
//	result, err := orch.FetchAll(ctx, addresses, fetch.Options{
//		Concurrency:     5,
//		InterBatchDelay: 100 * time.Millisecond,
//	})
//	for _, oc := range result.Successes() {
//		// write to cache, render, ...
//	}
package fetch
