package fetch

import (
	"context"

	"github.com/tracklab/walletsync/pkg/profile"
)

// Fetcher is the single-record remote collaborator: fetch one wallet profile
// by key. Implementations must be safe for concurrent use.
type Fetcher interface {
	FetchProfile(ctx context.Context, address string) (*profile.Profile, error)
}

// PageFetcher is the paged remote collaborator: fetch one page of a sorted
// profile listing.
type PageFetcher interface {
	FetchProfilePage(ctx context.Context, pageIndex, pageSize int, sortBy, sortOrder string) (*profile.Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, address string) (*profile.Profile, error)

// FetchProfile implements Fetcher.
func (f FetcherFunc) FetchProfile(ctx context.Context, address string) (*profile.Profile, error) {
	return f(ctx, address)
}

// Outcome is the per-key result of a batch fetch. Exactly one of Profile and
// Err is set.
type Outcome struct {
	Key     string
	Profile *profile.Profile
	Err     error
}

// OK reports whether the fetch for this key succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}
