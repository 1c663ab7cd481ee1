package search

import (
	"sort"
	"strings"

	"github.com/tracklab/walletsync/pkg/profile"
)

// Per-field match weights. Fields are evaluated in fixed priority order:
// address > display name > social handle > alias. The constants are chosen
// so an exact full-address match (2000) outranks any combination of partial
// matches plus exact matches on every lesser field (800+600+400+100 = 1900).
var fieldWeights = [4]struct {
	exact    int
	prefix   int
	contains int
}{
	{exact: 2000, prefix: 100, contains: 10}, // address
	{exact: 800, prefix: 80, contains: 8},    // display name
	{exact: 600, prefix: 60, contains: 6},    // handle
	{exact: 400, prefix: 40, contains: 4},    // alias
}

// Score computes the relevance of a profile for a lower-cased query as the
// sum of per-field contributions: exact match takes the field's top weight,
// prefix match the mid weight, substring match the low weight.
// Returns 0 for no match.
func Score(p *profile.Profile, query string) int {
	fields := [4]string{p.Address, p.DisplayName, p.Handle, p.Alias}

	total := 0
	for i, field := range fields {
		if field == "" {
			continue
		}
		f := strings.ToLower(field)
		switch {
		case f == query:
			total += fieldWeights[i].exact
		case strings.HasPrefix(f, query):
			total += fieldWeights[i].prefix
		case strings.Contains(f, query):
			total += fieldWeights[i].contains
		}
	}
	return total
}

// Match is one scored search result.
type Match struct {
	Profile profile.Profile
	Score   int
}

// rank filters records against the query and orders matches by score
// descending. Equal scores keep the records' natural order (ascending rank),
// so ranking is stable across repeated evaluations.
func rank(records []profile.Profile, query string) []Match {
	matches := make([]Match, 0, len(records))
	for _, r := range records {
		if s := Score(&r, query); s > 0 {
			matches = append(matches, Match{Profile: r, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Profile.Rank < matches[j].Profile.Rank
	})
	return matches
}
