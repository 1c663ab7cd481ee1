package poller

import (
	"fmt"
	"time"
)

// TierCount is the fixed number of priority tiers.
const TierCount = 5

// tierNames are the fixed tier identifiers, fastest first.
var tierNames = [TierCount]string{"tier1", "tier2", "tier3", "tier4", "tier5"}

// Tier is a priority bucket of keys sharing one polling interval.
type Tier struct {
	Name     string
	Members  []string
	Interval time.Duration
}

// TierConfig defines the score thresholds and per-tier poll intervals.
// Thresholds are strictly descending boundaries: a key lands in tier1 when
// score > Thresholds[0], in tier2 when Thresholds[1] < score <= Thresholds[0],
// and so on down to tier5 for score <= Thresholds[3].
type TierConfig struct {
	Thresholds [TierCount - 1]float64
	Intervals  [TierCount]time.Duration
}

// DefaultTierConfig trades freshness against request volume: top wallets are
// polled every 30 seconds, the long tail hourly.
func DefaultTierConfig() TierConfig {
	return TierConfig{
		Thresholds: [TierCount - 1]float64{60, 50, 40, 30},
		Intervals: [TierCount]time.Duration{
			30 * time.Second,
			2 * time.Minute,
			5 * time.Minute,
			15 * time.Minute,
			1 * time.Hour,
		},
	}
}

// Validate checks boundary ordering and interval sanity.
func (c TierConfig) Validate() error {
	for i := 1; i < len(c.Thresholds); i++ {
		if c.Thresholds[i] >= c.Thresholds[i-1] {
			return fmt.Errorf("thresholds must be strictly descending (got %v)", c.Thresholds)
		}
	}
	for i, interval := range c.Intervals {
		if interval <= 0 {
			return fmt.Errorf("interval for %s must be positive (got %v)", tierNames[i], interval)
		}
	}
	return nil
}

// Partition assigns every key to exactly one tier by its priority score.
// The resulting tiers are pairwise disjoint and their member sets union to
// the input key set. The partition is recomputed in full whenever the key
// set or score map changes; there is no incremental patching.
func Partition(keys []string, scoreOf func(string) float64, cfg TierConfig) []Tier {
	tiers := make([]Tier, TierCount)
	for i := range tiers {
		tiers[i] = Tier{Name: tierNames[i], Interval: cfg.Intervals[i]}
	}

	for _, key := range keys {
		idx := tierIndex(scoreOf(key), cfg)
		tiers[idx].Members = append(tiers[idx].Members, key)
	}
	return tiers
}

func tierIndex(score float64, cfg TierConfig) int {
	for i, threshold := range cfg.Thresholds {
		if score > threshold {
			return i
		}
	}
	return TierCount - 1
}
