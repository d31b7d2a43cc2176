// Package matcher finds combinations of candidate records that settle a target
// amount.
//
// The matcher is a pure function of its inputs:
//   - Every non-empty subset of the candidates is enumerated by bitmask
//   - A subset is kept when |target - sum| <= tolerance
//   - Kept subsets are ranked by smallest |remainder|, then fewest items,
//     then earliest candidate dates, then lowest item indices
//
// Candidate pools are capped at Config.MaxItems. Larger pools are rejected with
// a TooManyCandidatesError rather than truncated; callers pre-filter.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	subsets, err := m.FindSubsets(10000, candidates, 100)
//	if err != nil {
//		return err
//	}
//	for _, s := range subsets {
//		// s.ItemIndices index into candidates
//	}
package matcher

import (
	"sort"
	"time"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// Matcher finds candidate subsets that settle a target amount
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config: config,
	}
}

// Config returns the matcher configuration
func (m *Matcher) Config() Config {
	return m.config
}

// FindSubsets is a convenience wrapper using the default TopK.
func FindSubsets(targetCents int64, candidates []Candidate, toleranceCents int64, maxItems int) ([]Subset, error) {
	cfg := DefaultConfig()
	cfg.MaxItems = maxItems
	return NewMatcher(cfg).FindSubsets(targetCents, candidates, toleranceCents)
}

// FindSubsets returns the ranked subsets of candidates whose sum lies within
// toleranceCents of targetCents. An empty result is not an error.
func (m *Matcher) FindSubsets(targetCents int64, candidates []Candidate, toleranceCents int64) ([]Subset, error) {
	if m.config.MaxItems <= 0 || m.config.MaxItems > MaxSupportedItems {
		return nil, splitmatch.NewValidationError("max_items", "must be between 1 and %d, got %d", MaxSupportedItems, m.config.MaxItems)
	}
	if toleranceCents < 0 {
		return nil, splitmatch.NewValidationError("tolerance_cents", "must be >= 0, got %d", toleranceCents)
	}
	if len(candidates) > m.config.MaxItems {
		return nil, &splitmatch.TooManyCandidatesError{Count: len(candidates), Max: m.config.MaxItems}
	}

	n := len(candidates)
	ranked := make([]rankedSubset, 0)

	for mask := 1; mask < 1<<n; mask++ {
		var sum int64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				sum += candidates[i].AmountCents
			}
		}

		remainder := targetCents - sum
		if splitmatch.Abs(remainder) > toleranceCents {
			continue
		}

		ranked = append(ranked, newRankedSubset(mask, n, sum, remainder, candidates))
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].less(ranked[j])
	})

	if m.config.TopK > 0 && len(ranked) > m.config.TopK {
		ranked = ranked[:m.config.TopK]
	}

	result := make([]Subset, 0, len(ranked))
	for _, r := range ranked {
		result = append(result, r.subset)
	}

	return result, nil
}

// rankedSubset carries the sort keys alongside a subset.
type rankedSubset struct {
	subset Subset
	dates  []time.Time // ascending
}

func newRankedSubset(mask, n int, sum, remainder int64, candidates []Candidate) rankedSubset {
	indices := make([]int, 0, n)
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		if mask&(1<<i) != 0 {
			indices = append(indices, i)
			dates = append(dates, candidates[i].Date)
		}
	}

	sort.Slice(dates, func(a, b int) bool {
		return dates[a].Before(dates[b])
	})

	return rankedSubset{
		subset: Subset{
			ItemIndices:    indices,
			SumCents:       sum,
			RemainderCents: remainder,
		},
		dates: dates,
	}
}

// less orders by |remainder|, item count, earliest dates, then item indices.
// Two distinct subsets never compare equal, so the order is total.
func (r rankedSubset) less(other rankedSubset) bool {
	if a, b := r.subset.AbsRemainder(), other.subset.AbsRemainder(); a != b {
		return a < b
	}
	if a, b := r.subset.Size(), other.subset.Size(); a != b {
		return a < b
	}
	for i := range r.dates {
		if !r.dates[i].Equal(other.dates[i]) {
			return r.dates[i].Before(other.dates[i])
		}
	}
	for i := range r.subset.ItemIndices {
		if r.subset.ItemIndices[i] != other.subset.ItemIndices[i] {
			return r.subset.ItemIndices[i] < other.subset.ItemIndices[i]
		}
	}
	return false
}
