package matcher

import "time"

// MaxSupportedItems bounds MaxItems so enumeration stays at most 2^20 subsets.
const MaxSupportedItems = 20

// Config holds matcher configuration
type Config struct {
	MaxItems int // Hard cap on candidates per call (default: 10)
	TopK     int // Subsets returned after ranking (default: 5, 0 = all)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxItems: 10,
		TopK:     5,
	}
}

// Candidate is one record the matcher may include in a subset.
type Candidate struct {
	ID          string
	AmountCents int64
	Date        time.Time
}

// Subset is one combination of candidates whose sum is within tolerance of the
// target. ItemIndices index into the candidate slice passed to FindSubsets and
// are in ascending order.
type Subset struct {
	ItemIndices    []int
	SumCents       int64
	RemainderCents int64 // target - sum
}

// Size returns the number of candidates in the subset.
func (s Subset) Size() int {
	return len(s.ItemIndices)
}

// IsExact reports whether the subset sums exactly to the target.
func (s Subset) IsExact() bool {
	return s.RemainderCents == 0
}

// AbsRemainder returns the absolute distance from the target.
func (s Subset) AbsRemainder() int64 {
	if s.RemainderCents < 0 {
		return -s.RemainderCents
	}
	return s.RemainderCents
}
