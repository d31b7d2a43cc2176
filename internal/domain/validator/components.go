// Package validator checks split match component sets before they are
// persisted or confirmed.
//
// A component set is valid when it is non-empty, no larger than the matcher's
// item cap, references each record at most once, and never references the
// source record itself. The sum invariant ties a match's matched amount to the
// live sum of its components.
package validator

import (
	"strings"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// SumValidation contains the result of checking a match's amounts.
type SumValidation struct {
	// Valid is true if matched and remainder agree with the components
	Valid bool

	// ComponentSum is the live sum of the component amounts
	ComponentSum int64

	// Matched is the stored matched amount
	Matched int64

	// Reason explains why validation failed (empty if valid)
	Reason string
}

// ValidateComponentSet checks the shape of a proposed component list.
func ValidateComponentSet(sourceID string, recordIDs []string, maxItems int) error {
	if len(recordIDs) == 0 {
		return splitmatch.NewValidationError("components", "at least one component is required")
	}
	if maxItems > 0 && len(recordIDs) > maxItems {
		return splitmatch.NewValidationError("components", "%d components exceeds limit of %d", len(recordIDs), maxItems)
	}

	seen := make(map[string]bool, len(recordIDs))
	for i, id := range recordIDs {
		if strings.TrimSpace(id) == "" {
			return splitmatch.NewValidationError("components", "component %d has no candidate record id", i)
		}
		if id == sourceID {
			return splitmatch.NewValidationError("components", "source record %q cannot be its own component", id)
		}
		if seen[id] {
			return splitmatch.NewValidationError("components", "record %q listed more than once", id)
		}
		seen[id] = true
	}

	return nil
}

// ValidateSum checks the sum invariant of a split match.
func ValidateSum(m *splitmatch.SplitMatch) *SumValidation {
	sum := m.ComponentSum()

	if sum == m.MatchedAmountCents && m.RemainderCents == m.TargetAmountCents-sum {
		return &SumValidation{Valid: true, ComponentSum: sum, Matched: m.MatchedAmountCents}
	}

	reason := "remainder does not equal target minus matched amount"
	if sum != m.MatchedAmountCents {
		reason = "matched amount does not equal the sum of the components"
	}

	return &SumValidation{
		Valid:        false,
		ComponentSum: sum,
		Matched:      m.MatchedAmountCents,
		Reason:       reason,
	}
}
