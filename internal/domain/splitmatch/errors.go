package splitmatch

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown tenant-scoped resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError reports an optimistic-concurrency violation detected before a
// match was persisted, or a confirmation that kept failing on transient
// serialization errors.
type ConflictError struct {
	CandidateRecordID string
	Reason            string
}

func (e *ConflictError) Error() string {
	if e.CandidateRecordID == "" {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict on record %q: %s", e.CandidateRecordID, e.Reason)
}

// StaleMatchError reports that a record referenced by a pending match was
// allocated elsewhere, or had its amount changed, after the match was created.
// The caller should discard the match and ask for fresh suggestions.
type StaleMatchError struct {
	SplitMatchID      string
	CandidateRecordID string
	Reason            string
}

func (e *StaleMatchError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "already allocated"
	}
	return fmt.Sprintf("split match %q is stale: record %q is %s", e.SplitMatchID, e.CandidateRecordID, reason)
}

// InvalidStateTransitionError reports an attempt to move a match out of a
// terminal state.
type InvalidStateTransitionError struct {
	SplitMatchID string
	From         Status
	To           Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("split match %q cannot move from %s to %s", e.SplitMatchID, e.From, e.To)
}

// TooManyCandidatesError reports a candidate pool larger than the matcher's
// hard cap. The pool must be pre-filtered; it is never truncated silently.
type TooManyCandidatesError struct {
	Count int
	Max   int
}

func (e *TooManyCandidatesError) Error() string {
	return fmt.Sprintf("too many candidates: %d exceeds limit of %d", e.Count, e.Max)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsStale reports whether err is or wraps a StaleMatchError.
func IsStale(err error) bool {
	var target *StaleMatchError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is or wraps an InvalidStateTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidStateTransitionError
	return errors.As(err, &target)
}

// IsTooManyCandidates reports whether err is or wraps a TooManyCandidatesError.
func IsTooManyCandidates(err error) bool {
	var target *TooManyCandidatesError
	return errors.As(err, &target)
}
