package splitmatch

// Status is the lifecycle state of a split match.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusRejected  Status = "REJECTED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Only PENDING may move, and only to a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// Transition validates a state change for the match with the given id.
func Transition(id string, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return &InvalidStateTransitionError{SplitMatchID: id, From: from, To: to}
	}
	return nil
}
