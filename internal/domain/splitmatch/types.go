// Package splitmatch defines the split match aggregate, the ledger records it
// allocates, and the state machine that governs a match's lifecycle.
//
// A split match groups one source record (a bank transaction, or a single large
// outstanding invoice/payment) with several candidate records whose amounts sum
// to the source amount within a tolerance window:
//
//	ONE_TO_MANY: one bank transaction  ↔ many invoices/payments
//	MANY_TO_ONE: one invoice/payment   ↔ many bank transactions
//
// All amounts are integer cents. A match is created PENDING and is mutated
// exactly once, to CONFIRMED or REJECTED, after which it is immutable.
package splitmatch

import "time"

// RecordKind identifies what a ledger record represents.
type RecordKind string

const (
	KindInvoice     RecordKind = "INVOICE"
	KindPayment     RecordKind = "PAYMENT"
	KindTransaction RecordKind = "TRANSACTION"
)

// Valid reports whether k is a known kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindInvoice, KindPayment, KindTransaction:
		return true
	}
	return false
}

// AllocationStatus is the single shared mutable field contended over by
// concurrent confirmations.
type AllocationStatus string

const (
	Unallocated AllocationStatus = "UNALLOCATED"
	Allocated   AllocationStatus = "ALLOCATED"
)

// MatchType selects which side of the match is the single record.
type MatchType string

const (
	OneToMany MatchType = "ONE_TO_MANY"
	ManyToOne MatchType = "MANY_TO_ONE"
)

// Valid reports whether t is a known match type.
func (t MatchType) Valid() bool {
	return t == OneToMany || t == ManyToOne
}

// SourceKindAllowed reports whether a record of kind k may be the source of a
// match of this type.
func (t MatchType) SourceKindAllowed(k RecordKind) bool {
	switch t {
	case OneToMany:
		return k == KindTransaction
	case ManyToOne:
		return k == KindInvoice || k == KindPayment
	}
	return false
}

// CandidateKinds returns the record kinds that can be matched against a source
// with the given signed amount.
//
// Credits settle invoices and debits settle payments, in both directions.
func (t MatchType) CandidateKinds(sourceAmountCents int64) []RecordKind {
	switch t {
	case OneToMany:
		if sourceAmountCents >= 0 {
			return []RecordKind{KindInvoice}
		}
		return []RecordKind{KindPayment}
	case ManyToOne:
		return []RecordKind{KindTransaction}
	}
	return nil
}

// Direction is the sign filter applied to candidate amounts.
type Direction string

const (
	DirectionAny    Direction = ""
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// CandidateDirection returns the sign candidates must carry for a source of the
// given kind. Invoice and payment amounts are stored unsigned, so only bank
// transaction candidates are sign-filtered.
func (t MatchType) CandidateDirection(source RecordKind) Direction {
	if t != ManyToOne {
		return DirectionAny
	}
	if source == KindInvoice {
		return DirectionCredit
	}
	return DirectionDebit
}

// CandidateRecord is a ledger record the matcher may allocate. It is owned by
// the ledger; the core only reads it and, on confirmation, flips its
// allocation status.
type CandidateRecord struct {
	ID               string
	TenantID         string
	Kind             RecordKind
	AmountCents      int64
	Date             time.Time
	AllocationStatus AllocationStatus
	AllocatedTo      string // split match id once allocated
	Description      string
	UpdatedAt        time.Time
}

// IsAllocated reports whether the record is already consumed by a confirmed match.
func (r CandidateRecord) IsAllocated() bool {
	return r.AllocationStatus == Allocated
}

// AbsAmountCents returns the unsigned amount used for matching.
func (r CandidateRecord) AbsAmountCents() int64 {
	return Abs(r.AmountCents)
}

// Component is one edge from a split match to one candidate record.
type Component struct {
	ID                string
	SplitMatchID      string
	CandidateRecordID string
	AmountCents       int64
	Position          int
}

// SplitMatch is the core aggregate.
type SplitMatch struct {
	ID                  string
	TenantID            string
	SourceTransactionID string
	MatchType           MatchType
	TargetAmountCents   int64
	MatchedAmountCents  int64
	RemainderCents      int64
	Status              Status
	Components          []Component
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ConfirmedAt         *time.Time
}

// ComponentSum returns the live sum of the component amounts.
func (m *SplitMatch) ComponentSum() int64 {
	var sum int64
	for _, c := range m.Components {
		sum += c.AmountCents
	}
	return sum
}

// Recalculate derives MatchedAmountCents and RemainderCents from the components.
func (m *SplitMatch) Recalculate() {
	m.MatchedAmountCents = m.ComponentSum()
	m.RemainderCents = m.TargetAmountCents - m.MatchedAmountCents
}

// CandidateRecordIDs returns the component record ids in position order.
func (m *SplitMatch) CandidateRecordIDs() []string {
	ids := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		ids = append(ids, c.CandidateRecordID)
	}
	return ids
}

// SuggestedComponent is one candidate record inside a suggestion.
type SuggestedComponent struct {
	CandidateRecordID string
	Kind              RecordKind
	AmountCents       int64
	Date              time.Time
}

// Suggestion is a ranked, not yet persisted, proposal for a split match.
type Suggestion struct {
	MatchType           MatchType
	SourceTransactionID string
	TargetAmountCents   int64
	MatchedAmountCents  int64
	RemainderCents      int64
	Components          []SuggestedComponent
}

// Abs returns the absolute value of a cents amount.
func Abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
