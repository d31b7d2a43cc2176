package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response stamped with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// FormatCents renders integer cents as a fixed two-decimal string ("-12.50").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// RecordResponse represents a ledger record.
type RecordResponse struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	AmountCents      int64  `json:"amount_cents"`
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	AllocationStatus string `json:"allocation_status"`
	AllocatedTo      string `json:"allocated_to,omitempty"`
	Description      string `json:"description,omitempty"`
}

// RecordListResponse wraps a page of ledger records.
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// UpsertRecordsResponse reports how many records were stored.
type UpsertRecordsResponse struct {
	Upserted int `json:"upserted"`
}

// ComponentResponse is one component of a split match or suggestion.
type ComponentResponse struct {
	CandidateRecordID string `json:"candidate_record_id"`
	Kind              string `json:"kind,omitempty"`
	AmountCents       int64  `json:"amount_cents"`
	Amount            string `json:"amount"`
	Date              string `json:"date,omitempty"`
	Position          int    `json:"position"`
}

// SuggestionResponse is one ranked split proposal.
type SuggestionResponse struct {
	Rank                int                 `json:"rank"`
	MatchType           string              `json:"match_type"`
	SourceTransactionID string              `json:"source_transaction_id"`
	TargetAmountCents   int64               `json:"target_amount_cents"`
	MatchedAmountCents  int64               `json:"matched_amount_cents"`
	RemainderCents      int64               `json:"remainder_cents"`
	TargetAmount        string              `json:"target_amount"`
	MatchedAmount       string              `json:"matched_amount"`
	Remainder           string              `json:"remainder"`
	Components          []ComponentResponse `json:"components"`
}

// SuggestionListResponse wraps the suggestions for one source record.
type SuggestionListResponse struct {
	SourceTransactionID string               `json:"source_transaction_id"`
	Suggestions         []SuggestionResponse `json:"suggestions"`
}

// SplitMatchResponse represents a persisted split match.
type SplitMatchResponse struct {
	ID                  string              `json:"id"`
	SourceTransactionID string              `json:"source_transaction_id"`
	MatchType           string              `json:"match_type"`
	Status              string              `json:"status"`
	TargetAmountCents   int64               `json:"target_amount_cents"`
	MatchedAmountCents  int64               `json:"matched_amount_cents"`
	RemainderCents      int64               `json:"remainder_cents"`
	TargetAmount        string              `json:"target_amount"`
	MatchedAmount       string              `json:"matched_amount"`
	Remainder           string              `json:"remainder"`
	Components          []ComponentResponse `json:"components"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at"`
	ConfirmedAt         string              `json:"confirmed_at,omitempty"`
}

// SplitMatchListResponse is a paginated list of split matches.
type SplitMatchListResponse struct {
	SplitMatches []SplitMatchResponse `json:"split_matches"`
	TotalCount   int                  `json:"total_count"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}
