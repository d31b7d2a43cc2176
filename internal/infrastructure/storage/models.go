package storage

import (
	"database/sql"
	"time"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// recordColumns is the column list shared by every ledger_records read
var recordColumns = []string{
	"tenant_id", "id", "kind", "amount_cents", "record_date",
	"allocation_status", "allocated_to", "description", "updated_at",
}

// recordRow is the ledger_records row
type recordRow struct {
	TenantID         string    `db:"tenant_id"`
	ID               string    `db:"id"`
	Kind             string    `db:"kind"`
	AmountCents      int64     `db:"amount_cents"`
	RecordDate       time.Time `db:"record_date"`
	AllocationStatus string    `db:"allocation_status"`
	AllocatedTo      string    `db:"allocated_to"`
	Description      string    `db:"description"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r recordRow) toDomain() *splitmatch.CandidateRecord {
	return &splitmatch.CandidateRecord{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Kind:             splitmatch.RecordKind(r.Kind),
		AmountCents:      r.AmountCents,
		Date:             r.RecordDate.UTC(),
		AllocationStatus: splitmatch.AllocationStatus(r.AllocationStatus),
		AllocatedTo:      r.AllocatedTo,
		Description:      r.Description,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

var splitMatchColumns = []string{
	"id", "tenant_id", "source_transaction_id", "match_type",
	"target_amount_cents", "matched_amount_cents", "remainder_cents",
	"status", "created_at", "updated_at", "confirmed_at",
}

// splitMatchRow is the split_matches row
type splitMatchRow struct {
	ID                  string       `db:"id"`
	TenantID            string       `db:"tenant_id"`
	SourceTransactionID string       `db:"source_transaction_id"`
	MatchType           string       `db:"match_type"`
	TargetAmountCents   int64        `db:"target_amount_cents"`
	MatchedAmountCents  int64        `db:"matched_amount_cents"`
	RemainderCents      int64        `db:"remainder_cents"`
	Status              string       `db:"status"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
	ConfirmedAt         sql.NullTime `db:"confirmed_at"`
}

func (r splitMatchRow) toDomain() *splitmatch.SplitMatch {
	m := &splitmatch.SplitMatch{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		SourceTransactionID: r.SourceTransactionID,
		MatchType:           splitmatch.MatchType(r.MatchType),
		TargetAmountCents:   r.TargetAmountCents,
		MatchedAmountCents:  r.MatchedAmountCents,
		RemainderCents:      r.RemainderCents,
		Status:              splitmatch.Status(r.Status),
		Components:          []splitmatch.Component{},
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
	if r.ConfirmedAt.Valid {
		confirmedAt := r.ConfirmedAt.Time.UTC()
		m.ConfirmedAt = &confirmedAt
	}
	return m
}

var componentColumns = []string{
	"id", "split_match_id", "candidate_record_id", "amount_cents", "position",
}

// componentRow is the split_match_components row
type componentRow struct {
	ID                string `db:"id"`
	SplitMatchID      string `db:"split_match_id"`
	CandidateRecordID string `db:"candidate_record_id"`
	AmountCents       int64  `db:"amount_cents"`
	Position          int    `db:"position"`
}

func (r componentRow) toDomain() splitmatch.Component {
	return splitmatch.Component{
		ID:                r.ID,
		SplitMatchID:      r.SplitMatchID,
		CandidateRecordID: r.CandidateRecordID,
		AmountCents:       r.AmountCents,
		Position:          r.Position,
	}
}

// nullTime converts an optional time for storage
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// sqliteTime formats a time the way go-sqlite3 stores it, for use inside SQL
// date functions.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
