package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	LedgerRepository
	CandidateProvider
	SplitMatchRepository

	// WithTx runs fn inside a single write transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error

	Close() error
}

// CandidateProvider is the read side of the ledger the matcher draws from.
type CandidateProvider interface {
	// GetRecord retrieves a ledger record, or nil if it does not exist
	GetRecord(ctx context.Context, tenantID, id string) (*splitmatch.CandidateRecord, error)

	// ListUnallocatedCandidates returns UNALLOCATED records of the tenant inside the window
	ListUnallocatedCandidates(ctx context.Context, tenantID string, window CandidateWindow) ([]*splitmatch.CandidateRecord, error)
}

// LedgerRepository handles the local projection of ledger records
type LedgerRepository interface {
	// UpsertRecords inserts or updates records. Amount and kind of an
	// ALLOCATED record can not change.
	UpsertRecords(ctx context.Context, tenantID string, records []*splitmatch.CandidateRecord) error

	// ListRecords returns records matching the given filters
	ListRecords(ctx context.Context, filters RecordFilters) ([]*splitmatch.CandidateRecord, error)
}

// SplitMatchRepository handles split match reads outside a transaction
type SplitMatchRepository interface {
	// GetSplitMatch retrieves a match with its components, or nil if it does not exist
	GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error)

	// ListSplitMatches returns matches matching the given filters with pagination
	ListSplitMatches(ctx context.Context, filters SplitMatchFilters) (*SplitMatchListResult, error)
}

// Tx is the transaction-scoped handle passed to WithTx callbacks.
type Tx interface {
	// GetRecords loads the given records keyed by id. Missing ids are absent from the map.
	GetRecords(ctx context.Context, tenantID string, ids []string) (map[string]*splitmatch.CandidateRecord, error)

	// GetSplitMatch retrieves a match with its components, or nil if it does not exist
	GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error)

	// InsertSplitMatch persists a new match and its components
	InsertSplitMatch(ctx context.Context, m *splitmatch.SplitMatch) error

	// SetAllocationStatus moves a record to status if it currently holds the
	// opposite status. It reports false when another writer got there first.
	SetAllocationStatus(ctx context.Context, tenantID, recordID string, status splitmatch.AllocationStatus, splitMatchID string) (bool, error)

	// TransitionSplitMatch writes m's status, amounts and confirmation time if the
	// stored status still equals from. It reports false otherwise.
	TransitionSplitMatch(ctx context.Context, m *splitmatch.SplitMatch, from splitmatch.Status) (bool, error)
}

// CandidateWindow bounds a candidate query
type CandidateWindow struct {
	Kinds             []splitmatch.RecordKind // Empty = all kinds
	Direction         splitmatch.Direction    // Sign filter on amount_cents
	From              time.Time               // Inclusive, zero = unbounded
	To                time.Time               // Inclusive, zero = unbounded
	Anchor            time.Time               // Order by distance to this date (zero = by date ascending)
	MaxAbsAmountCents int64                   // 0 = unbounded
	ExcludeIDs        []string
	Limit             int // 0 = unbounded
}

// RecordFilters defines filters for listing ledger records
type RecordFilters struct {
	TenantID string
	Status   splitmatch.AllocationStatus // Empty = all
	Kind     splitmatch.RecordKind       // Empty = all
	Limit    int                         // Max results (0 = default 100)
	Offset   int
}

// SplitMatchFilters defines filters for listing split matches
type SplitMatchFilters struct {
	TenantID            string
	Status              splitmatch.Status // Empty = all
	SourceTransactionID string            // Empty = all
	Limit               int               // Max results (0 = default 50)
	Offset              int
}

// SplitMatchListResult contains paginated split match results
type SplitMatchListResult struct {
	Matches    []*splitmatch.SplitMatch
	TotalCount int
	Limit      int
	Offset     int
}

const (
	defaultRecordLimit     = 100
	defaultSplitMatchLimit = 50
)
