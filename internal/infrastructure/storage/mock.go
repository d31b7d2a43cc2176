package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated. WithTx holds a
// single lock for the duration of the callback and restores a snapshot when
// the callback fails, so it behaves like a serialized database.
type MockRepository struct {
	mu          sync.Mutex
	records     map[string]*splitmatch.CandidateRecord // Keyed by tenant/id
	matches     map[string]*splitmatch.SplitMatch      // Keyed by tenant/id
	allocations map[string]string                      // tenant/record -> split match id

	// Hooks for test assertions
	WithTxCalls        int
	GetRecordCalled    bool
	ListCandidatesCall *CandidateWindow
	InsertedMatches    []*splitmatch.SplitMatch

	// Error injection for testing error paths
	GetRecordErr     error
	UpsertRecordsErr error
	// WithTxErrs are returned by successive WithTx calls before the callback
	// runs. A nil entry lets that call proceed.
	WithTxErrs []error
	// CommitErrs are returned by successive WithTx calls after the callback
	// succeeded; the changes are rolled back.
	CommitErrs []error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		records:     make(map[string]*splitmatch.CandidateRecord),
		matches:     make(map[string]*splitmatch.SplitMatch),
		allocations: make(map[string]string),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// AddRecord seeds a record directly, bypassing the allocation guard
func (m *MockRepository) AddRecord(record *splitmatch.CandidateRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *record
	if copied.AllocationStatus == "" {
		copied.AllocationStatus = splitmatch.Unallocated
	}
	m.records[key(record.TenantID, record.ID)] = &copied
}

// AddSplitMatch seeds a split match directly
func (m *MockRepository) AddSplitMatch(match *splitmatch.SplitMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.matches[key(match.TenantID, match.ID)] = copyMatch(match)
}

// Allocations returns the record ids allocated to a split match, sorted
func (m *MockRepository) Allocations(splitMatchID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for k, matchID := range m.allocations {
		if matchID == splitMatchID {
			_, recordID, _ := strings.Cut(k, "/")
			ids = append(ids, recordID)
		}
	}
	sort.Strings(ids)
	return ids
}

// GetRecord retrieves a record from the in-memory map
func (m *MockRepository) GetRecord(ctx context.Context, tenantID, id string) (*splitmatch.CandidateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetRecordCalled = true
	if m.GetRecordErr != nil {
		return nil, m.GetRecordErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, ok := m.records[key(tenantID, id)]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// ListUnallocatedCandidates filters the in-memory records like the SQLite query does
func (m *MockRepository) ListUnallocatedCandidates(ctx context.Context, tenantID string, window CandidateWindow) ([]*splitmatch.CandidateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := window
	m.ListCandidatesCall = &w
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(window.ExcludeIDs))
	for _, id := range window.ExcludeIDs {
		excluded[id] = true
	}

	var result []*splitmatch.CandidateRecord
	for _, r := range m.records {
		if r.TenantID != tenantID || r.IsAllocated() || excluded[r.ID] {
			continue
		}
		if len(window.Kinds) > 0 && !containsKind(window.Kinds, r.Kind) {
			continue
		}
		if window.Direction == splitmatch.DirectionCredit && r.AmountCents <= 0 {
			continue
		}
		if window.Direction == splitmatch.DirectionDebit && r.AmountCents >= 0 {
			continue
		}
		if !window.From.IsZero() && r.Date.Before(window.From) {
			continue
		}
		if !window.To.IsZero() && r.Date.After(window.To) {
			continue
		}
		if window.MaxAbsAmountCents > 0 && r.AbsAmountCents() > window.MaxAbsAmountCents {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		if !window.Anchor.IsZero() {
			di, dj := absDuration(result[i].Date.Sub(window.Anchor)), absDuration(result[j].Date.Sub(window.Anchor))
			if di != dj {
				return di < dj
			}
			return result[i].ID < result[j].ID
		}
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})

	if window.Limit > 0 && len(result) > window.Limit {
		result = result[:window.Limit]
	}

	return result, nil
}

// ListRecords returns records of the tenant ordered by date descending
func (m *MockRepository) ListRecords(ctx context.Context, filters RecordFilters) ([]*splitmatch.CandidateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*splitmatch.CandidateRecord
	for _, r := range m.records {
		if r.TenantID != filters.TenantID {
			continue
		}
		if filters.Status != "" && r.AllocationStatus != filters.Status {
			continue
		}
		if filters.Kind != "" && r.Kind != filters.Kind {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	return paginate(result, limit, filters.Offset), nil
}

// UpsertRecords stores records, refusing to change allocated amounts or kinds
func (m *MockRepository) UpsertRecords(ctx context.Context, tenantID string, records []*splitmatch.CandidateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpsertRecordsErr != nil {
		return m.UpsertRecordsErr
	}

	for _, r := range records {
		if current, ok := m.records[key(tenantID, r.ID)]; ok && current.IsAllocated() &&
			(current.AmountCents != r.AmountCents || current.Kind != r.Kind) {
			return &splitmatch.ConflictError{
				CandidateRecordID: r.ID,
				Reason:            "allocated records can not change amount or kind",
			}
		}
	}

	now := time.Now().UTC()
	for _, r := range records {
		k := key(tenantID, r.ID)
		copied := *r
		copied.TenantID = tenantID
		copied.Date = r.Date.UTC()
		copied.UpdatedAt = now
		copied.AllocationStatus = splitmatch.Unallocated
		copied.AllocatedTo = ""
		if current, ok := m.records[k]; ok {
			copied.AllocationStatus = current.AllocationStatus
			copied.AllocatedTo = current.AllocatedTo
		}
		m.records[k] = &copied
	}

	return nil
}

// GetSplitMatch retrieves a match from the in-memory map
func (m *MockRepository) GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.matches[key(tenantID, id)]
	if !ok {
		return nil, nil
	}
	return copyMatch(match), nil
}

// ListSplitMatches returns matches newest first
func (m *MockRepository) ListSplitMatches(ctx context.Context, filters SplitMatchFilters) (*SplitMatchListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*splitmatch.SplitMatch
	for _, match := range m.matches {
		if match.TenantID != filters.TenantID {
			continue
		}
		if filters.Status != "" && match.Status != filters.Status {
			continue
		}
		if filters.SourceTransactionID != "" && match.SourceTransactionID != filters.SourceTransactionID {
			continue
		}
		result = append(result, copyMatch(match))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultSplitMatchLimit
	}

	return &SplitMatchListResult{
		Matches:    paginate(result, limit, filters.Offset),
		TotalCount: len(result),
		Limit:      limit,
		Offset:     filters.Offset,
	}, nil
}

// WithTx runs fn against the in-memory state, restoring it if fn fails
func (m *MockRepository) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.WithTxCalls
	m.WithTxCalls++

	if call < len(m.WithTxErrs) && m.WithTxErrs[call] != nil {
		return m.WithTxErrs[call]
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.snapshot()
	tx := &mockTx{repo: m}

	if err := fn(tx); err != nil {
		m.restore(snapshot)
		return err
	}

	if call < len(m.CommitErrs) && m.CommitErrs[call] != nil {
		m.restore(snapshot)
		return m.CommitErrs[call]
	}

	m.InsertedMatches = append(m.InsertedMatches, tx.inserted...)
	return nil
}

type mockSnapshot struct {
	records     map[string]*splitmatch.CandidateRecord
	matches     map[string]*splitmatch.SplitMatch
	allocations map[string]string
}

func (m *MockRepository) snapshot() mockSnapshot {
	s := mockSnapshot{
		records:     make(map[string]*splitmatch.CandidateRecord, len(m.records)),
		matches:     make(map[string]*splitmatch.SplitMatch, len(m.matches)),
		allocations: make(map[string]string, len(m.allocations)),
	}
	for k, r := range m.records {
		copied := *r
		s.records[k] = &copied
	}
	for k, match := range m.matches {
		s.matches[k] = copyMatch(match)
	}
	for k, v := range m.allocations {
		s.allocations[k] = v
	}
	return s
}

func (m *MockRepository) restore(s mockSnapshot) {
	m.records = s.records
	m.matches = s.matches
	m.allocations = s.allocations
}

// mockTx implements Tx while the repository lock is held
type mockTx struct {
	repo     *MockRepository
	inserted []*splitmatch.SplitMatch
}

func (t *mockTx) GetRecords(ctx context.Context, tenantID string, ids []string) (map[string]*splitmatch.CandidateRecord, error) {
	result := make(map[string]*splitmatch.CandidateRecord, len(ids))
	for _, id := range ids {
		if r, ok := t.repo.records[key(tenantID, id)]; ok {
			copied := *r
			result[id] = &copied
		}
	}
	return result, nil
}

func (t *mockTx) GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	match, ok := t.repo.matches[key(tenantID, id)]
	if !ok {
		return nil, nil
	}
	return copyMatch(match), nil
}

func (t *mockTx) InsertSplitMatch(ctx context.Context, match *splitmatch.SplitMatch) error {
	t.repo.matches[key(match.TenantID, match.ID)] = copyMatch(match)
	t.inserted = append(t.inserted, copyMatch(match))
	return nil
}

func (t *mockTx) SetAllocationStatus(ctx context.Context, tenantID, recordID string, status splitmatch.AllocationStatus, splitMatchID string) (bool, error) {
	k := key(tenantID, recordID)
	record, ok := t.repo.records[k]
	if !ok || record.AllocationStatus == status {
		return false, nil
	}

	if status == splitmatch.Allocated {
		if _, taken := t.repo.allocations[k]; taken {
			return false, nil
		}
		t.repo.allocations[k] = splitMatchID
		record.AllocatedTo = splitMatchID
	} else {
		delete(t.repo.allocations, k)
		record.AllocatedTo = ""
	}

	record.AllocationStatus = status
	record.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (t *mockTx) TransitionSplitMatch(ctx context.Context, match *splitmatch.SplitMatch, from splitmatch.Status) (bool, error) {
	stored, ok := t.repo.matches[key(match.TenantID, match.ID)]
	if !ok || stored.Status != from {
		return false, nil
	}

	stored.Status = match.Status
	stored.MatchedAmountCents = match.MatchedAmountCents
	stored.RemainderCents = match.RemainderCents
	stored.UpdatedAt = match.UpdatedAt
	stored.ConfirmedAt = match.ConfirmedAt
	return true, nil
}

func copyMatch(match *splitmatch.SplitMatch) *splitmatch.SplitMatch {
	copied := *match
	copied.Components = append([]splitmatch.Component(nil), match.Components...)
	if match.ConfirmedAt != nil {
		confirmedAt := *match.ConfirmedAt
		copied.ConfirmedAt = &confirmedAt
	}
	return &copied
}

func containsKind(kinds []splitmatch.RecordKind, k splitmatch.RecordKind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
