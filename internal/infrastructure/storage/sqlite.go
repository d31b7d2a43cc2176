package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// ================================================================
// LEDGER RECORDS
// ================================================================

// GetRecord retrieves a ledger record, or nil if it does not exist
func (s *Storage) GetRecord(ctx context.Context, tenantID, id string) (*splitmatch.CandidateRecord, error) {
	records, err := getRecords(ctx, s.db, tenantID, []string{id})
	if err != nil {
		return nil, err
	}
	return records[id], nil
}

// ListUnallocatedCandidates returns UNALLOCATED records of the tenant inside the window
func (s *Storage) ListUnallocatedCandidates(ctx context.Context, tenantID string, window CandidateWindow) ([]*splitmatch.CandidateRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(recordColumns...).From("ledger_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("allocation_status", string(splitmatch.Unallocated)),
	)

	if len(window.Kinds) > 0 {
		kinds := make([]interface{}, 0, len(window.Kinds))
		for _, k := range window.Kinds {
			kinds = append(kinds, string(k))
		}
		sb.Where(sb.In("kind", kinds...))
	}

	switch window.Direction {
	case splitmatch.DirectionCredit:
		sb.Where(sb.GreaterThan("amount_cents", 0))
	case splitmatch.DirectionDebit:
		sb.Where(sb.LessThan("amount_cents", 0))
	}

	if !window.From.IsZero() {
		sb.Where(sb.GreaterEqualThan("record_date", window.From.UTC()))
	}
	if !window.To.IsZero() {
		sb.Where(sb.LessEqualThan("record_date", window.To.UTC()))
	}
	if window.MaxAbsAmountCents > 0 {
		sb.Where("ABS(amount_cents) <= " + sb.Var(window.MaxAbsAmountCents))
	}
	if len(window.ExcludeIDs) > 0 {
		excluded := make([]interface{}, 0, len(window.ExcludeIDs))
		for _, id := range window.ExcludeIDs {
			excluded = append(excluded, id)
		}
		sb.Where(sb.NotIn("id", excluded...))
	}

	if !window.Anchor.IsZero() {
		sb.OrderBy(
			"ABS(julianday(record_date) - julianday("+sb.Var(sqliteTime(window.Anchor))+"))",
			"id ASC",
		)
	} else {
		sb.OrderBy("record_date ASC", "id ASC")
	}

	if window.Limit > 0 {
		sb.Limit(window.Limit)
	}

	query, args := sb.Build()

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	return toRecords(rows), nil
}

// ListRecords returns records matching the given filters
func (s *Storage) ListRecords(ctx context.Context, filters RecordFilters) ([]*splitmatch.CandidateRecord, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(recordColumns...).From("ledger_records")
	sb.Where(sb.Equal("tenant_id", filters.TenantID))
	if filters.Status != "" {
		sb.Where(sb.Equal("allocation_status", string(filters.Status)))
	}
	if filters.Kind != "" {
		sb.Where(sb.Equal("kind", string(filters.Kind)))
	}
	sb.OrderBy("record_date DESC", "id ASC")
	sb.Limit(limit).Offset(filters.Offset)

	query, args := sb.Build()

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return toRecords(rows), nil
}

// UpsertRecords inserts or updates records in one transaction
func (s *Storage) UpsertRecords(ctx context.Context, tenantID string, records []*splitmatch.CandidateRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.withSQLTx(ctx, func(q *sqlx.Tx) error {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		existing, err := getRecords(ctx, q, tenantID, ids)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, r := range records {
			current, ok := existing[r.ID]
			if ok && current.IsAllocated() && (current.AmountCents != r.AmountCents || current.Kind != r.Kind) {
				return &splitmatch.ConflictError{
					CandidateRecordID: r.ID,
					Reason:            "allocated records can not change amount or kind",
				}
			}

			_, err := q.ExecContext(ctx, `
			INSERT INTO ledger_records
			(tenant_id, id, kind, amount_cents, record_date, allocation_status,
			 allocated_to, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, '', ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				kind = excluded.kind,
				amount_cents = excluded.amount_cents,
				record_date = excluded.record_date,
				description = excluded.description,
				updated_at = excluded.updated_at
			`,
				tenantID,
				r.ID,
				string(r.Kind),
				r.AmountCents,
				r.Date.UTC(),
				string(splitmatch.Unallocated),
				r.Description,
				now,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
			}
		}

		return nil
	})
}

// getRecords loads records keyed by id
func getRecords(ctx context.Context, q sqlx.QueryerContext, tenantID string, ids []string) (map[string]*splitmatch.CandidateRecord, error) {
	result := make(map[string]*splitmatch.CandidateRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(recordColumns...).From("ledger_records")
	sb.Where(sb.Equal("tenant_id", tenantID), sb.In("id", args...))

	query, queryArgs := sb.Build()

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, queryArgs...); err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	for _, row := range rows {
		result[row.ID] = row.toDomain()
	}

	return result, nil
}

func toRecords(rows []recordRow) []*splitmatch.CandidateRecord {
	records := make([]*splitmatch.CandidateRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records
}

// ================================================================
// SPLIT MATCHES
// ================================================================

// GetSplitMatch retrieves a match with its components, or nil if it does not exist
func (s *Storage) GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	return getSplitMatch(ctx, s.db, tenantID, id)
}

// ListSplitMatches returns matches matching the given filters with pagination
func (s *Storage) ListSplitMatches(ctx context.Context, filters SplitMatchFilters) (*SplitMatchListResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultSplitMatchLimit
	}

	where := func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("tenant_id", filters.TenantID))
		if filters.Status != "" {
			sb.Where(sb.Equal("status", string(filters.Status)))
		}
		if filters.SourceTransactionID != "" {
			sb.Where(sb.Equal("source_transaction_id", filters.SourceTransactionID))
		}
	}

	countSB := sqlbuilder.SQLite.NewSelectBuilder()
	countSB.Select("COUNT(*)").From("split_matches")
	where(countSB)
	countQuery, countArgs := countSB.Build()

	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, countQuery, countArgs...); err != nil {
		return nil, fmt.Errorf("failed to count split matches: %w", err)
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(splitMatchColumns...).From("split_matches")
	where(sb)
	sb.OrderBy("created_at DESC", "id ASC")
	sb.Limit(limit).Offset(filters.Offset)
	query, args := sb.Build()

	var rows []splitMatchRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list split matches: %w", err)
	}

	matches := make([]*splitmatch.SplitMatch, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, row.toDomain())
		ids = append(ids, row.ID)
	}

	components, err := getComponents(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if c, ok := components[m.ID]; ok {
			m.Components = c
		}
	}

	return &SplitMatchListResult{
		Matches:    matches,
		TotalCount: total,
		Limit:      limit,
		Offset:     filters.Offset,
	}, nil
}

func getSplitMatch(ctx context.Context, q sqlx.QueryerContext, tenantID, id string) (*splitmatch.SplitMatch, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(splitMatchColumns...).From("split_matches")
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))
	query, args := sb.Build()

	var row splitMatchRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get split match: %w", err)
	}

	m := row.toDomain()
	components, err := getComponents(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	if c, ok := components[id]; ok {
		m.Components = c
	}

	return m, nil
}

// getComponents loads components for the given matches, in position order
func getComponents(ctx context.Context, q sqlx.QueryerContext, matchIDs []string) (map[string][]splitmatch.Component, error) {
	result := make(map[string][]splitmatch.Component, len(matchIDs))
	if len(matchIDs) == 0 {
		return result, nil
	}

	args := make([]interface{}, 0, len(matchIDs))
	for _, id := range matchIDs {
		args = append(args, id)
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(componentColumns...).From("split_match_components")
	sb.Where(sb.In("split_match_id", args...))
	sb.OrderBy("split_match_id ASC", "position ASC")
	query, queryArgs := sb.Build()

	var rows []componentRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, queryArgs...); err != nil {
		return nil, fmt.Errorf("failed to load components: %w", err)
	}

	for _, row := range rows {
		result[row.SplitMatchID] = append(result[row.SplitMatchID], row.toDomain())
	}

	return result, nil
}

// ================================================================
// TRANSACTION
// ================================================================

// txStore implements Tx over a single sqlx transaction
type txStore struct {
	tx *sqlx.Tx
}

var _ Tx = (*txStore)(nil)

func (t *txStore) GetRecords(ctx context.Context, tenantID string, ids []string) (map[string]*splitmatch.CandidateRecord, error) {
	return getRecords(ctx, t.tx, tenantID, ids)
}

func (t *txStore) GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	return getSplitMatch(ctx, t.tx, tenantID, id)
}

func (t *txStore) InsertSplitMatch(ctx context.Context, m *splitmatch.SplitMatch) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("split_matches")
	ib.Cols(splitMatchColumns...)
	ib.Values(
		m.ID,
		m.TenantID,
		m.SourceTransactionID,
		string(m.MatchType),
		m.TargetAmountCents,
		m.MatchedAmountCents,
		m.RemainderCents,
		string(m.Status),
		m.CreatedAt.UTC(),
		m.UpdatedAt.UTC(),
		nullTime(m.ConfirmedAt),
	)
	query, args := ib.Build()

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert split match: %w", err)
	}

	if len(m.Components) == 0 {
		return nil
	}

	cb := sqlbuilder.SQLite.NewInsertBuilder()
	cb.InsertInto("split_match_components")
	cb.Cols("id", "split_match_id", "tenant_id", "candidate_record_id", "amount_cents", "position")
	for _, c := range m.Components {
		cb.Values(c.ID, m.ID, m.TenantID, c.CandidateRecordID, c.AmountCents, c.Position)
	}
	query, args = cb.Build()

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert split match components: %w", err)
	}

	return nil
}

func (t *txStore) SetAllocationStatus(ctx context.Context, tenantID, recordID string, status splitmatch.AllocationStatus, splitMatchID string) (bool, error) {
	now := time.Now().UTC()

	from := splitmatch.Unallocated
	allocatedTo := splitMatchID
	if status == splitmatch.Unallocated {
		from = splitmatch.Allocated
		allocatedTo = ""
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_records
		SET allocation_status = ?, allocated_to = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND allocation_status = ?
	`, string(status), allocatedTo, now, tenantID, recordID, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update allocation status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if status == splitmatch.Unallocated {
		if _, err := t.tx.ExecContext(ctx, `
			DELETE FROM allocations WHERE tenant_id = ? AND record_id = ?
		`, tenantID, recordID); err != nil {
			return false, fmt.Errorf("failed to release allocation: %w", err)
		}
		return true, nil
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO allocations (tenant_id, record_id, split_match_id, allocated_at)
		VALUES (?, ?, ?, ?)
	`, tenantID, recordID, splitMatchID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert allocation: %w", err)
	}

	return true, nil
}

func (t *txStore) TransitionSplitMatch(ctx context.Context, m *splitmatch.SplitMatch, from splitmatch.Status) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE split_matches
		SET status = ?, matched_amount_cents = ?, remainder_cents = ?,
		    updated_at = ?, confirmed_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`,
		string(m.Status),
		m.MatchedAmountCents,
		m.RemainderCents,
		m.UpdatedAt.UTC(),
		nullTime(m.ConfirmedAt),
		m.TenantID,
		m.ID,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition split match: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
