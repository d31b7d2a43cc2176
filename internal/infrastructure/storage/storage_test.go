package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// insertPendingMatch stores a PENDING match with one component per record id
func insertPendingMatch(t *testing.T, repo Repository, tenantID, matchID, sourceID string, recordIDs ...string) *splitmatch.SplitMatch {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	m := &splitmatch.SplitMatch{
		ID:                  matchID,
		TenantID:            tenantID,
		SourceTransactionID: sourceID,
		MatchType:           splitmatch.OneToMany,
		TargetAmountCents:   3500 * int64(len(recordIDs)),
		Status:              splitmatch.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for i, id := range recordIDs {
		m.Components = append(m.Components, splitmatch.Component{
			ID:                fmt.Sprintf("%s-c%d", matchID, i),
			SplitMatchID:      matchID,
			CandidateRecordID: id,
			AmountCents:       3500,
			Position:          i,
		})
	}
	m.Recalculate()

	require.NoError(t, repo.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertSplitMatch(context.Background(), m)
	}))
	return m
}

func TestStorage_InsertAndGetSplitMatch(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("txn-1", splitmatch.KindTransaction, 7000, 0),
		record("inv-1", splitmatch.KindInvoice, 3500, 0),
		record("inv-2", splitmatch.KindInvoice, 3500, 0),
	)
	want := insertPendingMatch(t, store, "t1", "sm-1", "txn-1", "inv-1", "inv-2")

	got, err := store.GetSplitMatch(ctx, "t1", "sm-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, splitmatch.StatusPending, got.Status)
	assert.Equal(t, splitmatch.OneToMany, got.MatchType)
	assert.Equal(t, int64(7000), got.TargetAmountCents)
	assert.Equal(t, int64(7000), got.MatchedAmountCents)
	assert.Equal(t, int64(0), got.RemainderCents)
	assert.Nil(t, got.ConfirmedAt)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, []string{"inv-1", "inv-2"}, got.CandidateRecordIDs())

	// Records stay untouched by a pending match
	rec, err := store.GetRecord(ctx, "t1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.Unallocated, rec.AllocationStatus)
}

func TestStorage_GetSplitMatch_NotFound(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.GetSplitMatch(context.Background(), "t1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorage_ListSplitMatches(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("txn-1", splitmatch.KindTransaction, 3500, 0),
		record("txn-2", splitmatch.KindTransaction, 3500, 0),
		record("inv-1", splitmatch.KindInvoice, 3500, 0),
		record("inv-2", splitmatch.KindInvoice, 3500, 0),
	)
	insertPendingMatch(t, store, "t1", "sm-1", "txn-1", "inv-1")
	insertPendingMatch(t, store, "t1", "sm-2", "txn-2", "inv-2")
	insertPendingMatch(t, store, "t1", "sm-3", "txn-1", "inv-2")

	all, err := store.ListSplitMatches(ctx, SplitMatchFilters{TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalCount)
	assert.Len(t, all.Matches, 3)
	assert.Equal(t, defaultSplitMatchLimit, all.Limit)
	for _, m := range all.Matches {
		assert.Len(t, m.Components, 1, "components loaded for %s", m.ID)
	}

	bySource, err := store.ListSplitMatches(ctx, SplitMatchFilters{TenantID: "t1", SourceTransactionID: "txn-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, bySource.TotalCount)

	paged, err := store.ListSplitMatches(ctx, SplitMatchFilters{TenantID: "t1", Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, paged.TotalCount)
	assert.Len(t, paged.Matches, 1)

	confirmed, err := store.ListSplitMatches(ctx, SplitMatchFilters{TenantID: "t1", Status: splitmatch.StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, 0, confirmed.TotalCount)
	assert.Empty(t, confirmed.Matches)
}

func TestStorage_SetAllocationStatus_CompareAndSwap(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("txn-1", splitmatch.KindTransaction, 3500, 0),
		record("inv-1", splitmatch.KindInvoice, 3500, 0),
	)
	insertPendingMatch(t, store, "t1", "sm-1", "txn-1", "inv-1")
	insertPendingMatch(t, store, "t1", "sm-2", "txn-1", "inv-1")

	var first, second bool
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.SetAllocationStatus(ctx, "t1", "inv-1", splitmatch.Allocated, "sm-1")
		return err
	}))
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		var err error
		second, err = tx.SetAllocationStatus(ctx, "t1", "inv-1", splitmatch.Allocated, "sm-2")
		return err
	}))

	assert.True(t, first)
	assert.False(t, second, "second allocation must lose the compare-and-swap")

	rec, err := store.GetRecord(ctx, "t1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.Allocated, rec.AllocationStatus)
	assert.Equal(t, "sm-1", rec.AllocatedTo)

	var matchID string
	require.NoError(t, store.db.Get(&matchID, "SELECT split_match_id FROM allocations WHERE tenant_id = 't1' AND record_id = 'inv-1'"))
	assert.Equal(t, "sm-1", matchID)
}

func TestStorage_SetAllocationStatus_Release(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("txn-1", splitmatch.KindTransaction, 3500, 0),
		record("inv-1", splitmatch.KindInvoice, 3500, 0),
	)
	insertPendingMatch(t, store, "t1", "sm-1", "txn-1", "inv-1")

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.SetAllocationStatus(ctx, "t1", "inv-1", splitmatch.Allocated, "sm-1")
		require.True(t, ok)
		return err
	}))
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.SetAllocationStatus(ctx, "t1", "inv-1", splitmatch.Unallocated, "")
		require.True(t, ok)
		return err
	}))

	rec, err := store.GetRecord(ctx, "t1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.Unallocated, rec.AllocationStatus)
	assert.Empty(t, rec.AllocatedTo)

	var count int
	require.NoError(t, store.db.Get(&count, "SELECT COUNT(*) FROM allocations"))
	assert.Equal(t, 0, count)
}

func TestStorage_TransitionSplitMatch(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("txn-1", splitmatch.KindTransaction, 3500, 0),
		record("inv-1", splitmatch.KindInvoice, 3500, 0),
	)
	m := insertPendingMatch(t, store, "t1", "sm-1", "txn-1", "inv-1")

	confirmedAt := time.Now().UTC().Truncate(time.Second)
	m.Status = splitmatch.StatusConfirmed
	m.UpdatedAt = confirmedAt
	m.ConfirmedAt = &confirmedAt

	var ok bool
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		var err error
		ok, err = tx.TransitionSplitMatch(ctx, m, splitmatch.StatusPending)
		return err
	}))
	assert.True(t, ok)

	// The stored status is no longer PENDING
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		var err error
		ok, err = tx.TransitionSplitMatch(ctx, m, splitmatch.StatusPending)
		return err
	}))
	assert.False(t, ok)

	got, err := store.GetSplitMatch(ctx, "t1", "sm-1")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, confirmedAt.Equal(*got.ConfirmedAt))
}

func TestStorage_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("txn-1", splitmatch.KindTransaction, 3500, 0),
		record("inv-1", splitmatch.KindInvoice, 3500, 0),
	)
	insertPendingMatch(t, store, "t1", "sm-1", "txn-1", "inv-1")

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.SetAllocationStatus(ctx, "t1", "inv-1", splitmatch.Allocated, "sm-1")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := store.GetRecord(ctx, "t1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.Unallocated, rec.AllocationStatus)
}

func TestStorage_WithTx_GetRecords(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedRecords(t, store, "t1",
		record("inv-1", splitmatch.KindInvoice, 100, 0),
		record("inv-2", splitmatch.KindInvoice, 200, 0),
	)

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		got, err := tx.GetRecords(ctx, "t1", []string{"inv-1", "inv-2", "missing"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, int64(200), got["inv-2"].AmountCents)
		return nil
	}))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", ErrSerialization, true},
		{"wrapped serialization", fmt.Errorf("confirm: %w", ErrSerialization), true},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked", fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), true},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"domain", &splitmatch.StaleMatchError{SplitMatchID: "sm-1", CandidateRecordID: "inv-1"}, false},
		{"other", errors.New("disk full"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
