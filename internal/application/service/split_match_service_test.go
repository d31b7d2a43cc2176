package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

func newSplitMatchService(repo storage.Repository) *SplitMatchService {
	svc := NewSplitMatchService(repo, 10, testLogger())
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	svc.now = func() time.Time { return day0 }
	return svc
}

func oneToManyRecords() []*splitmatch.CandidateRecord {
	return []*splitmatch.CandidateRecord{
		rec("txn-1", splitmatch.KindTransaction, 10000, 0),
		rec("inv-a", splitmatch.KindInvoice, 3500, -1),
		rec("inv-b", splitmatch.KindInvoice, 4000, -2),
		rec("inv-c", splitmatch.KindInvoice, 2500, -3),
		rec("pay-1", splitmatch.KindPayment, 2500, -3),
	}
}

func createReq(ids ...string) CreateRequest {
	req := CreateRequest{
		TenantID:            tenant,
		SourceTransactionID: "txn-1",
		MatchType:           splitmatch.OneToMany,
	}
	for _, id := range ids {
		req.Components = append(req.Components, ComponentInput{CandidateRecordID: id})
	}
	return req
}

func TestSplitMatchService_CreateSplitMatch(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	svc := newSplitMatchService(repo)

	m, err := svc.CreateSplitMatch(context.Background(), createReq("inv-a", "inv-b", "inv-c"))
	require.NoError(t, err)

	assert.Equal(t, "id-1", m.ID)
	assert.Equal(t, splitmatch.StatusPending, m.Status)
	assert.Equal(t, int64(10000), m.TargetAmountCents)
	assert.Equal(t, int64(10000), m.MatchedAmountCents)
	assert.Equal(t, int64(0), m.RemainderCents)
	assert.Equal(t, []string{"inv-a", "inv-b", "inv-c"}, m.CandidateRecordIDs())
	assert.True(t, m.CreatedAt.Equal(day0))
	assert.Nil(t, m.ConfirmedAt)
	for i, c := range m.Components {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, m.ID, c.SplitMatchID)
	}

	// Records are not touched until confirmation
	r, err := repo.GetRecord(context.Background(), tenant, "inv-a")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.Unallocated, r.AllocationStatus)

	require.Len(t, repo.InsertedMatches, 1)
}

func TestSplitMatchService_CreateFromSuggestion(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	suggester := NewSuggestionService(repo, DefaultSuggestionConfig(), testLogger())
	svc := newSplitMatchService(repo)

	suggestions, err := suggester.FindPotentialSplitMatches(context.Background(), SuggestionRequest{
		TenantID:            tenant,
		SourceTransactionID: "txn-1",
		ToleranceCents:      int64Ptr(0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	m, err := svc.CreateSplitMatch(context.Background(), CreateRequestFromSuggestion(tenant, suggestions[0]))
	require.NoError(t, err)
	assert.Equal(t, suggestions[0].MatchedAmountCents, m.MatchedAmountCents)
	assert.Equal(t, suggestions[0].RemainderCents, m.RemainderCents)
	assert.Equal(t, componentIDs(suggestions[0]), m.CandidateRecordIDs())
}

func TestSplitMatchService_CreateKeepsRemainder(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	svc := newSplitMatchService(repo)

	m, err := svc.CreateSplitMatch(context.Background(), createReq("inv-a", "inv-b"))
	require.NoError(t, err)
	assert.Equal(t, int64(7500), m.MatchedAmountCents)
	assert.Equal(t, int64(2500), m.RemainderCents)
}

func TestSplitMatchService_CreateValidation(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	repo.AddRecord(&splitmatch.CandidateRecord{ID: "inv-other", TenantID: "tenant-2", Kind: splitmatch.KindInvoice, AmountCents: 100, Date: day0})
	svc := newSplitMatchService(repo)

	tooMany := createReq()
	for i := 0; i < 11; i++ {
		tooMany.Components = append(tooMany.Components, ComponentInput{CandidateRecordID: fmt.Sprintf("inv-%d", i)})
	}

	wrongType := createReq("inv-a")
	wrongType.MatchType = splitmatch.ManyToOne

	negative := createReq("inv-a")
	negative.Components[0].AmountCents = -5

	noTenant := createReq("inv-a")
	noTenant.TenantID = " "

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"blank tenant", noTenant},
		{"no components", createReq()},
		{"too many components", tooMany},
		{"duplicate component", createReq("inv-a", "inv-a")},
		{"source as component", createReq("inv-a", "txn-1")},
		{"unknown component", createReq("inv-a", "missing")},
		{"component of another tenant", createReq("inv-a", "inv-other")},
		{"payment against a credit", createReq("inv-a", "pay-1")},
		{"wrong match type for source", wrongType},
		{"negative amount", negative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSplitMatch(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, splitmatch.IsValidation(err), "unexpected error: %v", err)
		})
	}

	assert.Empty(t, repo.InsertedMatches)
}

func TestSplitMatchService_CreateUnknownSource(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	svc := newSplitMatchService(repo)

	req := createReq("inv-a")
	req.SourceTransactionID = "txn-missing"

	_, err := svc.CreateSplitMatch(context.Background(), req)
	assert.True(t, splitmatch.IsValidation(err))
}

func TestSplitMatchService_CreateConflicts(t *testing.T) {
	records := oneToManyRecords()
	records[1].AllocationStatus = splitmatch.Allocated // inv-a
	repo := newMockRepo(records...)
	svc := newSplitMatchService(repo)

	_, err := svc.CreateSplitMatch(context.Background(), createReq("inv-a", "inv-b"))
	require.Error(t, err)
	var conflict *splitmatch.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "inv-a", conflict.CandidateRecordID)

	changed := createReq("inv-b")
	changed.Components[0].AmountCents = 3999
	_, err = svc.CreateSplitMatch(context.Background(), changed)
	assert.True(t, splitmatch.IsConflict(err))
}

func TestSplitMatchService_CreateAllocatedSource(t *testing.T) {
	records := oneToManyRecords()
	records[0].AllocationStatus = splitmatch.Allocated
	repo := newMockRepo(records...)
	svc := newSplitMatchService(repo)

	_, err := svc.CreateSplitMatch(context.Background(), createReq("inv-a"))
	assert.True(t, splitmatch.IsConflict(err))
}

func TestSplitMatchService_RejectSplitMatch(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	svc := newSplitMatchService(repo)
	ctx := context.Background()

	m, err := svc.CreateSplitMatch(ctx, createReq("inv-a", "inv-b", "inv-c"))
	require.NoError(t, err)

	rejected, err := svc.RejectSplitMatch(ctx, tenant, m.ID)
	require.NoError(t, err)
	assert.Equal(t, splitmatch.StatusRejected, rejected.Status)
	assert.Nil(t, rejected.ConfirmedAt)

	// Idempotent
	again, err := svc.RejectSplitMatch(ctx, tenant, m.ID)
	require.NoError(t, err)
	assert.Equal(t, splitmatch.StatusRejected, again.Status)

	// No side effect on records
	for _, id := range []string{"txn-1", "inv-a", "inv-b", "inv-c"} {
		r, err := repo.GetRecord(ctx, tenant, id)
		require.NoError(t, err)
		assert.Equal(t, splitmatch.Unallocated, r.AllocationStatus, id)
	}
}

func TestSplitMatchService_RejectConfirmedFails(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	repo.AddSplitMatch(&splitmatch.SplitMatch{
		ID:                  "sm-confirmed",
		TenantID:            tenant,
		SourceTransactionID: "txn-1",
		MatchType:           splitmatch.OneToMany,
		Status:              splitmatch.StatusConfirmed,
	})
	svc := newSplitMatchService(repo)

	_, err := svc.RejectSplitMatch(context.Background(), tenant, "sm-confirmed")
	require.Error(t, err)
	assert.True(t, splitmatch.IsInvalidTransition(err))

	stored, err := repo.GetSplitMatch(context.Background(), tenant, "sm-confirmed")
	require.NoError(t, err)
	assert.Equal(t, splitmatch.StatusConfirmed, stored.Status)
}

func TestSplitMatchService_RejectNotFound(t *testing.T) {
	svc := newSplitMatchService(newMockRepo())

	_, err := svc.RejectSplitMatch(context.Background(), tenant, "nope")
	assert.True(t, splitmatch.IsNotFound(err))

	_, err = svc.RejectSplitMatch(context.Background(), "", "nope")
	assert.True(t, splitmatch.IsValidation(err))
}

func TestSplitMatchService_GetAndList(t *testing.T) {
	repo := newMockRepo(oneToManyRecords()...)
	svc := newSplitMatchService(repo)
	ctx := context.Background()

	m, err := svc.CreateSplitMatch(ctx, createReq("inv-a"))
	require.NoError(t, err)

	got, err := svc.GetSplitMatch(ctx, tenant, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = svc.GetSplitMatch(ctx, tenant, "missing")
	assert.True(t, splitmatch.IsNotFound(err))

	_, err = svc.GetSplitMatch(ctx, "tenant-2", m.ID)
	assert.True(t, splitmatch.IsNotFound(err))

	list, err := svc.ListSplitMatches(ctx, storage.SplitMatchFilters{TenantID: tenant, Status: splitmatch.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)

	_, err = svc.ListSplitMatches(ctx, storage.SplitMatchFilters{TenantID: tenant, Status: "DONE"})
	assert.True(t, splitmatch.IsValidation(err))
}

func TestSplitMatchService_CreateAgainstSQLite(t *testing.T) {
	store := newSQLiteRepo(t, oneToManyRecords()...)
	svc := NewSplitMatchService(store, 10, testLogger())
	ctx := context.Background()

	m, err := svc.CreateSplitMatch(ctx, createReq("inv-a", "inv-b", "inv-c"))
	require.NoError(t, err)

	got, err := svc.GetSplitMatch(ctx, tenant, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.CandidateRecordIDs(), got.CandidateRecordIDs())
	assert.Equal(t, int64(0), got.RemainderCents)

	rejected, err := svc.RejectSplitMatch(ctx, tenant, m.ID)
	require.NoError(t, err)
	assert.Equal(t, splitmatch.StatusRejected, rejected.Status)
}
