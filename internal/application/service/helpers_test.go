package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

const tenant = "tenant-1"

var day0 = time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func rec(id string, kind splitmatch.RecordKind, amount int64, dayOffset int) *splitmatch.CandidateRecord {
	return &splitmatch.CandidateRecord{
		ID:          id,
		TenantID:    tenant,
		Kind:        kind,
		AmountCents: amount,
		Date:        day0.AddDate(0, 0, dayOffset),
	}
}

func newMockRepo(records ...*splitmatch.CandidateRecord) *storage.MockRepository {
	repo := storage.NewMockRepository()
	for _, r := range records {
		repo.AddRecord(r)
	}
	return repo
}

func newSQLiteRepo(t *testing.T, records ...*splitmatch.CandidateRecord) *storage.Storage {
	t.Helper()
	store, err := storage.NewStorageWithLogger(t.TempDir()+"/splitmatch.db", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if len(records) > 0 {
		byTenant := make(map[string][]*splitmatch.CandidateRecord)
		for _, r := range records {
			byTenant[r.TenantID] = append(byTenant[r.TenantID], r)
		}
		for tenantID, rs := range byTenant {
			require.NoError(t, store.UpsertRecords(context.Background(), tenantID, rs))
		}
	}
	return store
}

func int64Ptr(v int64) *int64 {
	return &v
}

// stubProvider is a scripted storage.CandidateProvider.
type stubProvider struct {
	mock.Mock
}

func (p *stubProvider) GetRecord(ctx context.Context, tenantID, id string) (*splitmatch.CandidateRecord, error) {
	args := p.Called(ctx, tenantID, id)
	r, _ := args.Get(0).(*splitmatch.CandidateRecord)
	return r, args.Error(1)
}

func (p *stubProvider) ListUnallocatedCandidates(ctx context.Context, tenantID string, window storage.CandidateWindow) ([]*splitmatch.CandidateRecord, error) {
	args := p.Called(ctx, tenantID, window)
	rs, _ := args.Get(0).([]*splitmatch.CandidateRecord)
	return rs, args.Error(1)
}
