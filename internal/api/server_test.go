package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/splitmatch/internal/api"
	"github.com/eshaffer321/splitmatch/internal/api/dto"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

const tenant = "acme"

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewServer(api.DefaultConfig(), repo, logger), repo
}

func seed(repo *storage.MockRepository) {
	add := func(id string, kind splitmatch.RecordKind, amount int64, offset int) {
		repo.AddRecord(&splitmatch.CandidateRecord{
			ID:          id,
			TenantID:    tenant,
			Kind:        kind,
			AmountCents: amount,
			Date:        day0.AddDate(0, 0, offset),
		})
	}
	add("txn-1", splitmatch.KindTransaction, 10000, 0)
	add("inv-a", splitmatch.KindInvoice, 3500, -1)
	add("inv-b", splitmatch.KindInvoice, 4000, -2)
	add("inv-c", splitmatch.KindInvoice, 2500, -3)
}

func do(t *testing.T, server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func createBody(ids ...string) dto.CreateSplitMatchRequest {
	req := dto.CreateSplitMatchRequest{SourceTransactionID: "txn-1", MatchType: "ONE_TO_MANY"}
	for _, id := range ids {
		req.Components = append(req.Components, dto.ComponentRequest{CandidateRecordID: id})
	}
	return req
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[dto.HealthResponse](t, rec).Status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	do(t, server, http.MethodGet, "/health", nil)

	rec := do(t, server, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "splitmatch_http_requests_total")
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.MetricsEnabled = false
	server := api.NewServer(cfg, storage.NewMockRepository(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := do(t, server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SuggestionsEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	seed(repo)

	rec := do(t, server, http.MethodGet, "/api/tenants/acme/transactions/txn-1/split-suggestions?tolerance_cents=0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[dto.SuggestionListResponse](t, rec)
	require.NotEmpty(t, resp.Suggestions)
	best := resp.Suggestions[0]
	assert.Equal(t, 1, best.Rank)
	assert.Equal(t, "ONE_TO_MANY", best.MatchType)
	assert.Equal(t, int64(0), best.RemainderCents)
	assert.Equal(t, "100.00", best.TargetAmount)
	assert.Equal(t, "0.00", best.Remainder)
	require.Len(t, best.Components, 3)
	assert.Equal(t, "35.00", best.Components[0].Amount)
}

func TestServer_SuggestionsErrors(t *testing.T) {
	server, repo := newTestServer(t)
	seed(repo)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{"unknown source", "/api/tenants/acme/transactions/nope/split-suggestions", http.StatusNotFound, dto.ErrCodeNotFound},
		{"other tenant", "/api/tenants/other/transactions/txn-1/split-suggestions", http.StatusNotFound, dto.ErrCodeNotFound},
		{"negative tolerance", "/api/tenants/acme/transactions/txn-1/split-suggestions?tolerance_cents=-1", http.StatusBadRequest, dto.ErrCodeValidation},
		{"non-numeric tolerance", "/api/tenants/acme/transactions/txn-1/split-suggestions?tolerance_cents=abc", http.StatusBadRequest, dto.ErrCodeValidation},
		{"bad match type", "/api/tenants/acme/transactions/txn-1/split-suggestions?match_type=MANY_TO_ONE", http.StatusBadRequest, dto.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[dto.APIError](t, rec).Code)
		})
	}
}

func TestServer_SplitMatchLifecycle(t *testing.T) {
	server, repo := newTestServer(t)
	seed(repo)

	rec := do(t, server, http.MethodPost, "/api/tenants/acme/split-matches", createBody("inv-a", "inv-b", "inv-c"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[dto.SplitMatchResponse](t, rec)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, "100.00", created.MatchedAmount)
	assert.Empty(t, created.ConfirmedAt)

	rec = do(t, server, http.MethodGet, "/api/tenants/acme/split-matches/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[dto.SplitMatchResponse](t, rec).ID)

	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/"+created.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[dto.SplitMatchResponse](t, rec)
	assert.Equal(t, "CONFIRMED", confirmed.Status)
	assert.NotEmpty(t, confirmed.ConfirmedAt)

	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/"+created.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, dto.ErrCodeInvalidState, decode[dto.APIError](t, rec).Code)

	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/"+created.ID+"/reject", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/tenants/acme/records?status=ALLOCATED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.RecordListResponse](t, rec).Records, 4)

	rec = do(t, server, http.MethodGet, "/api/tenants/acme/split-matches?status=CONFIRMED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.SplitMatchListResponse](t, rec)
	assert.Equal(t, 1, list.TotalCount)
}

func TestServer_StaleConfirmation(t *testing.T) {
	server, repo := newTestServer(t)
	seed(repo)
	repo.AddRecord(&splitmatch.CandidateRecord{
		ID: "txn-2", TenantID: tenant, Kind: splitmatch.KindTransaction, AmountCents: 4000, Date: day0,
	})

	first := decode[dto.SplitMatchResponse](t, do(t, server, http.MethodPost, "/api/tenants/acme/split-matches", createBody("inv-a", "inv-b", "inv-c")))

	second := createBody("inv-b")
	second.SourceTransactionID = "txn-2"
	rec := do(t, server, http.MethodPost, "/api/tenants/acme/split-matches", second)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	secondMatch := decode[dto.SplitMatchResponse](t, rec)

	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/"+first.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/"+secondMatch.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	apiErr := decode[dto.APIError](t, rec)
	assert.Equal(t, dto.ErrCodeStaleMatch, apiErr.Code)
	assert.Contains(t, apiErr.Message, "inv-b")

	// The stale match can still be rejected
	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/"+secondMatch.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "REJECTED", decode[dto.SplitMatchResponse](t, rec).Status)
}

func TestServer_CreateSplitMatchErrors(t *testing.T) {
	server, repo := newTestServer(t)
	seed(repo)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"source_transaction_id":`, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"unknown field", `{"source_transaction_id":"txn-1","match_type":"ONE_TO_MANY","components":[{"candidate_record_id":"inv-a"}],"x":1}`, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"missing components", `{"source_transaction_id":"txn-1","match_type":"ONE_TO_MANY"}`, http.StatusBadRequest, dto.ErrCodeValidation},
		{"bad match type", `{"source_transaction_id":"txn-1","match_type":"ANY","components":[{"candidate_record_id":"inv-a"}]}`, http.StatusBadRequest, dto.ErrCodeValidation},
		{"duplicate component", `{"source_transaction_id":"txn-1","match_type":"ONE_TO_MANY","components":[{"candidate_record_id":"inv-a"},{"candidate_record_id":"inv-a"}]}`, http.StatusBadRequest, dto.ErrCodeValidation},
		{"amount mismatch", `{"source_transaction_id":"txn-1","match_type":"ONE_TO_MANY","components":[{"candidate_record_id":"inv-a","amount_cents":1}]}`, http.StatusConflict, dto.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tenants/acme/split-matches", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			server.Router().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[dto.APIError](t, rec).Code)
		})
	}
}

func TestServer_GetUnknownSplitMatch(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(t, server, http.MethodGet, "/api/tenants/acme/split-matches/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/tenants/acme/split-matches/missing/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RecordsEndpoints(t *testing.T) {
	server, repo := newTestServer(t)

	body := dto.UpsertRecordsRequest{Records: []dto.RecordInput{
		{ID: "txn-9", Kind: "TRANSACTION", AmountCents: -1999, Date: "2024-06-01"},
		{ID: "pay-9", Kind: "PAYMENT", AmountCents: 1999, Date: "2024-05-30T12:00:00Z", Description: "supplier refund"},
	}}
	rec := do(t, server, http.MethodPut, "/api/tenants/acme/records", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[dto.UpsertRecordsResponse](t, rec).Upserted)

	stored, err := repo.GetRecord(context.Background(), tenant, "pay-9")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "supplier refund", stored.Description)

	rec = do(t, server, http.MethodGet, "/api/tenants/acme/records?kind=TRANSACTION", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.RecordListResponse](t, rec)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "-19.99", list.Records[0].Amount)
	assert.Equal(t, "2024-06-01", list.Records[0].Date)
	assert.Equal(t, "UNALLOCATED", list.Records[0].AllocationStatus)

	bad := dto.UpsertRecordsRequest{Records: []dto.RecordInput{{ID: "x", Kind: "INVOICE", Date: "June 1st"}}}
	rec = do(t, server, http.MethodPut, "/api/tenants/acme/records", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/tenants/acme/records?status=MAYBE", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
