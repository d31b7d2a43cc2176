package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/splitmatch/internal/api/dto"
	"github.com/eshaffer321/splitmatch/internal/application/service"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// RecordsHandler exposes the ledger projection.
type RecordsHandler struct {
	*Base
	ledger *service.LedgerService
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(ledger *service.LedgerService, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{Base: NewBase(logger), ledger: ledger}
}

// Upsert handles PUT /api/tenants/{tenantID}/records.
func (h *RecordsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req dto.UpsertRecordsRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, RequestError(err))
		return
	}

	records := make([]*splitmatch.CandidateRecord, 0, len(req.Records))
	for _, in := range req.Records {
		date, err := in.ParsedDate()
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
			return
		}
		records = append(records, &splitmatch.CandidateRecord{
			ID:          in.ID,
			Kind:        splitmatch.RecordKind(in.Kind),
			AmountCents: in.AmountCents,
			Date:        date,
			Description: in.Description,
		})
	}

	if err := h.ledger.UpsertRecords(r.Context(), chi.URLParam(r, "tenantID"), records); err != nil {
		h.WriteDomainError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.UpsertRecordsResponse{Upserted: len(records)})
}

// List handles GET /api/tenants/{tenantID}/records.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.RecordFilters{
		TenantID: chi.URLParam(r, "tenantID"),
		Status:   splitmatch.AllocationStatus(r.URL.Query().Get("status")),
		Kind:     splitmatch.RecordKind(r.URL.Query().Get("kind")),
		Limit:    ParseIntParam(r, "limit", 100),
		Offset:   ParseIntParam(r, "offset", 0),
	}

	records, err := h.ledger.ListRecords(r.Context(), filters)
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}

	response := dto.RecordListResponse{
		Records: make([]dto.RecordResponse, 0, len(records)),
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	}
	for _, rec := range records {
		response.Records = append(response.Records, toRecordResponse(rec))
	}

	h.WriteJSON(w, http.StatusOK, response)
}
