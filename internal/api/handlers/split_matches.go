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

// SplitMatchesHandler handles the split match lifecycle.
type SplitMatchesHandler struct {
	*Base
	matches     *service.SplitMatchService
	coordinator *service.ConfirmationCoordinator
}

// NewSplitMatchesHandler creates a new split matches handler.
func NewSplitMatchesHandler(matches *service.SplitMatchService, coordinator *service.ConfirmationCoordinator, logger *slog.Logger) *SplitMatchesHandler {
	return &SplitMatchesHandler{
		Base:        NewBase(logger),
		matches:     matches,
		coordinator: coordinator,
	}
}

// Create handles POST /api/tenants/{tenantID}/split-matches.
func (h *SplitMatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSplitMatchRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, RequestError(err))
		return
	}

	create := service.CreateRequest{
		TenantID:            chi.URLParam(r, "tenantID"),
		SourceTransactionID: req.SourceTransactionID,
		MatchType:           splitmatch.MatchType(req.MatchType),
		Components:          make([]service.ComponentInput, 0, len(req.Components)),
	}
	for _, c := range req.Components {
		create.Components = append(create.Components, service.ComponentInput{
			CandidateRecordID: c.CandidateRecordID,
			AmountCents:       c.AmountCents,
		})
	}

	m, err := h.matches.CreateSplitMatch(r.Context(), create)
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toSplitMatchResponse(m))
}

// List handles GET /api/tenants/{tenantID}/split-matches.
func (h *SplitMatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.matches.ListSplitMatches(r.Context(), storage.SplitMatchFilters{
		TenantID:            chi.URLParam(r, "tenantID"),
		Status:              splitmatch.Status(r.URL.Query().Get("status")),
		SourceTransactionID: r.URL.Query().Get("source_id"),
		Limit:               ParseIntParam(r, "limit", 50),
		Offset:              ParseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}

	response := dto.SplitMatchListResponse{
		SplitMatches: make([]dto.SplitMatchResponse, 0, len(result.Matches)),
		TotalCount:   result.TotalCount,
		Limit:        result.Limit,
		Offset:       result.Offset,
	}
	for _, m := range result.Matches {
		response.SplitMatches = append(response.SplitMatches, toSplitMatchResponse(m))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/tenants/{tenantID}/split-matches/{id}.
func (h *SplitMatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.matches.GetSplitMatch(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSplitMatchResponse(m))
}

// Confirm handles POST /api/tenants/{tenantID}/split-matches/{id}/confirm.
func (h *SplitMatchesHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	m, err := h.coordinator.ConfirmSplitMatch(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSplitMatchResponse(m))
}

// Reject handles POST /api/tenants/{tenantID}/split-matches/{id}/reject.
func (h *SplitMatchesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	m, err := h.matches.RejectSplitMatch(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSplitMatchResponse(m))
}
