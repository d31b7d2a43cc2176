package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/splitmatch/internal/api/dto"
	"github.com/eshaffer321/splitmatch/internal/application/service"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// SuggestionsHandler serves ranked split suggestions.
type SuggestionsHandler struct {
	*Base
	suggestions *service.SuggestionService
}

// NewSuggestionsHandler creates a new suggestions handler.
func NewSuggestionsHandler(suggestions *service.SuggestionService, logger *slog.Logger) *SuggestionsHandler {
	return &SuggestionsHandler{Base: NewBase(logger), suggestions: suggestions}
}

// List handles GET /api/tenants/{tenantID}/transactions/{sourceID}/split-suggestions.
func (h *SuggestionsHandler) List(w http.ResponseWriter, r *http.Request) {
	tolerance, err := ParseOptionalInt64(r, "tolerance_cents")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	sourceID := chi.URLParam(r, "sourceID")
	suggestions, err := h.suggestions.FindPotentialSplitMatches(r.Context(), service.SuggestionRequest{
		TenantID:            chi.URLParam(r, "tenantID"),
		SourceTransactionID: sourceID,
		ToleranceCents:      tolerance,
		MatchType:           splitmatch.MatchType(r.URL.Query().Get("match_type")),
	})
	if err != nil {
		h.WriteDomainError(w, r, err)
		return
	}

	response := dto.SuggestionListResponse{
		SourceTransactionID: sourceID,
		Suggestions:         make([]dto.SuggestionResponse, 0, len(suggestions)),
	}
	for i, s := range suggestions {
		response.Suggestions = append(response.Suggestions, toSuggestionResponse(i+1, s))
	}

	h.WriteJSON(w, http.StatusOK, response)
}
