package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/eshaffer321/splitmatch/internal/api/dto"
)

// Pinger is implemented by storage backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
	db Pinger
}

// NewHealthHandler creates a new health handler. db may be nil.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{Base: NewBase(nil), db: db}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.WriteJSON(w, http.StatusServiceUnavailable, dto.HealthResponse{
				Status:    "unavailable",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}

	h.WriteJSON(w, http.StatusOK, dto.NewHealthResponse())
}
