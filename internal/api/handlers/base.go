package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/splitmatch/internal/api/dto"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// ErrMalformedBody marks a request body that is not decodable JSON.
var ErrMalformedBody = errors.New("malformed request body")

// maxBodyBytes caps request bodies; a bulk upsert of 1000 records fits well inside.
const maxBodyBytes = 1 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteDomainError maps a service error onto a status code and error body.
func (b *Base) WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := StatusFor(err)
	if status == http.StatusInternalServerError {
		b.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	b.WriteError(w, status, apiErr)
}

// StatusFor classifies an error from the service layer.
func StatusFor(err error) (int, dto.APIError) {
	var (
		validation *splitmatch.ValidationError
		notFound   *splitmatch.NotFoundError
		tooMany    *splitmatch.TooManyCandidatesError
		stale      *splitmatch.StaleMatchError
		conflict   *splitmatch.ConflictError
		transition *splitmatch.InvalidStateTransitionError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, dto.ValidationError(validation.Error())
	case errors.As(err, &tooMany):
		return http.StatusUnprocessableEntity, dto.NewAPIError(dto.ErrCodeTooManyCandidates, tooMany.Error())
	case errors.As(err, &notFound):
		return http.StatusNotFound, dto.NotFoundError(notFound.Resource, notFound.ID)
	case errors.As(err, &stale):
		return http.StatusConflict, dto.NewAPIError(dto.ErrCodeStaleMatch, stale.Error())
	case errors.As(err, &transition):
		return http.StatusConflict, dto.NewAPIError(dto.ErrCodeInvalidState, transition.Error())
	case errors.As(err, &conflict):
		return http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, conflict.Error())
	}
	return http.StatusInternalServerError, dto.InternalError()
}

// DecodeJSON reads a size-limited JSON body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return dto.Validate(dst)
}

// RequestError maps a DecodeJSON failure to its API error.
func RequestError(err error) dto.APIError {
	if errors.Is(err, ErrMalformedBody) {
		return dto.BadRequestError(err.Error())
	}
	return dto.ValidationError(err.Error())
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseOptionalInt64 parses an integer query parameter, returning nil when it
// is absent.
func ParseOptionalInt64(r *http.Request, name string) (*int64, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &parsed, nil
}
