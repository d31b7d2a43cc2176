package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/domain/validator"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/metrics"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// ComponentInput is one chosen record in a create request. A zero amount
// takes the record's stored amount.
type ComponentInput struct {
	CandidateRecordID string
	AmountCents       int64
}

// CreateRequest holds parameters for creating a PENDING split match.
type CreateRequest struct {
	TenantID            string
	SourceTransactionID string
	MatchType           splitmatch.MatchType
	Components          []ComponentInput
}

// CreateRequestFromSuggestion builds a create request from a suggestion.
func CreateRequestFromSuggestion(tenantID string, s splitmatch.Suggestion) CreateRequest {
	req := CreateRequest{
		TenantID:            tenantID,
		SourceTransactionID: s.SourceTransactionID,
		MatchType:           s.MatchType,
		Components:          make([]ComponentInput, 0, len(s.Components)),
	}
	for _, c := range s.Components {
		req.Components = append(req.Components, ComponentInput{
			CandidateRecordID: c.CandidateRecordID,
			AmountCents:       c.AmountCents,
		})
	}
	return req
}

// SplitMatchService creates, rejects and reads split matches.
type SplitMatchService struct {
	repo     storage.Repository
	maxItems int
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewSplitMatchService creates a new split match service.
func NewSplitMatchService(repo storage.Repository, maxItems int, logger *slog.Logger) *SplitMatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SplitMatchService{
		repo:     repo,
		maxItems: maxItems,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// CreateSplitMatch validates the component set and persists a PENDING match.
// Candidate records are not touched.
func (s *SplitMatchService) CreateSplitMatch(ctx context.Context, req CreateRequest) (*splitmatch.SplitMatch, error) {
	match, err := s.createSplitMatch(ctx, req)
	if err != nil {
		metrics.RecordTransition("create", outcomeFor(err))
		if splitmatch.IsConflict(err) {
			s.logger.Warn("split match creation conflicted",
				"tenant_id", req.TenantID,
				"source_id", req.SourceTransactionID,
				"error", err,
			)
		}
		return nil, err
	}

	metrics.RecordTransition("create", metrics.OutcomeSuccess)
	s.logger.Info("split match created",
		"tenant_id", match.TenantID,
		"split_match_id", match.ID,
		"source_id", match.SourceTransactionID,
		"match_type", match.MatchType,
		"components", len(match.Components),
		"remainder_cents", match.RemainderCents,
	)

	return match, nil
}

func (s *SplitMatchService) createSplitMatch(ctx context.Context, req CreateRequest) (*splitmatch.SplitMatch, error) {
	if err := requireTenant(req.TenantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SourceTransactionID) == "" {
		return nil, splitmatch.NewValidationError("source_transaction_id", "is required")
	}

	ids := make([]string, 0, len(req.Components))
	for _, c := range req.Components {
		ids = append(ids, c.CandidateRecordID)
	}
	if err := validator.ValidateComponentSet(req.SourceTransactionID, ids, s.maxItems); err != nil {
		return nil, err
	}
	for _, c := range req.Components {
		if c.AmountCents < 0 {
			return nil, splitmatch.NewValidationError("components", "record %q has a negative amount", c.CandidateRecordID)
		}
	}

	var created *splitmatch.SplitMatch

	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		records, err := tx.GetRecords(ctx, req.TenantID, append([]string{req.SourceTransactionID}, ids...))
		if err != nil {
			return err
		}

		source, ok := records[req.SourceTransactionID]
		if !ok {
			return splitmatch.NewValidationError("source_transaction_id", "record %q does not belong to tenant", req.SourceTransactionID)
		}

		matchType, err := resolveMatchType(req.MatchType, source)
		if err != nil {
			return err
		}
		if source.AmountCents == 0 {
			return splitmatch.NewValidationError("amount_cents", "source record %q has a zero amount", source.ID)
		}
		if source.IsAllocated() {
			return &splitmatch.ConflictError{CandidateRecordID: source.ID, Reason: "source record is already allocated"}
		}

		allowedKinds := matchType.CandidateKinds(source.AmountCents)
		direction := matchType.CandidateDirection(source.Kind)

		now := s.now()
		m := &splitmatch.SplitMatch{
			ID:                  s.newID(),
			TenantID:            req.TenantID,
			SourceTransactionID: source.ID,
			MatchType:           matchType,
			TargetAmountCents:   source.AbsAmountCents(),
			Status:              splitmatch.StatusPending,
			Components:          make([]splitmatch.Component, 0, len(req.Components)),
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		for i, input := range req.Components {
			rec, ok := records[input.CandidateRecordID]
			if !ok {
				return splitmatch.NewValidationError("components", "record %q does not belong to tenant", input.CandidateRecordID)
			}
			if !kindAllowed(allowedKinds, rec.Kind) || !directionMatches(direction, rec.AmountCents) {
				return splitmatch.NewValidationError("components", "record %q (%s) can not settle a %s %s match", rec.ID, rec.Kind, source.Kind, matchType)
			}
			if rec.IsAllocated() {
				return &splitmatch.ConflictError{CandidateRecordID: rec.ID, Reason: "record is already allocated"}
			}

			amount := rec.AbsAmountCents()
			if input.AmountCents != 0 && input.AmountCents != amount {
				return &splitmatch.ConflictError{
					CandidateRecordID: rec.ID,
					Reason:            fmt.Sprintf("record amount changed from %d to %d", input.AmountCents, amount),
				}
			}

			m.Components = append(m.Components, splitmatch.Component{
				ID:                s.newID(),
				SplitMatchID:      m.ID,
				CandidateRecordID: rec.ID,
				AmountCents:       amount,
				Position:          i,
			})
		}

		m.Recalculate()

		if err := tx.InsertSplitMatch(ctx, m); err != nil {
			return err
		}

		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// RejectSplitMatch moves a PENDING match to REJECTED. Rejecting an already
// REJECTED match returns it unchanged.
func (s *SplitMatchService) RejectSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var (
		result *splitmatch.SplitMatch
		noop   bool
	)

	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		m, err := tx.GetSplitMatch(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if m == nil {
			return &splitmatch.NotFoundError{Resource: "split match", ID: id}
		}

		if m.Status == splitmatch.StatusRejected {
			result = m
			noop = true
			return nil
		}
		if err := splitmatch.Transition(m.ID, m.Status, splitmatch.StatusRejected); err != nil {
			return err
		}

		m.Status = splitmatch.StatusRejected
		m.UpdatedAt = s.now()

		ok, err := tx.TransitionSplitMatch(ctx, m, splitmatch.StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return &splitmatch.ConflictError{Reason: fmt.Sprintf("split match %q changed concurrently", m.ID)}
		}

		result = m
		return nil
	})
	if err != nil {
		metrics.RecordTransition("reject", outcomeFor(err))
		return nil, err
	}

	if noop {
		metrics.RecordTransition("reject", metrics.OutcomeNoop)
		s.logger.Debug("split match already rejected", "tenant_id", tenantID, "split_match_id", id)
		return result, nil
	}

	metrics.RecordTransition("reject", metrics.OutcomeSuccess)
	s.logger.Info("split match rejected", "tenant_id", tenantID, "split_match_id", id)
	return result, nil
}

// GetSplitMatch returns a match with its components
func (s *SplitMatchService) GetSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	m, err := s.repo.GetSplitMatch(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get split match: %w", err)
	}
	if m == nil {
		return nil, &splitmatch.NotFoundError{Resource: "split match", ID: id}
	}
	return m, nil
}

// ListSplitMatches returns match history for a tenant
func (s *SplitMatchService) ListSplitMatches(ctx context.Context, filters storage.SplitMatchFilters) (*storage.SplitMatchListResult, error) {
	if err := requireTenant(filters.TenantID); err != nil {
		return nil, err
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, splitmatch.NewValidationError("status", "unknown status %q", filters.Status)
	}

	result, err := s.repo.ListSplitMatches(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list split matches: %w", err)
	}
	return result, nil
}

func kindAllowed(kinds []splitmatch.RecordKind, k splitmatch.RecordKind) bool {
	for _, allowed := range kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

func directionMatches(d splitmatch.Direction, amountCents int64) bool {
	switch d {
	case splitmatch.DirectionCredit:
		return amountCents > 0
	case splitmatch.DirectionDebit:
		return amountCents < 0
	}
	return true
}
