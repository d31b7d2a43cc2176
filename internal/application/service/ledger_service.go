package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// LedgerService feeds and reads the local ledger projection.
type LedgerService struct {
	repo   storage.LedgerRepository
	logger *slog.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(repo storage.LedgerRepository, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{repo: repo, logger: logger}
}

// UpsertRecords validates and stores ledger records for a tenant
func (s *LedgerService) UpsertRecords(ctx context.Context, tenantID string, records []*splitmatch.CandidateRecord) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if len(records) == 0 {
		return splitmatch.NewValidationError("records", "at least one record is required")
	}

	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return splitmatch.NewValidationError("records", "record %d has no id", i)
		}
		if seen[r.ID] {
			return splitmatch.NewValidationError("records", "record %q listed more than once", r.ID)
		}
		seen[r.ID] = true

		if !r.Kind.Valid() {
			return splitmatch.NewValidationError("records", "record %q has unknown kind %q", r.ID, r.Kind)
		}
		if r.Date.IsZero() {
			return splitmatch.NewValidationError("records", "record %q has no date", r.ID)
		}
		r.TenantID = tenantID
	}

	if err := s.repo.UpsertRecords(ctx, tenantID, records); err != nil {
		if splitmatch.IsConflict(err) {
			return err
		}
		return fmt.Errorf("failed to upsert records: %w", err)
	}

	s.logger.Info("ledger records upserted", "tenant_id", tenantID, "count", len(records))
	return nil
}

// ListRecords returns ledger records for a tenant
func (s *LedgerService) ListRecords(ctx context.Context, filters storage.RecordFilters) ([]*splitmatch.CandidateRecord, error) {
	if err := requireTenant(filters.TenantID); err != nil {
		return nil, err
	}
	if filters.Kind != "" && !filters.Kind.Valid() {
		return nil, splitmatch.NewValidationError("kind", "unknown kind %q", filters.Kind)
	}
	if filters.Status != "" && filters.Status != splitmatch.Unallocated && filters.Status != splitmatch.Allocated {
		return nil, splitmatch.NewValidationError("status", "unknown allocation status %q", filters.Status)
	}

	records, err := s.repo.ListRecords(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}
