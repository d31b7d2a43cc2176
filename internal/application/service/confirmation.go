package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/domain/validator"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/metrics"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// RetryPolicy bounds retries of transient write conflicts.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns sensible defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0 // bounded by MaxRetries
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// ConfirmationCoordinator performs the all-or-nothing PENDING -> CONFIRMED
// transition, allocating every referenced record.
type ConfirmationCoordinator struct {
	repo   storage.Repository
	policy RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewConfirmationCoordinator creates a new confirmation coordinator.
func NewConfirmationCoordinator(repo storage.Repository, policy RetryPolicy, logger *slog.Logger) *ConfirmationCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfirmationCoordinator{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ConfirmSplitMatch confirms a PENDING match. Transient storage conflicts are
// retried; domain failures are returned as soon as they occur and leave the
// match PENDING with every record unchanged.
func (c *ConfirmationCoordinator) ConfirmSplitMatch(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var (
		confirmed *splitmatch.SplitMatch
		attempts  int
	)

	operation := func() error {
		attempts++
		m, err := c.confirmOnce(ctx, tenantID, id)
		if err != nil {
			if storage.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		confirmed = m
		return nil
	}

	notify := func(err error, wait time.Duration) {
		metrics.RecordConfirmRetry()
		c.logger.Warn("confirmation conflicted, retrying",
			"tenant_id", tenantID,
			"split_match_id", id,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, c.policy.backOff(ctx), notify)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && storage.IsRetryable(err) {
			err = ctxErr
		} else if storage.IsRetryable(err) {
			err = &splitmatch.ConflictError{
				Reason: fmt.Sprintf("split match %q could not be confirmed after %d attempts: %v", id, attempts, err),
			}
		}

		metrics.RecordTransition("confirm", outcomeFor(err))
		c.logConfirmFailure(tenantID, id, err)
		return nil, err
	}

	metrics.RecordTransition("confirm", metrics.OutcomeSuccess)
	c.logger.Info("split match confirmed",
		"tenant_id", tenantID,
		"split_match_id", id,
		"components", len(confirmed.Components),
		"matched_cents", confirmed.MatchedAmountCents,
		"remainder_cents", confirmed.RemainderCents,
		"attempts", attempts,
	)

	return confirmed, nil
}

// confirmOnce runs a single confirmation transaction
func (c *ConfirmationCoordinator) confirmOnce(ctx context.Context, tenantID, id string) (*splitmatch.SplitMatch, error) {
	var confirmed *splitmatch.SplitMatch

	err := c.repo.WithTx(ctx, func(tx storage.Tx) error {
		m, err := tx.GetSplitMatch(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if m == nil {
			return &splitmatch.NotFoundError{Resource: "split match", ID: id}
		}
		if err := splitmatch.Transition(m.ID, m.Status, splitmatch.StatusConfirmed); err != nil {
			return err
		}

		// Source first, then components in position order
		recordIDs := append([]string{m.SourceTransactionID}, m.CandidateRecordIDs()...)

		records, err := tx.GetRecords(ctx, tenantID, recordIDs)
		if err != nil {
			return err
		}
		for _, recordID := range recordIDs {
			rec, ok := records[recordID]
			if !ok {
				return &splitmatch.NotFoundError{Resource: "record", ID: recordID}
			}
			if rec.IsAllocated() {
				return &splitmatch.StaleMatchError{SplitMatchID: m.ID, CandidateRecordID: recordID}
			}
		}
		if err := checkAmounts(m, records); err != nil {
			return err
		}

		for _, recordID := range recordIDs {
			ok, err := tx.SetAllocationStatus(ctx, tenantID, recordID, splitmatch.Allocated, m.ID)
			if err != nil {
				return err
			}
			if !ok {
				return &splitmatch.StaleMatchError{SplitMatchID: m.ID, CandidateRecordID: recordID}
			}
		}

		now := c.now()
		m.Recalculate()
		if result := validator.ValidateSum(m); !result.Valid {
			return fmt.Errorf("split match %q failed sum check: %s", m.ID, result.Reason)
		}
		m.Status = splitmatch.StatusConfirmed
		m.UpdatedAt = now
		m.ConfirmedAt = &now

		ok, err := tx.TransitionSplitMatch(ctx, m, splitmatch.StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrSerialization
		}

		confirmed = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return confirmed, nil
}

// checkAmounts refuses a match whose records were re-priced after creation.
func checkAmounts(m *splitmatch.SplitMatch, records map[string]*splitmatch.CandidateRecord) error {
	if src := records[m.SourceTransactionID]; src.AbsAmountCents() != m.TargetAmountCents {
		return &splitmatch.StaleMatchError{
			SplitMatchID:      m.ID,
			CandidateRecordID: src.ID,
			Reason:            fmt.Sprintf("now %d cents, match targets %d", src.AbsAmountCents(), m.TargetAmountCents),
		}
	}
	for _, comp := range m.Components {
		rec := records[comp.CandidateRecordID]
		if rec.AbsAmountCents() != comp.AmountCents {
			return &splitmatch.StaleMatchError{
				SplitMatchID:      m.ID,
				CandidateRecordID: rec.ID,
				Reason:            fmt.Sprintf("now %d cents, component holds %d", rec.AbsAmountCents(), comp.AmountCents),
			}
		}
	}
	return nil
}

func (c *ConfirmationCoordinator) logConfirmFailure(tenantID, id string, err error) {
	var stale *splitmatch.StaleMatchError
	switch {
	case errors.As(err, &stale):
		c.logger.Warn("split match is stale",
			"tenant_id", tenantID,
			"split_match_id", id,
			"record_id", stale.CandidateRecordID,
		)
	case splitmatch.IsConflict(err):
		c.logger.Warn("split match confirmation conflicted", "tenant_id", tenantID, "split_match_id", id, "error", err)
	case splitmatch.IsNotFound(err), splitmatch.IsInvalidTransition(err), splitmatch.IsValidation(err):
		c.logger.Debug("split match confirmation refused", "tenant_id", tenantID, "split_match_id", id, "error", err)
	default:
		c.logger.Error("split match confirmation failed", "tenant_id", tenantID, "split_match_id", id, "error", err)
	}
}
