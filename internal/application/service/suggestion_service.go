package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/eshaffer321/splitmatch/internal/domain/matcher"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/metrics"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// SuggestionConfig controls how candidates are gathered for the matcher.
type SuggestionConfig struct {
	DefaultToleranceCents int64
	CandidatePoolSize     int // Rows fetched from the provider before pre-filtering
	LookbackDays          int
	LookaheadDays         int
	Matcher               matcher.Config
}

// DefaultSuggestionConfig returns sensible defaults
func DefaultSuggestionConfig() SuggestionConfig {
	return SuggestionConfig{
		DefaultToleranceCents: 0,
		CandidatePoolSize:     50,
		LookbackDays:          30,
		LookaheadDays:         7,
		Matcher:               matcher.DefaultConfig(),
	}
}

// SuggestionRequest holds parameters for a suggestion lookup.
type SuggestionRequest struct {
	TenantID            string
	SourceTransactionID string
	ToleranceCents      *int64               // nil = configured default
	MatchType           splitmatch.MatchType // Empty = inferred from the source kind
}

// SuggestionService proposes split matches for a source record.
// It never writes.
type SuggestionService struct {
	provider storage.CandidateProvider
	matcher  *matcher.Matcher
	cfg      SuggestionConfig
	logger   *slog.Logger
}

// NewSuggestionService creates a new suggestion service.
func NewSuggestionService(provider storage.CandidateProvider, cfg SuggestionConfig, logger *slog.Logger) *SuggestionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestionService{
		provider: provider,
		matcher:  matcher.NewMatcher(cfg.Matcher),
		cfg:      cfg,
		logger:   logger,
	}
}

// FindPotentialSplitMatches returns ranked suggestions for the source record.
// An empty slice means no subset fell within tolerance.
func (s *SuggestionService) FindPotentialSplitMatches(ctx context.Context, req SuggestionRequest) ([]splitmatch.Suggestion, error) {
	suggestions, err := s.findPotentialSplitMatches(ctx, req)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = outcomeFor(err)
	case len(suggestions) == 0:
		outcome = metrics.OutcomeEmpty
	}
	label := string(req.MatchType)
	if label == "" {
		label = "AUTO"
	}
	metrics.RecordSuggestion(label, outcome, len(suggestions))

	return suggestions, err
}

func (s *SuggestionService) findPotentialSplitMatches(ctx context.Context, req SuggestionRequest) ([]splitmatch.Suggestion, error) {
	if err := requireTenant(req.TenantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SourceTransactionID) == "" {
		return nil, splitmatch.NewValidationError("source_transaction_id", "is required")
	}

	tolerance := s.cfg.DefaultToleranceCents
	if req.ToleranceCents != nil {
		tolerance = *req.ToleranceCents
	}
	if tolerance < 0 {
		return nil, splitmatch.NewValidationError("tolerance_cents", "must be >= 0, got %d", tolerance)
	}

	source, err := s.provider.GetRecord(ctx, req.TenantID, req.SourceTransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source record: %w", err)
	}
	if source == nil {
		return nil, &splitmatch.NotFoundError{Resource: "record", ID: req.SourceTransactionID}
	}

	matchType, err := resolveMatchType(req.MatchType, source)
	if err != nil {
		return nil, err
	}
	if source.AmountCents == 0 {
		return nil, splitmatch.NewValidationError("amount_cents", "source record %q has a zero amount", source.ID)
	}
	if source.IsAllocated() {
		return nil, &splitmatch.ConflictError{CandidateRecordID: source.ID, Reason: "source record is already allocated"}
	}

	target := source.AbsAmountCents()
	ceiling := saturatingAdd(target, tolerance)

	window := storage.CandidateWindow{
		Kinds:             matchType.CandidateKinds(source.AmountCents),
		Direction:         matchType.CandidateDirection(source.Kind),
		From:              source.Date.AddDate(0, 0, -s.cfg.LookbackDays),
		To:                source.Date.AddDate(0, 0, s.cfg.LookaheadDays),
		Anchor:            source.Date,
		MaxAbsAmountCents: ceiling,
		ExcludeIDs:        []string{source.ID},
		Limit:             s.cfg.CandidatePoolSize,
	}

	pool, err := s.provider.ListUnallocatedCandidates(ctx, req.TenantID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := preFilter(source, pool, ceiling, s.cfg.Matcher.MaxItems)

	s.logger.Debug("searching split candidates",
		"tenant_id", req.TenantID,
		"source_id", source.ID,
		"match_type", matchType,
		"target_cents", target,
		"tolerance_cents", tolerance,
		"pool", len(pool),
		"candidates", len(candidates),
	)

	matcherInput := make([]matcher.Candidate, len(candidates))
	for i, c := range candidates {
		matcherInput[i] = matcher.Candidate{
			ID:          c.ID,
			AmountCents: c.AbsAmountCents(),
			Date:        c.Date,
		}
	}

	start := time.Now()
	subsets, err := s.matcher.FindSubsets(target, matcherInput, tolerance)
	metrics.RecordMatcherRun(len(matcherInput), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	suggestions := make([]splitmatch.Suggestion, 0, len(subsets))
	for _, subset := range subsets {
		suggestion := splitmatch.Suggestion{
			MatchType:           matchType,
			SourceTransactionID: source.ID,
			TargetAmountCents:   target,
			MatchedAmountCents:  subset.SumCents,
			RemainderCents:      subset.RemainderCents,
			Components:          make([]splitmatch.SuggestedComponent, 0, subset.Size()),
		}
		for _, idx := range subset.ItemIndices {
			c := candidates[idx]
			suggestion.Components = append(suggestion.Components, splitmatch.SuggestedComponent{
				CandidateRecordID: c.ID,
				Kind:              c.Kind,
				AmountCents:       c.AbsAmountCents(),
				Date:              c.Date,
			})
		}
		suggestions = append(suggestions, suggestion)
	}

	s.logger.Debug("split suggestions ready",
		"tenant_id", req.TenantID,
		"source_id", source.ID,
		"suggestions", len(suggestions),
	)

	return suggestions, nil
}

// resolveMatchType validates the requested direction against the source kind.
// An empty request infers ONE_TO_MANY for bank transactions and MANY_TO_ONE
// for invoices and payments.
func resolveMatchType(requested splitmatch.MatchType, source *splitmatch.CandidateRecord) (splitmatch.MatchType, error) {
	matchType := requested
	if matchType == "" {
		matchType = splitmatch.ManyToOne
		if source.Kind == splitmatch.KindTransaction {
			matchType = splitmatch.OneToMany
		}
	}

	if !matchType.Valid() {
		return "", splitmatch.NewValidationError("match_type", "unknown match type %q", matchType)
	}
	if !matchType.SourceKindAllowed(source.Kind) {
		return "", splitmatch.NewValidationError("match_type", "%s can not start from a %s record", matchType, source.Kind)
	}

	return matchType, nil
}

// preFilter drops candidates that can never fit and keeps the maxItems
// closest in date to the source, ties broken by id.
func preFilter(source *splitmatch.CandidateRecord, pool []*splitmatch.CandidateRecord, maxAbs int64, maxItems int) []*splitmatch.CandidateRecord {
	filtered := make([]*splitmatch.CandidateRecord, 0, len(pool))
	for _, c := range pool {
		if c.ID == source.ID || c.IsAllocated() {
			continue
		}
		abs := c.AbsAmountCents()
		if abs == 0 || abs > maxAbs {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		di := absDays(filtered[i].Date.Sub(source.Date))
		dj := absDays(filtered[j].Date.Sub(source.Date))
		if di != dj {
			return di < dj
		}
		return filtered[i].ID < filtered[j].ID
	})

	if maxItems > 0 && len(filtered) > maxItems {
		filtered = filtered[:maxItems]
	}

	return filtered
}

func absDays(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return splitmatch.NewValidationError("tenant_id", "this operation requires a tenant")
	}
	return nil
}

// outcomeFor maps an error to a metrics outcome label
func outcomeFor(err error) string {
	switch {
	case splitmatch.IsStale(err):
		return metrics.OutcomeStale
	case splitmatch.IsConflict(err):
		return metrics.OutcomeConflict
	case splitmatch.IsNotFound(err):
		return metrics.OutcomeNotFound
	case splitmatch.IsValidation(err), splitmatch.IsTooManyCandidates(err), splitmatch.IsInvalidTransition(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

// saturatingAdd adds two non-negative amounts, clamping at math.MaxInt64.
func saturatingAdd(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}
