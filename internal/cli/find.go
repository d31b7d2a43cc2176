package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/eshaffer321/splitmatch/internal/application/service"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/config"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// RunFind prints ranked split suggestions for one source record and, when
// asked, persists and confirms the best one.
func RunFind(ctx context.Context, cfg *config.Config, flags FindFlags, store storage.Repository, w io.Writer, logger *slog.Logger) error {
	suggestionCfg := SuggestionConfig(cfg)
	if flags.TopK > 0 {
		suggestionCfg.Matcher.TopK = flags.TopK
	}

	suggestions := service.NewSuggestionService(store, suggestionCfg, logger)
	matches := service.NewSplitMatchService(store, cfg.Matching.MaxItems, logger)
	coordinator := service.NewConfirmationCoordinator(store, RetryPolicy(cfg), logger)

	PrintHeader(w, flags.TenantID, flags.SourceID, flags.Create)

	found, err := suggestions.FindPotentialSplitMatches(ctx, flags.ToSuggestionRequest())
	if err != nil {
		return fmt.Errorf("find suggestions: %w", err)
	}
	PrintSuggestions(w, found)

	if !flags.Create || len(found) == 0 {
		return nil
	}

	m, err := matches.CreateSplitMatch(ctx, service.CreateRequestFromSuggestion(flags.TenantID, found[0]))
	if err != nil {
		return fmt.Errorf("create split match: %w", err)
	}
	PrintSplitMatch(w, m)

	if !flags.Confirm {
		return nil
	}

	m, err = coordinator.ConfirmSplitMatch(ctx, flags.TenantID, m.ID)
	if err != nil {
		return fmt.Errorf("confirm split match: %w", err)
	}
	PrintSplitMatch(w, m)
	return nil
}

// SuggestionConfig maps the file configuration onto the suggestion service
func SuggestionConfig(cfg *config.Config) service.SuggestionConfig {
	sc := service.DefaultSuggestionConfig()
	sc.DefaultToleranceCents = cfg.Matching.DefaultToleranceCents
	sc.CandidatePoolSize = cfg.Matching.CandidatePoolSize
	sc.LookbackDays = cfg.Matching.LookbackDays
	sc.LookaheadDays = cfg.Matching.LookaheadDays
	sc.Matcher.MaxItems = cfg.Matching.MaxItems
	sc.Matcher.TopK = cfg.Matching.TopK
	return sc
}

// RetryPolicy maps the file configuration onto the confirmation retry policy
func RetryPolicy(cfg *config.Config) service.RetryPolicy {
	r := cfg.Confirmation.Retry
	return service.RetryPolicy{
		MaxRetries:      r.MaxRetries,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
	}
}
