package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eshaffer321/splitmatch/internal/api/handlers"
	"github.com/eshaffer321/splitmatch/internal/api/middleware"
	"github.com/eshaffer321/splitmatch/internal/application/service"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	MetricsEnabled bool
	MaxItems       int
	Suggestion     service.SuggestionConfig
	Retry          service.RetryPolicy
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	suggestion := service.DefaultSuggestionConfig()
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000"},
		MetricsEnabled: true,
		MaxItems:       suggestion.Matcher.MaxItems,
		Suggestion:     suggestion,
		Retry:          service.DefaultRetryPolicy(),
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository

	ledger      *service.LedgerService
	suggestions *service.SuggestionService
	matches     *service.SplitMatchService
	coordinator *service.ConfirmationCoordinator
}

// NewServer creates a new API server over repo.
func NewServer(cfg Config, repo storage.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		router:      chi.NewRouter(),
		logger:      logger,
		repo:        repo,
		ledger:      service.NewLedgerService(repo, logger),
		suggestions: service.NewSuggestionService(repo, cfg.Suggestion, logger),
		matches:     service.NewSplitMatchService(repo, cfg.MaxItems, logger),
		coordinator: service.NewConfirmationCoordinator(repo, cfg.Retry, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.Recoverer)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	var pinger handlers.Pinger
	if p, ok := s.repo.(handlers.Pinger); ok {
		pinger = p
	}
	s.router.Get("/health", handlers.NewHealthHandler(pinger).ServeHTTP)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	records := handlers.NewRecordsHandler(s.ledger, s.logger)
	suggestions := handlers.NewSuggestionsHandler(s.suggestions, s.logger)
	matches := handlers.NewSplitMatchesHandler(s.matches, s.coordinator, s.logger)

	s.router.Route("/api/tenants/{tenantID}", func(r chi.Router) {
		r.Put("/records", records.Upsert)
		r.Get("/records", records.List)

		r.Get("/transactions/{sourceID}/split-suggestions", suggestions.List)

		r.Route("/split-matches", func(r chi.Router) {
			r.Post("/", matches.Create)
			r.Get("/", matches.List)
			r.Get("/{id}", matches.Get)
			r.Post("/{id}/confirm", matches.Confirm)
			r.Post("/{id}/reject", matches.Reject)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr, "metrics", s.config.MetricsEnabled)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
