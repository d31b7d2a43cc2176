package cli

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/splitmatch/internal/api"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/config"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/logging"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Port       int // 0 = use config
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags(args []string, output io.Writer) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = use config)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// APIConfig maps the file configuration onto the HTTP server
func APIConfig(cfg *config.Config) api.Config {
	apiCfg := api.DefaultConfig()
	apiCfg.Port = cfg.Server.Port
	apiCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	apiCfg.MetricsEnabled = cfg.Observability.Metrics.Enabled
	apiCfg.MaxItems = cfg.Matching.MaxItems
	apiCfg.Suggestion = SuggestionConfig(cfg)
	apiCfg.Retry = RetryPolicy(cfg)
	return apiCfg
}

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(cfg *config.Config, flags *ServeFlags) error {
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "api")

	store, err := storage.NewStorageWithLogger(cfg.Storage.DatabasePath, logging.NewLoggerWithSystem(loggingCfg, "storage"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	apiCfg := APIConfig(cfg)
	if flags.Port != 0 {
		apiCfg.Port = flags.Port
	}

	server := api.NewServer(apiCfg, store, logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
