// Command find-splits prints ranked split suggestions for one ledger record.
//
//	find-splits -tenant acme -source txn-123 [-tolerance 50] [-create] [-confirm]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/splitmatch/internal/cli"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/config"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/logging"
	"github.com/eshaffer321/splitmatch/internal/infrastructure/storage"
)

func main() {
	flags, err := cli.ParseFindFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.LoadOrEnvWithPath(flags.ConfigPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	} else {
		loggingCfg.Level = "warn"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "find-splits")

	store, err := storage.NewStorageWithLogger(cfg.Storage.DatabasePath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RunFind(ctx, cfg, flags, store, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		_ = store.Close()
		os.Exit(1)
	}
}
