// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Petitiond is the petition ingestion server. It terminates TLS,
// validates and signature-checks JSON petition batches, applies the
// per-client burst guard, persists accepted batches to SQLite, and
// periodically generates monthly ingestion reports.
//
// On startup:
//  1. Loads the YAML configuration (--config or PETITIOND_CONFIG).
//  2. Loads or generates the TLS credential bundle.
//  3. Opens the petition store (optionally resetting history).
//  4. Starts the report scheduler when reporting is configured.
//  5. Serves until SIGINT/SIGTERM, then drains in-flight connections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/petitionworks/petitiond/ingest"
	"github.com/petitionworks/petitiond/lib/config"
	"github.com/petitionworks/petitiond/lib/keystore"
	"github.com/petitionworks/petitiond/lib/petitionstore"
	"github.com/petitionworks/petitiond/lib/process"
	"github.com/petitionworks/petitiond/lib/ratelimit"
	"github.com/petitionworks/petitiond/lib/report"
	"github.com/petitionworks/petitiond/lib/scheduler"
	"github.com/petitionworks/petitiond/lib/signature"
	"github.com/petitionworks/petitiond/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		resetStore  bool
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "configuration file (or set "+config.EnvVar+")")
	pflag.BoolVar(&resetStore, "reset", false, "drop and recreate the petition table at startup, discarding history")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(version.Info())
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundle, err := keystore.Load(keystore.Config{
		KeyPath:          cfg.Keystore.KeyPath,
		CertPath:         cfg.Keystore.CertPath,
		TrustAnchorsPath: cfg.Keystore.TrustAnchorsPath,
		CommonName:       cfg.Keystore.CommonName,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	store, err := petitionstore.Open(petitionstore.Config{
		Path:        cfg.Storage.Path,
		PoolSize:    cfg.Storage.PoolSize,
		Logger:      logger,
		ResetOnOpen: cfg.Storage.ResetOnStart || resetStore,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	verifier := &signature.Verifier{}
	if cfg.Security.TrustedKeysPath != "" {
		registry, err := signature.LoadRegistry(cfg.Security.TrustedKeysPath)
		if err != nil {
			return err
		}
		verifier.Registry = registry
		logger.Info("trusted key registry loaded", "path", cfg.Security.TrustedKeysPath)
	}

	limiter := ratelimit.New(store, cfg.RateLimit.HistorySize, cfg.RateLimit.Window.Std())

	server, err := ingest.New(ingest.Config{
		Listen:        cfg.Server.Listen,
		TLS:           bundle.ServerTLS(),
		Store:         store,
		Limiter:       limiter,
		Verify:        verifier.VerifyPetition,
		Logger:        logger,
		MaxBatchBytes: cfg.Server.MaxBatchBytes,
		DrainTimeout:  cfg.Server.DrainTimeout.Std(),
	})
	if err != nil {
		return err
	}

	if cfg.Reports.LogsDir != "" {
		generator := &report.Generator{
			LogsDir:    cfg.Reports.LogsDir,
			ReportsDir: cfg.Reports.ReportsDir,
			Logger:     logger,
		}
		runner := &scheduler.Runner{
			Interval: cfg.Reports.Interval.Std(),
			Job:      generator.Run,
			Logger:   logger,
		}
		go runner.Run(ctx)
		logger.Info("report scheduler started",
			"logs_dir", cfg.Reports.LogsDir,
			"interval", cfg.Reports.Interval.Std(),
		)
	}

	return server.Serve(ctx)
}

// logLevel maps the configured level name to a slog level. The config
// loader has already validated the name.
func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
