// Kestrel - Fraud analytics and transaction scoring over a labelled dataset.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("KESTREL_ENV_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"dataset", cfg.Dataset.Source,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"default_policy", cfg.Scoring.DefaultPolicy,
	)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize the dataset source
	var (
		source domain.DatasetSource
		repo   domain.DatasetStore
	)
	switch cfg.Dataset.Source {
	case domain.SourceFiles:
		source = dataset.NewFileSource(cfg.Dataset)
	default:
		repo, err = repository.New(cfg.Repository)
		if err != nil {
			slog.Error("failed to initialize repository", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		source = repo
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	// An unreadable dataset leaves the service up and degraded
	store := dataset.NewStore(source)
	if err := store.Load(ctx); err != nil {
		slog.Error("failed to load dataset", "source", source.Name(), "error", err)
	}

	// Initialize Cache
	cacheImpl, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Scorer
	scorer, err := scoring.NewBuiltinScorer(cfg.Scoring.DefaultPolicy)
	if err != nil {
		slog.Error("failed to initialize scorer", "error", err)
		os.Exit(1)
	}
	defer scorer.Close()
	slog.Info("scorer initialized",
		"policies", scorer.Policies(),
		"default", scorer.DefaultPolicy(),
	)

	// Prediction consumer
	var predictionWorker *worker.Worker
	if cfg.EventBus.Type != "none" {
		predictionWorker = worker.NewWorker(busImpl)
		if err := predictionWorker.Start(); err != nil {
			slog.Error("failed to start prediction worker", "error", err)
			predictionWorker = nil
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Store:               store,
		Scorer:              scorer,
		Repository:          repo,
		Cache:               cacheImpl,
		CacheTTL:            cfg.Cache.LocalTTL,
		Bus:                 busImpl,
		Worker:              predictionWorker,
		Metrics:             metrics.New(),
		Version:             Version,
		SuspiciousThreshold: cfg.Scoring.SuspiciousThreshold,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"snapshot", store.Current().ID,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if predictionWorker != nil {
		if err := predictionWorker.Stop(); err != nil {
			slog.Error("failed to stop prediction worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 KESTREL                   |")
	fmt.Println("  |     Fraud analytics and scoring API       |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Dataset:  %s\n", cfg.Dataset.Source)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/fraud/summary            - Labelled fraud summary")
	fmt.Println("    GET  /api/fraud/by-type            - Fraud rate by transaction type")
	fmt.Println("    GET  /api/fraud/by-type/breakdown  - Fraud counts per type")
	fmt.Println("    GET  /api/fraud/suspicious         - Labelled transactions above a threshold")
	fmt.Println("    GET  /api/fraud/transactions/{id}  - Label verdict for a transaction")
	fmt.Println("    POST /api/fraud/predict            - Score a transaction")
	fmt.Println("    POST /api/fraud/predict/simple     - Score with the simple policy")
	fmt.Println("    GET  /api/transactions             - List transactions")
	fmt.Println("    GET  /api/stats/overview           - Dataset overview")
	fmt.Println("    GET  /api/customers/top            - Top customers by spend")
	fmt.Println("    GET  /api/system/health            - Dataset and component health")
	fmt.Println("    GET  /metrics                      - Prometheus metrics")
	fmt.Println()
}
