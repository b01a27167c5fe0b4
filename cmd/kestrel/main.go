// Kestrel - Rule and score evaluation engine for payment fraud.
// Copyright (c) 2026 openrisk
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openrisk/kestrel/internal/api"
	"github.com/openrisk/kestrel/internal/batch"
	"github.com/openrisk/kestrel/internal/bus"
	"github.com/openrisk/kestrel/internal/cache"
	"github.com/openrisk/kestrel/internal/config"
	"github.com/openrisk/kestrel/internal/decision"
	"github.com/openrisk/kestrel/internal/domain"
	"github.com/openrisk/kestrel/internal/metrics"
	"github.com/openrisk/kestrel/internal/repository"
	"github.com/openrisk/kestrel/internal/rules"
	"github.com/openrisk/kestrel/internal/score"
	"github.com/openrisk/kestrel/internal/velocity"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo, cacheImpl)

	store, err := rules.NewStore(ctx, repo)
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	if cfg.Rules.Seed {
		if err := rules.Seed(ctx, store); err != nil {
			slog.Error("failed to seed default rules", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("rule store initialized", "rules_count", store.Count())

	collector := metrics.NewCollector()

	evaluator := rules.NewEvaluator(store, velocitySvc.Getter(), cfg.Rules.VelocityWindow)
	evaluator.RuleFailureHook = collector.RecordRuleFailure

	var provider score.Provider
	if cfg.Provider.URL != "" {
		provider = score.NewHTTPProvider(cfg.Provider)
		slog.Info("score provider initialized", "type", "http", "url", cfg.Provider.URL)
	} else {
		provider = score.Heuristic{}
		slog.Info("score provider initialized", "type", "heuristic")
	}

	composer := decision.NewComposer(decision.Config{
		Evaluator:      evaluator,
		Provider:       provider,
		Threshold:      cfg.Provider.Threshold,
		Repository:     repo,
		Bus:            busImpl,
		Velocity:       velocitySvc,
		VelocityWindow: cfg.Rules.VelocityWindow,
		Metrics:        collector,
	})

	coordinator := batch.NewCoordinator(composer, cfg.Batch.MaxWorkers)

	srv := api.NewServer(cfg.Server, composer, coordinator, store, repo, cacheImpl, busImpl, collector, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
