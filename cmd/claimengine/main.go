// Claim Engine - Clinical claim code, tariff and consistency resolution.
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
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/claimengine/internal/analysis"
	"github.com/opensource-finance/claimengine/internal/api"
	"github.com/opensource-finance/claimengine/internal/bus"
	"github.com/opensource-finance/claimengine/internal/cache"
	"github.com/opensource-finance/claimengine/internal/config"
	"github.com/opensource-finance/claimengine/internal/consistency"
	"github.com/opensource-finance/claimengine/internal/domain"
	"github.com/opensource-finance/claimengine/internal/reference"
	"github.com/opensource-finance/claimengine/internal/repository"
	"github.com/opensource-finance/claimengine/internal/resolver"
	"github.com/opensource-finance/claimengine/internal/tariff"
	"github.com/opensource-finance/claimengine/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "claimengine",
		Short:         "Clinical claim resolution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(exportTariffsCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (*domain.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Logging))
	return cfg, nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and claim worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *domain.Config) error {
	slog.Info("starting claimengine",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"event_bus", cfg.EventBus.Type,
		"reference_mode", cfg.Reference.Mode,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var claimWorker *worker.Worker
	if cfg.Worker.Enabled {
		claimWorker = worker.NewWorker(busImpl, app.engine)
		if err := claimWorker.Start(); err != nil {
			slog.Error("failed to start claim worker", "error", err)
			claimWorker = nil
		} else {
			slog.Info("claim worker started", "topic", domain.TopicClaimSubmitted)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Codes:      app.codes,
		Tariffs:    app.tariffs,
		Scorer:     app.scorer,
		Analyzer:   app.engine,
		Analyses:   app.repo,
		Cache:      app.shared,
		Bus:        busImpl,
		CacheStats: app.cacheStats,
		Version:    Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("claimengine is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-errCh:
		slog.Error("server failed", "error", err)
	}

	slog.Info("shutting down...")

	if claimWorker != nil {
		if err := claimWorker.Stop(); err != nil {
			slog.Error("failed to stop claim worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("claimengine shutdown complete")
	return nil
}

// app holds the resolution components shared by serve and resolve.
type app struct {
	repo    *repository.SQLRepository
	shared  domain.Cache
	ref     *reference.Loaded
	codes   *resolver.Resolver
	tariffs *tariff.Resolver
	scorer  *consistency.Scorer
	engine  *analysis.Engine
}

func newApp(ctx context.Context, cfg *domain.Config) (*app, error) {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("initialize repository: %w", err)
	}
	slog.Info("repository initialized", "driver", repo.Driver())

	a := &app{repo: repo}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, cfg *domain.Config) error {
	policy, err := seedIfEmpty(ctx, a.repo, cfg.Reference)
	if err != nil {
		return err
	}

	a.shared, err = cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	a.ref, err = reference.Load(ctx, a.repo, cfg.Reference.Mode, cfg.Cache.LookupCapacity, cfg.Cache.LookupTTL)
	if err != nil {
		return err
	}

	var opts []resolver.Option
	if cfg.Cache.Type == "redis" {
		opts = append(opts, resolver.WithSharedCache(a.shared, cfg.Cache.LookupTTL))
	}
	a.codes = resolver.New(a.ref.Store, cfg.Cache.LookupCapacity, cfg.Cache.LookupTTL, opts...)
	a.tariffs = tariff.New(a.ref.Store, cfg.Cache.LookupCapacity, cfg.Cache.LookupTTL)

	verdicts, err := consistency.NewPolicy(policy)
	if err != nil {
		return fmt.Errorf("compile consistency policy: %w", err)
	}
	a.scorer = consistency.NewScorer(a.ref.Rules, verdicts)

	a.engine = analysis.NewEngine(a.codes, a.tariffs, a.scorer, analysis.NewProcessor(), a.repo)
	slog.Info("resolution engine initialized",
		"reference_mode", a.ref.Mode,
		"lookup_capacity", cfg.Cache.LookupCapacity,
		"lookup_ttl", cfg.Cache.LookupTTL,
	)
	return nil
}

// cacheStats merges every lookup cache's counters under one map.
func (a *app) cacheStats() map[string]cache.Stats {
	stats := a.ref.Store.Stats()
	stats["code_resolutions"] = a.codes.Stats()
	stats["tariffs"] = a.tariffs.Stats()
	if tp, ok := a.shared.(*cache.TwoPhaseCache); ok {
		stats["shared_local"] = tp.Stats()
	}
	return stats
}

func (a *app) Close() {
	if a.shared != nil {
		a.shared.Close()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// seedIfEmpty imports the configured seed when the database holds no
// patterns. The seed's policy overrides apply whether or not it was
// imported.
func seedIfEmpty(ctx context.Context, repo *repository.SQLRepository, cfg domain.ReferenceConfig) (map[domain.Relation]domain.VerdictBand, error) {
	if cfg.SeedPath == "" && cfg.TariffParquetPath == "" {
		return nil, nil
	}

	var policy map[domain.Relation]domain.VerdictBand
	if cfg.SeedPath != "" {
		seed, err := reference.LoadSeed(cfg.SeedPath)
		if err != nil {
			return nil, err
		}
		policy = seed.Policy
	}

	existing, err := repo.LoadReferenceData(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect reference data: %w", err)
	}
	if len(existing.Patterns) > 0 || len(existing.Tariffs) > 0 {
		slog.Info("reference data present, skipping seed", "patterns", len(existing.Patterns), "tariffs", len(existing.Tariffs))
		return policy, nil
	}

	result, err := reference.Import(ctx, repo, cfg.SeedPath, cfg.TariffParquetPath)
	if err != nil {
		return nil, err
	}
	logImport(result)
	return policy, nil
}

func logImport(r *reference.ImportResult) {
	slog.Info("reference data imported",
		"tariffs", r.Tariffs,
		"patterns", r.Patterns,
		"group_rules", r.GroupRules,
		"procedures", r.Procedures,
		"consistency_rules", r.ConsistencyRules,
	)
}
