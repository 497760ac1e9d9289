// Package main - точка входа HTTP API сервиса ориентации.
//
// API только читает: оценки берутся из локального зеркала (Postgres),
// офлайн-снимка (SQLite) или напрямую из grade API. Отчёты и рейтинги
// кешируются в Redis по отпечатку когорты.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mpi-hub/orientation-hub/config"
	"github.com/mpi-hub/orientation-hub/internal/application/query"
	"github.com/mpi-hub/orientation-hub/internal/bootstrap"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/persistence/redis"
	httpserver "github.com/mpi-hub/orientation-hub/internal/interface/http"
	"github.com/mpi-hub/orientation-hub/internal/interface/http/handlers"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := bootstrap.Logger(cfg).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting orientation API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("source", string(cfg.Source)))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ДВИЖОК ОРИЕНТАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	engine, table, err := bootstrap.Engine(cfg.Orientation)
	if err != nil {
		return fmt.Errorf("orientation engine: %w", err)
	}
	log.Info("benchmarks loaded",
		logger.String("source", table.Source),
		logger.Int("tracks", len(engine.Tracks())))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ИСТОЧНИК ОЦЕНОК И КЕШ
	// ─────────────────────────────────────────────────────────────────────────
	gb, err := bootstrap.OpenGradebook(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("grade source: %w", err)
	}
	defer gb.Close()

	health := handlers.NewHealthChecker(cfg.App.Version)
	health.AddCheck(gb.Name, true, gb.Ping)

	// Интерфейсы остаются nil, если Redis выключен: nil *redis.Cache в
	// интерфейсе был бы не-nil значением.
	var (
		reports  query.ReportCache
		rankings query.RankingCache
	)
	if cache := bootstrap.Cache(ctx, cfg.Redis, log); cache != nil {
		defer func() { _ = cache.Close() }()
		health.AddCheck("redis", false, handlers.PingCheck(cache))
		if cfg.Features.IsEnabled(config.FeatureReportCache, nil) {
			reports = cache
		}
		rankings = redis.NewRankingCache(cache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	loader := query.NewCohortLoader(gb.Repository)
	deps := httpserver.Dependencies{
		Orientation: query.NewGetOrientationHandler(loader, engine, reports, log),
		Simulate:    query.NewSimulateHandler(loader, engine),
		Ranking:     query.NewGetTrackRankingHandler(loader, engine, rankings, cfg.Redis.ReportTTL, log),
		Progress:    query.NewGetProgressHandler(loader),
		Standing:    query.NewGetStandingHandler(loader),
		Subjects:    query.NewGetSubjectTableHandler(loader),
		Comparison:  query.NewGetComparisonHandler(loader, table),
		Features:    cfg.Features,
		Health:      health,
		Logger:      log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.ConfigFrom(cfg.HTTP), deps)
	errCh := server.StartAsync()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown completed")
	return nil
}
