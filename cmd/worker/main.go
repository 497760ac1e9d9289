// Package main - точка входа фонового процесса (Worker).
//
// Worker периодически:
//   - синхронизирует секции из grade API в локальное зеркало (Postgres);
//   - прогревает кеш рейтингов треков в Redis после каждой синхронизации
//     и по собственному расписанию.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpi-hub/orientation-hub/config"
	"github.com/mpi-hub/orientation-hub/internal/application/command"
	"github.com/mpi-hub/orientation-hub/internal/application/query"
	"github.com/mpi-hub/orientation-hub/internal/bootstrap"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/external/gradeapi"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/persistence/postgres"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/persistence/redis"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/scheduler"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/scheduler/jobs"
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
	log := bootstrap.Logger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ И ИСТОЧНИК
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := bootstrap.Postgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	repo := postgres.NewGradebookRepository(conn)
	syncLog := postgres.NewSyncRepository(conn)
	source := gradeapi.NewSource(bootstrap.GradeAPIClient(cfg.GradeAPI, log), log)

	engine, _, err := bootstrap.Engine(cfg.Orientation)
	if err != nil {
		return fmt.Errorf("orientation engine: %w", err)
	}

	// Без Redis синхронизация работает, прогрев пропускается.
	var (
		invalidator command.CacheInvalidator
		warmer      *command.WarmReportsHandler
	)
	if cache := bootstrap.Cache(ctx, cfg.Redis, log); cache != nil {
		defer func() { _ = cache.Close() }()
		invalidator = cache
		warmer = command.NewWarmReportsHandler(
			query.NewCohortLoader(repo),
			engine,
			redis.NewRankingCache(cache),
			cache,
			cache.ReportTTL(),
			log,
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sections := cfg.Orientation.Sections
	syncJob := jobs.NewSyncSectionsJob(
		command.NewSyncSectionHandler(source, repo, syncLog, invalidator, log),
		sections,
		log,
	)

	sched := scheduler.New(scheduler.Config{
		Logger:            log,
		Timezone:          loc,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RunOnStart:        cfg.Scheduler.RunOnStart,
	})

	syncSchedule, err := scheduleFor(cfg.Scheduler.SyncCron, cfg.Scheduler.SyncInterval)
	if err != nil {
		return fmt.Errorf("sync schedule: %w", err)
	}
	if err := sched.Register(syncJob, syncSchedule); err != nil {
		return err
	}

	if warmer != nil {
		warmJob := jobs.NewWarmReportsJob(warmer, sections, cfg.Scheduler.WarmIncludeReports, log)
		syncJob.AfterSync(func(ctx context.Context, section string) {
			if err := warmJob.WarmSection(ctx, section); err != nil {
				log.Warn("warm after sync failed", logger.Section(section), logger.Err(err))
			}
		})

		warmSchedule, err := scheduleFor(cfg.Scheduler.WarmCron, cfg.Scheduler.WarmReportsInterval)
		if err != nil {
			return fmt.Errorf("warm schedule: %w", err)
		}
		if err := sched.Register(warmJob, warmSchedule); err != nil {
			return err
		}
	}

	sched.OnResult(func(r scheduler.JobResult) {
		if r.Success && r.JobName == syncJob.Name() {
			if st := syncJob.LastStats(); st != nil {
				log.Info("sync round finished",
					logger.Int("sections", st.Sections),
					logger.Int("failed", len(st.Failed)),
					logger.Int("students", st.Students),
					logger.Duration("duration", st.Duration))
			}
		}
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.Info("worker started",
		logger.Any("sections", sections),
		logger.String("sync", syncSchedule.String()),
		logger.Bool("warm", warmer != nil))

	<-ctx.Done()
	log.Info("shutdown signal received")

	done := make(chan struct{})
	go func() {
		_ = sched.Stop()
		close(done)
	}()
	select {
	case <-done:
		log.Info("shutdown completed")
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("shutdown timed out, jobs still running")
	}
	return nil
}

// scheduleFor prefers a cron expression over the fixed interval.
func scheduleFor(spec string, interval time.Duration) (scheduler.Schedule, error) {
	if spec != "" {
		return scheduler.ParseSchedule(spec)
	}
	return scheduler.Every(interval), nil
}
