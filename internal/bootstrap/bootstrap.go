// Package bootstrap builds the infrastructure shared by the api and worker
// binaries from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/mpi-hub/orientation-hub/config"
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/benchmarks"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/external/gradeapi"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/persistence/postgres"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/persistence/redis"
	"github.com/mpi-hub/orientation-hub/internal/infrastructure/persistence/sqlite"
	"github.com/mpi-hub/orientation-hub/pkg/circuitbreaker"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// Logger builds the process logger. Development defaults to console output.
func Logger(cfg *config.Config) *logger.Logger {
	format := cfg.Log.Format
	if cfg.IsDevelopment() && os.Getenv("LOG_FORMAT") == "" {
		format = "console"
	}
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		Format:    format,
		AddCaller: true,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}

// Engine loads the historical tables and builds the orientation engine.
// The table is returned too; it answers historical comparisons.
func Engine(cfg config.OrientationConfig) (*orientation.Engine, *benchmarks.Table, error) {
	table, err := benchmarks.Load(cfg.BenchmarkFile)
	if err != nil {
		return nil, nil, err
	}
	target := cfg.TargetAverage
	if target <= 0 {
		target = table.TargetAverage
	}

	tracks := orientation.DefaultTracks()
	engine, err := orientation.NewEngine(orientation.Config{
		Tracks:     tracks,
		Benchmarks: table.Benchmarks(tracks, target),
		Threshold: orientation.ThresholdRule{
			MinAverage: cfg.IMIMinAverage,
			Value:      cfg.IMIValue,
		},
		EligibleCutoff: cfg.EligibleCutoff,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, table, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORES
// ══════════════════════════════════════════════════════════════════════════════

// Gradebook is the opened grade source together with its lifecycle hooks.
type Gradebook struct {
	Repository gradebook.Repository
	Ping       func(ctx context.Context) error
	Close      func()
	Name       string
}

// OpenGradebook opens the configured source. Postgres runs migrations when
// auto-migrate is on.
func OpenGradebook(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Gradebook, error) {
	switch cfg.Source {
	case config.SourcePostgres:
		conn, err := Postgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		return &Gradebook{
			Repository: postgres.NewGradebookRepository(conn),
			Ping:       conn.Ping,
			Close:      conn.Close,
			Name:       "postgres",
		}, nil

	case config.SourceSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &Gradebook{
			Repository: store,
			Ping:       store.Ping,
			Close:      func() { _ = store.Close() },
			Name:       "sqlite",
		}, nil

	case config.SourceAPI:
		client := GradeAPIClient(cfg.GradeAPI, log)
		return &Gradebook{
			Repository: gradeapi.NewSource(client, log),
			Ping:       func(context.Context) error { return breakerCheck(client.Breaker()) },
			Close:      func() {},
			Name:       "grade-api",
		}, nil
	}
	return nil, fmt.Errorf("unknown grade source %q", cfg.Source)
}

// Postgres opens the connection pool.
func Postgres(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Connection, error) {
	pc := postgres.DefaultConfig(cfg.URL)
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.QueryTimeout > 0 {
		pc.QueryTimeout = cfg.QueryTimeout
	}
	return postgres.NewConnection(ctx, pc)
}

// GradeAPIClient builds the upstream client.
func GradeAPIClient(cfg config.GradeAPIConfig, log *logger.Logger) *gradeapi.Client {
	cc := gradeapi.DefaultClientConfig(cfg.BaseURL, cfg.Token)
	cc.Timeout = cfg.RequestTimeout
	cc.RateLimit = cfg.RateLimit
	cc.RateBurst = cfg.RateLimitBurst
	cc.MaxRetries = cfg.MaxRetries
	cc.Workers = cfg.Workers
	cc.BreakerThreshold = cfg.CircuitBreakerThreshold
	cc.BreakerTimeout = cfg.CircuitBreakerTimeout
	cc.Logger = log
	return gradeapi.NewClient(cc)
}

// Cache connects to Redis. It returns nil, without error, when Redis is
// disabled or unreachable: the service then computes every report.
func Cache(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Cache {
	if cfg.Disabled {
		log.Info("redis disabled, caching off")
		return nil
	}
	rc := redis.DefaultConfig()
	rc.URL = cfg.URL
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout
	rc.ReportTTL = cfg.ReportTTL

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	})
	cache, err := redis.NewCache(ctx, rc, breaker)
	if err != nil {
		log.Warn("redis unavailable, caching off", logger.Err(err))
		return nil
	}
	log.Info("redis connected", logger.String("addr", rc.Addr()))
	return cache
}

func breakerCheck(cb *circuitbreaker.CircuitBreaker) error {
	if cb.State() == circuitbreaker.StateOpen {
		return fmt.Errorf("circuit %s is open", cb.Name())
	}
	return nil
}
