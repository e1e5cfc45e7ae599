package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for the sql.db and sqlx.db adapters
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/SouthernStars/book-manage-system/internal/config"
	"github.com/SouthernStars/book-manage-system/lending/engine"
	"github.com/SouthernStars/book-manage-system/lending/oteladapters"
	"github.com/SouthernStars/book-manage-system/lending/scanner"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine"
)

const (
	instrumentationName = "github.com/SouthernStars/book-manage-system/lendingctl"

	telemetryShutdownTimeout = 5 * time.Second
)

// app is everything a command needs, built from the resolved configuration.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *sqlengine.Store
	engine  *engine.Engine
	scanner *scanner.Scanner
	close   func()
}

// withApp resolves the configuration, opens the store and runs fn. The store is closed and telemetry flushed afterwards.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}

	clock, err := opts.clock()
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}

	a, err := newApp(cmd.Context(), cfg, clock, cmd.ErrOrStderr(), opts.spanProcessors)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}
	defer a.close()

	return fn(cmd.Context(), a)
}

func newApp(
	ctx context.Context,
	cfg config.Config,
	clock func() time.Time,
	logOutput io.Writer,
	spanProcessors []sdktrace.SpanProcessor,
) (*app, error) {
	handler := cfg.Log.NewHandler(logOutput)
	logger := slog.New(handler)
	contextualLogger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)

	otelProviders, err := newTelemetry(ctx, cfg.Observability, spanProcessors)
	if err != nil {
		return nil, err
	}

	metrics := oteladapters.NewMetricsCollector(otelProviders.meterProvider.Meter(instrumentationName))
	tracing := oteladapters.NewTracingCollector(otelProviders.tracerProvider.Tracer(instrumentationName))

	store, closeStore, err := openStore(ctx, cfg.Database,
		sqlengine.WithLogger(logger),
		sqlengine.WithMetrics(metrics),
		sqlengine.WithTracing(tracing),
	)
	if err != nil {
		shutdownTelemetry(otelProviders, logger)
		return nil, err
	}

	release := func() {
		closeStore()
		shutdownTelemetry(otelProviders, logger)
	}

	lendingEngine, err := engine.New(store,
		engine.WithClock(clock),
		engine.WithFinePerDay(cfg.Lending.FinePerDay),
		engine.WithContextualLogger(contextualLogger),
		engine.WithMetrics(metrics),
		engine.WithTracing(tracing),
	)
	if err != nil {
		release()
		return nil, err
	}

	overdueScanner, err := scanner.New(store,
		scanner.WithClock(clock),
		scanner.WithContextualLogger(contextualLogger),
		scanner.WithMetrics(metrics),
		scanner.WithTracing(tracing),
	)
	if err != nil {
		release()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		engine:  lendingEngine,
		scanner: overdueScanner,
		close:   release,
	}, nil
}

// shutdownTelemetry flushes pending spans and metrics. A collector that is gone only costs a warning.
func shutdownTelemetry(t *telemetry, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()

	if err := t.shutdown(ctx); err != nil {
		logger.Warn("failed to shut down telemetry", "error", err)
	}
}

// openStore connects with the configured adapter and returns the store and a function releasing the connection.
func openStore(ctx context.Context, db config.DatabaseConfig, options ...sqlengine.Option) (*sqlengine.Store, func(), error) {
	switch db.Adapter {
	case config.AdapterSQLite:
		sqlDB, err := sqlengine.OpenSQLite(db.DSN)
		if err != nil {
			return nil, nil, err
		}

		return finishOpen(sqlengine.NewStoreFromSQLite(sqlDB, options...))(func() { _ = sqlDB.Close() })

	case config.AdapterPGXPool:
		poolConfig, err := pgxpool.ParseConfig(db.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse dsn: %w", err)
		}
		poolConfig.MaxConns = db.MaxConns

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		return finishOpen(sqlengine.NewStoreFromPGXPool(pool, options...))(pool.Close)

	case config.AdapterSQLDB:
		sqlDB, err := openPostgresSQLDB(ctx, db)
		if err != nil {
			return nil, nil, err
		}

		return finishOpen(sqlengine.NewStoreFromSQLDB(sqlDB, options...))(func() { _ = sqlDB.Close() })

	case config.AdapterSQLX:
		sqlDB, err := openPostgresSQLDB(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		sqlxDB := sqlx.NewDb(sqlDB, "postgres")

		return finishOpen(sqlengine.NewStoreFromSQLX(sqlxDB, options...))(func() { _ = sqlxDB.Close() })

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownAdapter, db.Adapter)
	}
}

func openPostgresSQLDB(ctx context.Context, db config.DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", db.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(int(db.MaxConns))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return sqlDB, nil
}

// finishOpen pairs a freshly created store with its closer, closing the connection when creation failed.
func finishOpen(store *sqlengine.Store, err error) func(closeFn func()) (*sqlengine.Store, func(), error) {
	return func(closeFn func()) (*sqlengine.Store, func(), error) {
		if err != nil {
			closeFn()
			return nil, nil, err
		}

		return store, closeFn, nil
	}
}
