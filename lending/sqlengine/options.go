package sqlengine

import (
	"github.com/SouthernStars/book-manage-system/lending"
)

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithTableNames sets the table names for titles, borrowers and loan records.
func WithTableNames(titles, borrowers, loans string) Option {
	return func(s *Store) error {
		if titles == "" || borrowers == "" || loans == "" {
			return lending.ErrEmptyTableNameSupplied
		}

		s.titlesTable = titles
		s.borrowersTable = borrowers
		s.loansTable = loans

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Inventory and ledger changes, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like rollback or cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// It receives the same messages as the Logger together with the context, which carries the active span.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// It receives transaction durations, database errors and concurrency conflicts.
func WithMetrics(collector lending.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store.
// Every transaction becomes one span.
func WithTracing(collector lending.TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}
