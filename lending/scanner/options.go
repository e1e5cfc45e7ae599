package scanner

import (
	"errors"
	"time"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/engine"
)

var (
	// ErrNilTransactor is returned when the scanner is created without storage.
	ErrNilTransactor = errors.New("transactor must not be nil")

	// ErrNilClock is returned when WithClock is given a nil function.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrNonPositiveInterval is returned by Run for a zero or negative interval.
	ErrNonPositiveInterval = errors.New("sweep interval must be positive")
)

// Option defines a functional option for configuring the Scanner.
type Option func(*Scanner) error

// WithClock replaces time.Now as the source of the as-of date used by Run.
func WithClock(clock func() time.Time) Option {
	return func(s *Scanner) error {
		if clock == nil {
			return ErrNilClock
		}

		s.clock = clock

		return nil
	}
}

// WithRetryOptions configures the backoff used when marking a record loses a concurrency race.
func WithRetryOptions(options ...engine.RetryOption) Option {
	return func(s *Scanner) error {
		s.retryOptions = options
		return nil
	}
}

// WithLogger sets the logger for the Scanner.
func WithLogger(logger lending.Logger) Option {
	return func(s *Scanner) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It takes precedence over the Logger.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(s *Scanner) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for sweep durations and reclassification counts.
func WithMetrics(collector lending.MetricsCollector) Option {
	return func(s *Scanner) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Each sweep becomes one span.
func WithTracing(collector lending.TracingCollector) Option {
	return func(s *Scanner) error {
		s.tracingCollector = collector
		return nil
	}
}
