package engine

import (
	"errors"
	"time"

	"github.com/SouthernStars/book-manage-system/lending"
)

var (
	// ErrNilTransactor is returned when the engine is created without storage.
	ErrNilTransactor = errors.New("transactor must not be nil")

	// ErrNilClock is returned when WithClock is given a nil function.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrNegativeFinePerDay is returned when WithFinePerDay is given a negative amount.
	ErrNegativeFinePerDay = errors.New("fine per day must not be negative")
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithClock replaces time.Now as the source of borrow, return and overdue dates.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return ErrNilClock
		}

		e.clock = clock

		return nil
	}
}

// WithFinePerDay sets the fine charged per calendar day of late return. The default is lending.FinePerDay.
func WithFinePerDay(amount float64) Option {
	return func(e *Engine) error {
		if amount < 0 {
			return ErrNegativeFinePerDay
		}

		e.finePerDay = amount

		return nil
	}
}

// WithRetryOptions configures the backoff used when a transaction loses a concurrency race.
func WithRetryOptions(options ...RetryOption) Option {
	return func(e *Engine) error {
		e.retryOptions = options
		return nil
	}
}

// WithLogger sets the logger for the Engine.
// Commands are logged at info level, queries at debug level, rejected requests at info level,
// retries at warn level, invariant violations and infrastructure failures at error level.
func WithLogger(logger lending.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It takes precedence over the Logger.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for operation durations, calls and retries.
func WithMetrics(collector lending.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Each engine call becomes one span.
func WithTracing(collector lending.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
