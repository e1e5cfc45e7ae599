package sqlengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SouthernStars/book-manage-system/lending"
)

const (
	metricTransactionDuration  = "lending_store_transaction_duration_seconds"
	metricDatabaseErrors       = "lending_store_database_errors_total"
	metricConcurrencyConflicts = "lending_store_concurrency_conflicts_total"
	spanNameTransaction        = "lending.store.transaction"
	spanAttrDialect            = "dialect"
	spanAttrErrorType          = "error_type"
	spanAttrDurationMS         = "duration_ms"
	labelStatus                = "status"
	labelDialect               = "dialect"
	labelErrorType             = "error_type"
	statusSuccess              = "success"
	statusError                = "error"
	statusConflict             = "conflict"
)

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	s.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, s.toMilliseconds(duration), logAttrQuery, sqlQuery)
}

// logOperation logs operational information at info level.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

func (s *Store) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
	}
}

// logError logs error information at the error level.
func (s *Store) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (s *Store) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func statusOf(err error) string {
	switch lending.ErrorType(err) {
	case lending.ErrorTypeNone:
		return statusSuccess
	case lending.ErrorTypeConcurrencyConflict:
		return statusConflict
	default:
		return statusError
	}
}

// === Tracing Observer Pattern ===

// transactionTracingObserver encapsulates the span lifecycle of one transaction.
type transactionTracingObserver struct {
	s    *Store
	span lending.SpanContext
}

func (s *Store) startTransactionTracing(ctx context.Context) (*transactionTracingObserver, context.Context) {
	if s.tracingCollector == nil {
		return &transactionTracingObserver{s: s}, ctx
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanNameTransaction, map[string]string{
		spanAttrDialect: string(s.dialect),
	})

	return &transactionTracingObserver{s: s, span: span}, newCtx
}

func (o *transactionTracingObserver) finish(err error, duration time.Duration) {
	if o.span == nil {
		return
	}

	status := statusOf(err)
	attrs := map[string]string{
		spanAttrDurationMS: fmt.Sprintf("%.2f", o.s.toMilliseconds(duration)),
	}

	if err != nil {
		attrs[spanAttrErrorType] = lending.ErrorType(err)
	}

	o.s.tracingCollector.FinishSpan(o.span, status, attrs)
}

// === Metrics Observer Pattern ===

// transactionMetricsObserver records duration, database errors and conflicts of one transaction.
type transactionMetricsObserver struct {
	s   *Store
	ctx context.Context
}

func (s *Store) startTransactionMetrics(ctx context.Context) *transactionMetricsObserver {
	return &transactionMetricsObserver{s: s, ctx: ctx}
}

func (o *transactionMetricsObserver) record(err error, duration time.Duration) {
	collector := o.s.metricsCollector
	if collector == nil {
		return
	}

	labels := map[string]string{
		labelDialect: string(o.s.dialect),
		labelStatus:  statusOf(err),
	}

	if contextual, ok := collector.(lending.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(o.ctx, metricTransactionDuration, duration, labels)
	} else {
		collector.RecordDuration(metricTransactionDuration, duration, labels)
	}

	errorType := lending.ErrorType(err)

	switch errorType {
	case lending.ErrorTypeNone:
		return
	case lending.ErrorTypeConcurrencyConflict:
		o.increment(metricConcurrencyConflicts, map[string]string{labelDialect: string(o.s.dialect)})
	case lending.ErrorTypeOther:
		o.increment(metricDatabaseErrors, map[string]string{labelDialect: string(o.s.dialect), labelErrorType: errorType})
	}
}

func (o *transactionMetricsObserver) increment(metric string, labels map[string]string) {
	if contextual, ok := o.s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(o.ctx, metric, labels)
		return
	}

	o.s.metricsCollector.IncrementCounter(metric, labels)
}
