package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/SouthernStars/book-manage-system/lending"
)

const (
	metricOperationDuration = "lending_engine_operation_duration_seconds"
	metricOperationCalls    = "lending_engine_operation_calls_total"
	metricRetries           = "lending_engine_retries_total"
	metricRetryDelay        = "lending_engine_retry_delay_seconds"
	metricMaxRetriesReached = "lending_engine_max_retries_reached_total"

	labelOperation      = "operation"
	labelStatus         = "status"
	labelErrorType      = "error_type"
	labelAttemptNumber  = "attempt_number"
	labelFinalErrorType = "final_error_type"

	spanNamePrefix = "lending.engine."

	statusSuccess  = "success"
	statusRejected = "rejected"
	statusError    = "error"

	logMsgOperationStarted   = "lending operation started"
	logMsgOperationCompleted = "lending operation completed"
	logMsgOperationRejected  = "lending operation rejected"
	logMsgOperationFailed    = "lending operation failed"
	logMsgInvariantViolated  = "lending invariant violated"
	logMsgRetrying           = "retrying lending operation after concurrency conflict"

	logAttrOperation        = "operation"
	logAttrStatus           = "status"
	logAttrDurationMS       = "duration_ms"
	logAttrAttempts         = "attempts"
	logAttrErrorCode        = "error_code"
	logAttrError            = "error"
	logAttrBorrowerID       = "borrower_id"
	logAttrTitleID          = "title_id"
	logAttrRecordID         = "record_id"
	logAttrLoanDays         = "loan_days"
	logAttrFineAmount       = "fine_amount"
	logAttrResultCount      = "result_count"
	logAttrRetriesExhausted = "retries_exhausted"
)

const (
	operationBorrow              = "borrow"
	operationReturn              = "return"
	operationListActiveLoans     = "list_active_loans"
	operationListOverdue         = "list_overdue"
	operationListLoansByBorrower = "list_loans_by_borrower"
	operationListLoans           = "list_loans"
	operationGetLoan             = "get_loan"
	operationGetTitle            = "get_title"
	operationListAvailableTitles = "list_available_titles"
	operationStats               = "stats"
)

// statusOf maps an operation result to its metrics status.
// Expected domain failures are "rejected"; infrastructure failures and invariant violations are "error".
func statusOf(err error) string {
	if err == nil {
		return statusSuccess
	}

	if lending.IsNotFound(err) || lending.IsConflict(err) || lending.IsInvalidInput(err) {
		return statusRejected
	}

	return statusError
}

func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logDebug(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}

// === Operation Observer Pattern ===

// operationObserver carries the span, timing and log context of one engine call.
type operationObserver struct {
	e         *Engine
	ctx       context.Context
	operation string
	mutating  bool
	span      lending.SpanContext
	start     time.Time
	attrs     []any
}

// observe starts the observation of an operation. attrs are slog-style key/value pairs
// added to every log line of the operation.
func (e *Engine) observe(ctx context.Context, operation string, mutating bool, attrs ...any) (*operationObserver, context.Context) {
	o := &operationObserver{
		e:         e,
		ctx:       ctx,
		operation: operation,
		mutating:  mutating,
		start:     time.Now(),
		attrs:     append([]any{logAttrOperation, operation}, attrs...),
	}

	if e.tracingCollector != nil {
		spanAttrs := map[string]string{labelOperation: operation}
		for i := 0; i+1 < len(attrs); i += 2 {
			spanAttrs[fmt.Sprint(attrs[i])] = fmt.Sprint(attrs[i+1])
		}

		o.ctx, o.span = e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)
	}

	if mutating {
		e.logInfo(o.ctx, logMsgOperationStarted, o.attrs...)
	} else {
		e.logDebug(o.ctx, logMsgOperationStarted, o.attrs...)
	}

	return o, o.ctx
}

// finish records metrics, finishes the span and logs the outcome. extra are key/value pairs for the success log.
func (o *operationObserver) finish(err error, retry RetryMetrics, extra ...any) {
	duration := time.Since(o.start)
	status := statusOf(err)

	o.recordMetrics(status, err, duration)
	o.finishSpan(status, err, duration, retry)

	args := append([]any{}, o.attrs...)
	args = append(args,
		logAttrStatus, status,
		logAttrDurationMS, toMilliseconds(duration),
		logAttrAttempts, retry.Attempts,
	)

	switch {
	case err == nil:
		args = append(args, extra...)
		if o.mutating {
			o.e.logInfo(o.ctx, logMsgOperationCompleted, args...)
		} else {
			o.e.logDebug(o.ctx, logMsgOperationCompleted, args...)
		}

	case lending.IsInvariantViolation(err):
		o.e.logError(o.ctx, logMsgInvariantViolated, append(args, logAttrError, err.Error())...)

	case status == statusRejected:
		o.e.logInfo(o.ctx, logMsgOperationRejected, append(args, logAttrErrorCode, errorCode(err), logAttrError, err.Error())...)

	default:
		args = append(args, logAttrError, err.Error(), logAttrRetriesExhausted, retry.RetriesExhausted)
		o.e.logError(o.ctx, logMsgOperationFailed, args...)
	}
}

func (o *operationObserver) recordMetrics(status string, err error, duration time.Duration) {
	collector := o.e.metricsCollector
	if collector == nil {
		return
	}

	labels := map[string]string{
		labelOperation: o.operation,
		labelStatus:    status,
	}
	if err != nil {
		labels[labelErrorType] = lending.ErrorType(err)
	}

	if contextual, ok := collector.(lending.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(o.ctx, metricOperationDuration, duration, labels)
		contextual.IncrementCounterContext(o.ctx, metricOperationCalls, labels)

		return
	}

	collector.RecordDuration(metricOperationDuration, duration, labels)
	collector.IncrementCounter(metricOperationCalls, labels)
}

func (o *operationObserver) finishSpan(status string, err error, duration time.Duration, retry RetryMetrics) {
	if o.span == nil {
		return
	}

	attrs := map[string]string{
		logAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
		logAttrAttempts:   strconv.Itoa(retry.Attempts),
	}

	if err != nil {
		attrs[labelErrorType] = lending.ErrorType(err)
		attrs[logAttrError] = err.Error()
	}

	o.e.tracingCollector.FinishSpan(o.span, status, attrs)
}

func errorCode(err error) string {
	if domainErr, ok := lending.AsError(err); ok {
		return domainErr.Code
	}

	return ""
}
