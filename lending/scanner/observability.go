package scanner

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/SouthernStars/book-manage-system/lending"
)

const (
	metricSweepDuration       = "lending_scanner_sweep_duration_seconds"
	metricSweeps              = "lending_scanner_sweeps_total"
	metricRecordsReclassified = "lending_scanner_records_reclassified"

	retryOperationMarkOverdue = "mark_overdue"
	retryOperationListOverdue = "list_overdue"

	labelStatus    = "status"
	labelErrorType = "error_type"

	spanNameSweep = "lending.scanner.sweep"

	statusSuccess = "success"
	statusError   = "error"

	logMsgSweepCompleted     = "overdue sweep completed"
	logMsgSweepFailed        = "overdue sweep failed"
	logMsgRecordReclassified = "loan record reclassified as overdue"
	logMsgScannerStarted     = "overdue scanner started"
	logMsgScannerStopped     = "overdue scanner stopped"

	logAttrAsOf         = "as_of"
	logAttrExamined     = "examined"
	logAttrReclassified = "reclassified"
	logAttrRecordID     = "record_id"
	logAttrDueDate      = "due_date"
	logAttrInterval     = "interval"
	logAttrDurationMS   = "duration_ms"
	logAttrError        = "error"

	dateLayout = "2006-01-02"
)

func (s *Scanner) logInfo(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scanner) logDebug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Scanner) logError(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func statusOf(err error) string {
	if err != nil {
		return statusError
	}

	return statusSuccess
}

func (s *Scanner) startSpan(ctx context.Context, asOf time.Time) (context.Context, lending.SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, spanNameSweep, map[string]string{logAttrAsOf: asOf.Format(dateLayout)})
}

func (s *Scanner) finishSpan(span lending.SpanContext, result SweepResult, err error, duration time.Duration) {
	if span == nil {
		return
	}

	attrs := map[string]string{
		logAttrExamined:     strconv.Itoa(result.Examined),
		logAttrReclassified: strconv.Itoa(result.Reclassified),
		logAttrDurationMS:   fmt.Sprintf("%.2f", toMilliseconds(duration)),
	}

	if err != nil {
		attrs[labelErrorType] = lending.ErrorType(err)
		attrs[logAttrError] = err.Error()
	}

	s.tracingCollector.FinishSpan(span, statusOf(err), attrs)
}

func (s *Scanner) recordSweep(ctx context.Context, result SweepResult, err error, duration time.Duration) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelStatus: statusOf(err)}
	if err != nil {
		labels[labelErrorType] = lending.ErrorType(err)
	}

	if contextual, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricSweepDuration, duration, labels)
		contextual.IncrementCounterContext(ctx, metricSweeps, labels)
		contextual.RecordValueContext(ctx, metricRecordsReclassified, float64(result.Reclassified), labels)

		return
	}

	s.metricsCollector.RecordDuration(metricSweepDuration, duration, labels)
	s.metricsCollector.IncrementCounter(metricSweeps, labels)
	s.metricsCollector.RecordValue(metricRecordsReclassified, float64(result.Reclassified), labels)
}
