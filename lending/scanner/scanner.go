package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/engine"
)

// Scanner runs overdue sweeps over a lending.Transactor.
type Scanner struct {
	tx               lending.Transactor
	clock            func() time.Time
	retryOptions     []engine.RetryOption
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	// AsOf is the calendar date the sweep compared due dates against.
	AsOf time.Time

	// Examined counts the records past due as of AsOf that still hold a copy, already OVERDUE ones included.
	Examined int

	// Reclassified counts the records this sweep moved from ACTIVE to OVERDUE.
	Reclassified int

	// RecordIDs lists the reclassified records.
	RecordIDs []uuid.UUID
}

// New creates a Scanner on top of tx.
func New(tx lending.Transactor, options ...Option) (*Scanner, error) {
	if tx == nil {
		return nil, ErrNilTransactor
	}

	s := &Scanner{
		tx:    tx,
		clock: time.Now,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Sweep moves every ACTIVE record whose due date lies before asOf to OVERDUE.
//
// Each record is marked in its own transaction, and marking is conditional on the record still
// being ACTIVE, so a sweep racing with a return or with another sweep never overwrites a newer
// state. Running Sweep twice with the same asOf leaves the same set of OVERDUE records as running it once.
// On failure the result reports what was reclassified before the error.
func (s *Scanner) Sweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	asOf = lending.DateOf(asOf)
	start := time.Now()

	ctx, span := s.startSpan(ctx, asOf)

	result, err := s.sweep(ctx, asOf)

	duration := time.Since(start)
	s.finishSpan(span, result, err, duration)
	s.recordSweep(ctx, result, err, duration)

	if err != nil {
		s.logError(ctx, logMsgSweepFailed,
			logAttrAsOf, asOf.Format(dateLayout),
			logAttrReclassified, result.Reclassified,
			logAttrError, err.Error(),
		)

		return result, err
	}

	s.logInfo(ctx, logMsgSweepCompleted,
		logAttrAsOf, asOf.Format(dateLayout),
		logAttrExamined, result.Examined,
		logAttrReclassified, result.Reclassified,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return result, nil
}

func (s *Scanner) sweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	result := SweepResult{AsOf: asOf}

	var pastDue []lending.LoanRecord

	_, err := s.withRetry(ctx, retryOperationListOverdue, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var listErr error
			pastDue, listErr = tx.ListOverdue(ctx, asOf)

			return listErr
		})
	})
	if err != nil {
		return result, err
	}

	result.Examined = len(pastDue)

	for _, record := range pastDue {
		if record.Status != lending.StatusActive {
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		changed, err := s.markOverdue(ctx, record.ID, asOf)
		if err != nil {
			return result, err
		}

		if changed {
			result.Reclassified++
			result.RecordIDs = append(result.RecordIDs, record.ID)

			s.logDebug(ctx, logMsgRecordReclassified,
				logAttrRecordID, record.ID.String(),
				logAttrDueDate, record.DueDate.Format(dateLayout),
			)
		}
	}

	return result, nil
}

func (s *Scanner) markOverdue(ctx context.Context, recordID uuid.UUID, asOf time.Time) (bool, error) {
	var changed bool

	_, err := s.withRetry(ctx, retryOperationMarkOverdue, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var markErr error
			changed, markErr = tx.MarkOverdue(ctx, recordID, asOf)

			return markErr
		})
	})

	return changed, err
}

func (s *Scanner) withRetry(ctx context.Context, operation string, fn engine.RetryableFunc) (engine.RetryMetrics, error) {
	options := s.retryOptions
	if s.metricsCollector != nil {
		options = append(append([]engine.RetryOption{}, options...), engine.WithRetryMetrics(s.metricsCollector, operation))
	}

	return engine.RetryWithExponentialBackoff(ctx, fn, options...)
}

// Run sweeps once immediately and then every interval, using the scanner's clock for the as-of date.
// A failed sweep is logged and the loop carries on. Run returns nil once ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrNonPositiveInterval
	}

	s.logInfo(ctx, logMsgScannerStarted, logAttrInterval, interval.String())
	defer s.logInfo(ctx, logMsgScannerStopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx, s.clock()); err != nil && ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
