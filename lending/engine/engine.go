package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
)

// Engine orchestrates borrow and return over a lending.Transactor.
// It keeps no state between calls; every call runs in its own storage transaction,
// retried with exponential backoff when it loses a concurrency race.
type Engine struct {
	tx               lending.Transactor
	clock            func() time.Time
	finePerDay       float64
	retryOptions     []RetryOption
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

// New creates an Engine on top of tx.
func New(tx lending.Transactor, options ...Option) (*Engine, error) {
	if tx == nil {
		return nil, ErrNilTransactor
	}

	e := &Engine{
		tx:         tx,
		clock:      time.Now,
		finePerDay: lending.FinePerDay,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Borrow lends one copy of a title to a borrower for loanDays days and returns the new ACTIVE record.
//
// Availability check, duplicate check, reservation and record creation commit together or not at all.
// Failures: ErrInvalidLoanPeriod, ErrBorrowerNotFound, ErrBorrowerDisabled, ErrTitleNotFound,
// ErrAlreadyBorrowed (or ErrDuplicateActiveLoan when a concurrent borrow for the pair won), ErrNoCopyAvailable.
func (e *Engine) Borrow(ctx context.Context, borrowerID, titleID uuid.UUID, loanDays int) (lending.LoanRecord, error) {
	observer, ctx := e.observe(ctx, operationBorrow, true,
		logAttrBorrowerID, borrowerID.String(),
		logAttrTitleID, titleID.String(),
		logAttrLoanDays, loanDays,
	)

	recordID, err := uuid.NewV7()
	if err != nil {
		observer.finish(err, RetryMetrics{})
		return lending.LoanRecord{}, err
	}

	command := BuildBorrowCommand(recordID, borrowerID, titleID, loanDays, e.clock())

	if err := ValidateBorrow(command); err != nil {
		observer.finish(err, RetryMetrics{})
		return lending.LoanRecord{}, err
	}

	var record lending.LoanRecord

	retry, err := e.withRetry(ctx, operationBorrow, func(ctx context.Context) error {
		return e.tx.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var borrowErr error
			record, borrowErr = borrowWithin(ctx, tx, command)

			return borrowErr
		})
	})

	if err != nil {
		observer.finish(err, retry)
		return lending.LoanRecord{}, err
	}

	observer.finish(nil, retry, logAttrRecordID, record.ID.String())

	return record, nil
}

func borrowWithin(ctx context.Context, tx lending.TxScope, command BorrowCommand) (lending.LoanRecord, error) {
	borrower, err := tx.LookupBorrower(ctx, command.BorrowerID)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	// a missing title is decided by DecideBorrow, after the borrower checks
	titleFound := true
	title, err := tx.LockTitle(ctx, command.TitleID)
	if err != nil {
		if !errors.Is(err, lending.ErrTitleNotFound) {
			return lending.LoanRecord{}, err
		}
		titleFound = false
	}

	_, hasActiveLoan, err := tx.FindActiveLoan(ctx, command.BorrowerID, command.TitleID)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	record, err := DecideBorrow(BorrowState{
		Borrower:      borrower,
		Title:         title,
		TitleFound:    titleFound,
		HasActiveLoan: hasActiveLoan,
	}, command)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	if err := tx.ReserveCopy(ctx, command.TitleID); err != nil {
		return lending.LoanRecord{}, err
	}

	if err := tx.CreateLoan(ctx, record); err != nil {
		return lending.LoanRecord{}, err
	}

	return record, nil
}

// ReturnLoan marks a record RETURNED as of today, computes its fine and puts the copy back into inventory.
//
// The record transition and the copy release commit together or not at all.
// Failures: ErrRecordNotFound, ErrAlreadyReturned. ErrInventoryOverflow means the inventory
// and the ledger disagree; it aborts the return and is logged at error level.
func (e *Engine) ReturnLoan(ctx context.Context, recordID uuid.UUID) (lending.LoanRecord, error) {
	observer, ctx := e.observe(ctx, operationReturn, true, logAttrRecordID, recordID.String())

	command := BuildReturnCommand(recordID, e.clock())

	var returned lending.LoanRecord

	retry, err := e.withRetry(ctx, operationReturn, func(ctx context.Context) error {
		return e.tx.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var returnErr error
			returned, returnErr = e.returnWithin(ctx, tx, command)

			return returnErr
		})
	})

	if err != nil {
		observer.finish(err, retry)
		return lending.LoanRecord{}, err
	}

	fine := 0.0
	if returned.FineAmount != nil {
		fine = *returned.FineAmount
	}

	observer.finish(nil, retry, logAttrTitleID, returned.TitleID.String(), logAttrFineAmount, fine)

	return returned, nil
}

func (e *Engine) returnWithin(ctx context.Context, tx lending.TxScope, command ReturnCommand) (lending.LoanRecord, error) {
	record, err := tx.LockLoan(ctx, command.RecordID)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	decision, err := DecideReturn(record, command, e.finePerDay)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	returned, err := tx.MarkReturned(ctx, record.ID, decision.ReturnDate, decision.Fine)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	if err := tx.ReleaseCopy(ctx, record.TitleID); err != nil {
		return lending.LoanRecord{}, err
	}

	return returned, nil
}

// ListActiveLoans returns the ACTIVE and OVERDUE records of a borrower, earliest due first.
func (e *Engine) ListActiveLoans(ctx context.Context, borrowerID uuid.UUID) ([]lending.LoanRecord, error) {
	return listQuery(ctx, e, operationListActiveLoans, []any{logAttrBorrowerID, borrowerID.String()},
		func(ctx context.Context, tx lending.TxScope) ([]lending.LoanRecord, error) {
			return tx.ListActiveLoans(ctx, borrowerID)
		})
}

// ListOverdue returns the not yet returned records whose due date lies before today.
// It does not depend on the overdue sweep having run.
func (e *Engine) ListOverdue(ctx context.Context) ([]lending.LoanRecord, error) {
	asOf := e.clock()

	return listQuery(ctx, e, operationListOverdue, nil,
		func(ctx context.Context, tx lending.TxScope) ([]lending.LoanRecord, error) {
			return tx.ListOverdue(ctx, asOf)
		})
}

// ListLoansByBorrower returns every record of a borrower, returned ones included, oldest first.
func (e *Engine) ListLoansByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]lending.LoanRecord, error) {
	return listQuery(ctx, e, operationListLoansByBorrower, []any{logAttrBorrowerID, borrowerID.String()},
		func(ctx context.Context, tx lending.TxScope) ([]lending.LoanRecord, error) {
			return tx.ListLoansByBorrower(ctx, borrowerID)
		})
}

// ListLoans returns every record in the ledger, returned ones included, oldest first.
func (e *Engine) ListLoans(ctx context.Context) ([]lending.LoanRecord, error) {
	return listQuery(ctx, e, operationListLoans, nil,
		func(ctx context.Context, tx lending.TxScope) ([]lending.LoanRecord, error) {
			return tx.ListLoans(ctx)
		})
}

// ListAvailableTitles returns the titles that have at least one copy on the shelf.
func (e *Engine) ListAvailableTitles(ctx context.Context) ([]lending.Title, error) {
	return listQuery(ctx, e, operationListAvailableTitles, nil,
		func(ctx context.Context, tx lending.TxScope) ([]lending.Title, error) {
			return tx.ListAvailableTitles(ctx)
		})
}

// GetLoan returns one record by id.
func (e *Engine) GetLoan(ctx context.Context, recordID uuid.UUID) (lending.LoanRecord, error) {
	return query(ctx, e, operationGetLoan, []any{logAttrRecordID, recordID.String()},
		func(ctx context.Context, tx lending.TxScope) (lending.LoanRecord, error) {
			return tx.GetLoan(ctx, recordID)
		})
}

// GetTitle returns one title with its current copy counts.
func (e *Engine) GetTitle(ctx context.Context, titleID uuid.UUID) (lending.Title, error) {
	return query(ctx, e, operationGetTitle, []any{logAttrTitleID, titleID.String()},
		func(ctx context.Context, tx lending.TxScope) (lending.Title, error) {
			return tx.GetTitle(ctx, titleID)
		})
}

// AvailableCopies returns how many copies of a title are on the shelf.
func (e *Engine) AvailableCopies(ctx context.Context, titleID uuid.UUID) (int, error) {
	title, err := e.GetTitle(ctx, titleID)
	if err != nil {
		return 0, err
	}

	return title.AvailableCopies, nil
}

// TotalCopies returns how many copies of a title the library owns.
func (e *Engine) TotalCopies(ctx context.Context, titleID uuid.UUID) (int, error) {
	title, err := e.GetTitle(ctx, titleID)
	if err != nil {
		return 0, err
	}

	return title.TotalCopies, nil
}

// Stats counts the records still holding a copy and those among them that are past due today.
func (e *Engine) Stats(ctx context.Context) (lending.LoanStats, error) {
	asOf := e.clock()

	return query(ctx, e, operationStats, nil,
		func(ctx context.Context, tx lending.TxScope) (lending.LoanStats, error) {
			return tx.Stats(ctx, asOf)
		})
}

// query runs read inside one retried transaction with the usual observation.
func query[T any](
	ctx context.Context,
	e *Engine,
	operation string,
	attrs []any,
	read func(ctx context.Context, tx lending.TxScope) (T, error),
) (T, error) {
	observer, ctx := e.observe(ctx, operation, false, attrs...)

	var result T

	retry, err := e.withRetry(ctx, operation, func(ctx context.Context) error {
		return e.tx.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var readErr error
			result, readErr = read(ctx, tx)

			return readErr
		})
	})

	observer.finish(err, retry)

	return result, err
}

// listQuery is query for slices, additionally logging the number of results.
func listQuery[T any](
	ctx context.Context,
	e *Engine,
	operation string,
	attrs []any,
	read func(ctx context.Context, tx lending.TxScope) ([]T, error),
) ([]T, error) {
	observer, ctx := e.observe(ctx, operation, false, attrs...)

	var result []T

	retry, err := e.withRetry(ctx, operation, func(ctx context.Context) error {
		return e.tx.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var readErr error
			result, readErr = read(ctx, tx)

			return readErr
		})
	})

	if err != nil {
		observer.finish(err, retry)
		return nil, err
	}

	observer.finish(nil, retry, logAttrResultCount, len(result))

	return result, nil
}

// withRetry runs fn with the configured backoff, logging each lost race.
func (e *Engine) withRetry(ctx context.Context, operation string, fn RetryableFunc) (RetryMetrics, error) {
	options := e.retryOptions
	if e.metricsCollector != nil {
		options = append(append([]RetryOption{}, options...), WithRetryMetrics(e.metricsCollector, operation))
	}

	attempt := 0

	return RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		attempt++

		err := fn(ctx)
		if errors.Is(err, lending.ErrConcurrencyConflict) {
			e.logWarn(ctx, logMsgRetrying, logAttrOperation, operation, logAttrAttempts, attempt, logAttrError, err.Error())
		}

		return err
	}, options...)
}
