package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine/internal/adapters"
)

const (
	actionFindActiveLoan          = "find active loan"
	actionCreateLoan              = "create loan"
	actionGetLoan                 = "get loan"
	actionLockLoan                = "lock loan"
	actionMarkReturned            = "mark returned"
	actionMarkOverdue             = "mark overdue"
	actionListOverdue             = "list overdue"
	actionListActiveLoans         = "list active loans"
	actionListLoansByBorrower     = "list loans by borrower"
	actionListLoans               = "list loans"
	actionCountActiveLoansByTitle = "count active loans by title"
	actionCountActiveLoans        = "count active loans"
	actionCountOverdueLoans       = "count overdue loans"
)

func loanColumns() []any {
	return []any{colID, colBorrowerID, colTitleID, colBorrowDate, colDueDate, colReturnDate, colStatus, colFineCents}
}

func holdingStatuses() exp.BooleanExpression {
	return goqu.C(colStatus).In(lending.StatusActive.String(), lending.StatusOverdue.String())
}

func scanLoan(rows adapters.DBRows) (lending.LoanRecord, error) {
	var (
		record     lending.LoanRecord
		returnDate sql.NullTime
		statusText string
		fineCents  sql.NullInt64
	)

	err := rows.Scan(
		&record.ID,
		&record.BorrowerID,
		&record.TitleID,
		&record.BorrowDate,
		&record.DueDate,
		&returnDate,
		&statusText,
		&fineCents,
	)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	record.Status, err = lending.ParseLoanStatus(statusText)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	record.BorrowDate = lending.DateOf(record.BorrowDate)
	record.DueDate = lending.DateOf(record.DueDate)

	if returnDate.Valid {
		returned := lending.DateOf(returnDate.Time)
		record.ReturnDate = &returned
	}

	if fineCents.Valid {
		fine := lending.FromCents(fineCents.Int64)
		record.FineAmount = &fine
	}

	return record, nil
}

func (tx *txScope) selectLoans(ctx context.Context, action string, ds *goqu.SelectDataset) ([]lending.LoanRecord, error) {
	rows, err := tx.store.queryRows(ctx, tx.q, action, ds)
	if err != nil {
		return nil, err
	}

	return collectRows(ctx, tx.store, rows, scanLoan)
}

func (tx *txScope) FindActiveLoan(ctx context.Context, borrowerID, titleID uuid.UUID) (lending.LoanRecord, bool, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(loanColumns()...).
		Where(
			goqu.C(colBorrowerID).Eq(borrowerID.String()),
			goqu.C(colTitleID).Eq(titleID.String()),
			holdingStatuses(),
		).
		Limit(1)

	records, err := tx.selectLoans(ctx, actionFindActiveLoan, ds)
	if err != nil {
		return lending.LoanRecord{}, false, err
	}

	if len(records) == 0 {
		return lending.LoanRecord{}, false, nil
	}

	return records[0], true, nil
}

// CreateLoan inserts a new record. The partial unique index rejects a second holding record for the same pair.
func (tx *txScope) CreateLoan(ctx context.Context, record lending.LoanRecord) error {
	if record.Status != lending.StatusActive {
		return fmt.Errorf("new loan record must be %s, got %s", lending.StatusActive, record.Status)
	}

	ds := tx.store.insert(tx.store.loansTable).Rows(goqu.Record{
		colID:         record.ID.String(),
		colBorrowerID: record.BorrowerID.String(),
		colTitleID:    record.TitleID.String(),
		colBorrowDate: lending.DateOf(record.BorrowDate),
		colDueDate:    lending.DateOf(record.DueDate),
		colStatus:     record.Status.String(),
	})

	if _, err := tx.store.execStatement(ctx, tx.q, actionCreateLoan, ds); err != nil {
		if isUniqueViolation(err) {
			return lending.ErrDuplicateActiveLoan.
				With(logAttrBorrowerID, record.BorrowerID).
				With(logAttrTitleID, record.TitleID)
		}

		return err
	}

	tx.store.logOperation(ctx, logMsgLoanCreated,
		logAttrRecordID, record.ID.String(),
		logAttrBorrowerID, record.BorrowerID.String(),
		logAttrTitleID, record.TitleID.String(),
	)

	return nil
}

func (tx *txScope) GetLoan(ctx context.Context, recordID uuid.UUID) (lending.LoanRecord, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(loanColumns()...).
		Where(goqu.C(colID).Eq(recordID.String()))

	return tx.selectOneLoan(ctx, actionGetLoan, ds, recordID)
}

func (tx *txScope) LockLoan(ctx context.Context, recordID uuid.UUID) (lending.LoanRecord, error) {
	ds := tx.store.forUpdate(
		tx.store.from(tx.store.loansTable).
			Select(loanColumns()...).
			Where(goqu.C(colID).Eq(recordID.String())),
	)

	return tx.selectOneLoan(ctx, actionLockLoan, ds, recordID)
}

func (tx *txScope) selectOneLoan(ctx context.Context, action string, ds *goqu.SelectDataset, recordID uuid.UUID) (lending.LoanRecord, error) {
	records, err := tx.selectLoans(ctx, action, ds)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	if len(records) == 0 {
		return lending.LoanRecord{}, lending.ErrRecordNotFound.With(logAttrRecordID, recordID)
	}

	return records[0], nil
}

// MarkReturned only touches records that still hold a copy, so a record is returned at most once.
func (tx *txScope) MarkReturned(ctx context.Context, recordID uuid.UUID, returnDate time.Time, fine float64) (lending.LoanRecord, error) {
	fineCents := lending.ToCents(fine)

	ds := tx.store.update(tx.store.loansTable).
		Set(goqu.Record{
			colReturnDate: lending.DateOf(returnDate),
			colStatus:     lending.StatusReturned.String(),
			colFineCents:  fineCents,
		}).
		Where(goqu.C(colID).Eq(recordID.String()), holdingStatuses())

	rowsAffected, err := tx.store.execStatement(ctx, tx.q, actionMarkReturned, ds)
	if err != nil {
		return lending.LoanRecord{}, err
	}

	if rowsAffected == 0 {
		if _, getErr := tx.GetLoan(ctx, recordID); getErr != nil {
			return lending.LoanRecord{}, getErr
		}

		return lending.LoanRecord{}, lending.ErrAlreadyReturned.With(logAttrRecordID, recordID)
	}

	tx.store.logOperation(ctx, logMsgLoanReturned, logAttrRecordID, recordID.String(), logAttrFineCents, fineCents)

	return tx.GetLoan(ctx, recordID)
}

// MarkOverdue is conditional on the record still being ACTIVE and past due, which makes sweeps idempotent.
func (tx *txScope) MarkOverdue(ctx context.Context, recordID uuid.UUID, asOf time.Time) (bool, error) {
	ds := tx.store.update(tx.store.loansTable).
		Set(goqu.Record{colStatus: lending.StatusOverdue.String()}).
		Where(
			goqu.C(colID).Eq(recordID.String()),
			goqu.C(colStatus).Eq(lending.StatusActive.String()),
			goqu.C(colDueDate).Lt(lending.DateOf(asOf)),
		)

	rowsAffected, err := tx.store.execStatement(ctx, tx.q, actionMarkOverdue, ds)
	if err != nil {
		return false, err
	}

	if rowsAffected > 0 {
		tx.store.logOperation(ctx, logMsgLoanMarkedOverdue, logAttrRecordID, recordID.String(), logAttrRowsAffected, rowsAffected)
	}

	return rowsAffected > 0, nil
}

func (tx *txScope) ListOverdue(ctx context.Context, asOf time.Time) ([]lending.LoanRecord, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(loanColumns()...).
		Where(holdingStatuses(), goqu.C(colDueDate).Lt(lending.DateOf(asOf))).
		Order(goqu.C(colDueDate).Asc(), goqu.C(colID).Asc())

	return tx.selectLoans(ctx, actionListOverdue, ds)
}

func (tx *txScope) ListActiveLoans(ctx context.Context, borrowerID uuid.UUID) ([]lending.LoanRecord, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(loanColumns()...).
		Where(goqu.C(colBorrowerID).Eq(borrowerID.String()), holdingStatuses()).
		Order(goqu.C(colDueDate).Asc(), goqu.C(colID).Asc())

	return tx.selectLoans(ctx, actionListActiveLoans, ds)
}

func (tx *txScope) ListLoansByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]lending.LoanRecord, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(loanColumns()...).
		Where(goqu.C(colBorrowerID).Eq(borrowerID.String())).
		Order(goqu.C(colBorrowDate).Asc(), goqu.C(colID).Asc())

	return tx.selectLoans(ctx, actionListLoansByBorrower, ds)
}

func (tx *txScope) ListLoans(ctx context.Context) ([]lending.LoanRecord, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(loanColumns()...).
		Order(goqu.C(colBorrowDate).Asc(), goqu.C(colID).Asc())

	return tx.selectLoans(ctx, actionListLoans, ds)
}

func (tx *txScope) CountActiveLoansByTitle(ctx context.Context, titleID uuid.UUID) (int, error) {
	ds := tx.store.from(tx.store.loansTable).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C(colTitleID).Eq(titleID.String()), holdingStatuses())

	return tx.store.countRows(ctx, tx.q, actionCountActiveLoansByTitle, ds)
}

func (tx *txScope) Stats(ctx context.Context, asOf time.Time) (lending.LoanStats, error) {
	active, err := tx.store.countRows(ctx, tx.q, actionCountActiveLoans,
		tx.store.from(tx.store.loansTable).
			Select(goqu.COUNT(goqu.Star())).
			Where(holdingStatuses()),
	)
	if err != nil {
		return lending.LoanStats{}, err
	}

	overdue, err := tx.store.countRows(ctx, tx.q, actionCountOverdueLoans,
		tx.store.from(tx.store.loansTable).
			Select(goqu.COUNT(goqu.Star())).
			Where(holdingStatuses(), goqu.C(colDueDate).Lt(lending.DateOf(asOf))),
	)
	if err != nil {
		return lending.LoanStats{}, err
	}

	return lending.LoanStats{ActiveLoans: active, OverdueLoans: overdue}, nil
}
