package sqlengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine/internal/adapters"
)

const (
	actionLookupBorrower     = "lookup borrower"
	actionRegisterBorrower   = "register borrower"
	actionSetBorrowerEnabled = "set borrower enabled"
)

func scanBorrower(rows adapters.DBRows) (lending.Borrower, error) {
	var borrower lending.Borrower
	err := rows.Scan(&borrower.ID, &borrower.Name, &borrower.Enabled)

	return borrower, err
}

func (tx *txScope) LookupBorrower(ctx context.Context, borrowerID uuid.UUID) (lending.Borrower, error) {
	ds := tx.store.from(tx.store.borrowersTable).
		Select(colID, colName, colEnabled).
		Where(goqu.C(colID).Eq(borrowerID.String()))

	rows, err := tx.store.queryRows(ctx, tx.q, actionLookupBorrower, ds)
	if err != nil {
		return lending.Borrower{}, err
	}

	borrowers, err := collectRows(ctx, tx.store, rows, scanBorrower)
	if err != nil {
		return lending.Borrower{}, err
	}

	if len(borrowers) == 0 {
		return lending.Borrower{}, lending.ErrBorrowerNotFound.With(logAttrBorrowerID, borrowerID)
	}

	return borrowers[0], nil
}

// RegisterBorrower stores a borrower. A nil ID is replaced by a fresh one.
func (s *Store) RegisterBorrower(ctx context.Context, borrower lending.Borrower) (lending.Borrower, error) {
	if borrower.ID == uuid.Nil {
		borrower.ID = uuid.New()
	}

	err := s.WithinTransaction(ctx, func(ctx context.Context, scope lending.TxScope) error {
		tx := scope.(*txScope)

		ds := s.insert(s.borrowersTable).Rows(goqu.Record{
			colID:      borrower.ID.String(),
			colName:    borrower.Name,
			colEnabled: borrower.Enabled,
		})

		if _, err := s.execStatement(ctx, tx.q, actionRegisterBorrower, ds); err != nil {
			if isUniqueViolation(err) {
				return lending.ErrBorrowerAlreadyExists.With(logAttrBorrowerID, borrower.ID)
			}

			return err
		}

		return nil
	})
	if err != nil {
		return lending.Borrower{}, err
	}

	s.logOperation(ctx, logMsgBorrowerRegistered, logAttrBorrowerID, borrower.ID.String())

	return borrower, nil
}

// SetBorrowerEnabled enables or disables a borrower. Disabled borrowers cannot borrow but can still return.
func (s *Store) SetBorrowerEnabled(ctx context.Context, borrowerID uuid.UUID, enabled bool) (lending.Borrower, error) {
	var borrower lending.Borrower

	err := s.WithinTransaction(ctx, func(ctx context.Context, scope lending.TxScope) error {
		tx := scope.(*txScope)

		ds := s.update(s.borrowersTable).
			Set(goqu.Record{colEnabled: enabled}).
			Where(goqu.C(colID).Eq(borrowerID.String()))

		rowsAffected, err := s.execStatement(ctx, tx.q, actionSetBorrowerEnabled, ds)
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return lending.ErrBorrowerNotFound.With(logAttrBorrowerID, borrowerID)
		}

		borrower, err = tx.LookupBorrower(ctx, borrowerID)

		return err
	})
	if err != nil {
		return lending.Borrower{}, err
	}

	s.logOperation(ctx, logMsgBorrowerUpdated, logAttrBorrowerID, borrowerID.String(), colEnabled, enabled)

	return borrower, nil
}
