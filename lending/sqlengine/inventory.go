package sqlengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine/internal/adapters"
)

const (
	actionGetTitle            = "get title"
	actionLockTitle           = "lock title"
	actionReserveCopy         = "reserve copy"
	actionReleaseCopy         = "release copy"
	actionListAvailableTitles = "list available titles"
)

func titleColumns() []any {
	return []any{colID, colISBN, colName, colAuthor, colTotalCopies, colAvailableCopies}
}

func scanTitle(rows adapters.DBRows) (lending.Title, error) {
	var title lending.Title
	err := rows.Scan(&title.ID, &title.ISBN, &title.Name, &title.Author, &title.TotalCopies, &title.AvailableCopies)

	return title, err
}

func (tx *txScope) GetTitle(ctx context.Context, titleID uuid.UUID) (lending.Title, error) {
	ds := tx.store.from(tx.store.titlesTable).
		Select(titleColumns()...).
		Where(goqu.C(colID).Eq(titleID.String()))

	return tx.selectOneTitle(ctx, actionGetTitle, ds, titleID)
}

func (tx *txScope) LockTitle(ctx context.Context, titleID uuid.UUID) (lending.Title, error) {
	ds := tx.store.forUpdate(
		tx.store.from(tx.store.titlesTable).
			Select(titleColumns()...).
			Where(goqu.C(colID).Eq(titleID.String())),
	)

	return tx.selectOneTitle(ctx, actionLockTitle, ds, titleID)
}

func (tx *txScope) selectOneTitle(ctx context.Context, action string, ds *goqu.SelectDataset, titleID uuid.UUID) (lending.Title, error) {
	rows, err := tx.store.queryRows(ctx, tx.q, action, ds)
	if err != nil {
		return lending.Title{}, err
	}

	titles, err := collectRows(ctx, tx.store, rows, scanTitle)
	if err != nil {
		return lending.Title{}, err
	}

	if len(titles) == 0 {
		return lending.Title{}, lending.ErrTitleNotFound.With(logAttrTitleID, titleID)
	}

	return titles[0], nil
}

// ReserveCopy decrements available copies in a single conditional statement,
// so two concurrent reservations can never both take the last copy.
func (tx *txScope) ReserveCopy(ctx context.Context, titleID uuid.UUID) error {
	ds := tx.store.update(tx.store.titlesTable).
		Set(goqu.Record{colAvailableCopies: goqu.L(colAvailableCopies + " - 1")}).
		Where(
			goqu.C(colID).Eq(titleID.String()),
			goqu.C(colAvailableCopies).Gt(0),
		)

	rowsAffected, err := tx.store.execStatement(ctx, tx.q, actionReserveCopy, ds)
	if err != nil {
		if isCheckViolation(err) {
			return lending.ErrInventoryUnderflow.With(logAttrTitleID, titleID)
		}

		return err
	}

	if rowsAffected == 0 {
		if _, getErr := tx.GetTitle(ctx, titleID); getErr != nil {
			return getErr
		}

		return lending.ErrNoCopyAvailable.With(logAttrTitleID, titleID)
	}

	tx.store.logOperation(ctx, logMsgCopyReserved, logAttrTitleID, titleID.String())

	return nil
}

// ReleaseCopy increments available copies unless that would exceed the total.
func (tx *txScope) ReleaseCopy(ctx context.Context, titleID uuid.UUID) error {
	ds := tx.store.update(tx.store.titlesTable).
		Set(goqu.Record{colAvailableCopies: goqu.L(colAvailableCopies + " + 1")}).
		Where(
			goqu.C(colID).Eq(titleID.String()),
			goqu.C(colAvailableCopies).Lt(goqu.C(colTotalCopies)),
		)

	rowsAffected, err := tx.store.execStatement(ctx, tx.q, actionReleaseCopy, ds)
	if err != nil {
		if isCheckViolation(err) {
			return lending.ErrInventoryOverflow.With(logAttrTitleID, titleID)
		}

		return err
	}

	if rowsAffected == 0 {
		if _, getErr := tx.GetTitle(ctx, titleID); getErr != nil {
			return getErr
		}

		return lending.ErrInventoryOverflow.With(logAttrTitleID, titleID)
	}

	tx.store.logOperation(ctx, logMsgCopyReleased, logAttrTitleID, titleID.String())

	return nil
}

func (tx *txScope) ListAvailableTitles(ctx context.Context) ([]lending.Title, error) {
	ds := tx.store.from(tx.store.titlesTable).
		Select(titleColumns()...).
		Where(goqu.C(colAvailableCopies).Gt(0)).
		Order(goqu.C(colName).Asc(), goqu.C(colID).Asc())

	rows, err := tx.store.queryRows(ctx, tx.q, actionListAvailableTitles, ds)
	if err != nil {
		return nil, err
	}

	return collectRows(ctx, tx.store, rows, scanTitle)
}
