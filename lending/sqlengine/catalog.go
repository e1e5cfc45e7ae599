package sqlengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
)

const (
	actionAddTitle     = "add title"
	actionAddCopies    = "add copies"
	actionRemoveCopies = "remove copies"
)

// AddTitle catalogs a title with all of its copies available. A nil ID is replaced by a fresh one.
func (s *Store) AddTitle(ctx context.Context, title lending.Title) (lending.Title, error) {
	if title.TotalCopies < 0 {
		return lending.Title{}, lending.ErrInvalidCopyCount.With("total_copies", title.TotalCopies)
	}

	if title.ID == uuid.Nil {
		title.ID = uuid.New()
	}
	title.AvailableCopies = title.TotalCopies

	err := s.WithinTransaction(ctx, func(ctx context.Context, scope lending.TxScope) error {
		tx := scope.(*txScope)

		ds := s.insert(s.titlesTable).Rows(goqu.Record{
			colID:              title.ID.String(),
			colISBN:            title.ISBN,
			colName:            title.Name,
			colAuthor:          title.Author,
			colTotalCopies:     title.TotalCopies,
			colAvailableCopies: title.AvailableCopies,
		})

		if _, err := s.execStatement(ctx, tx.q, actionAddTitle, ds); err != nil {
			if isUniqueViolation(err) {
				return lending.ErrTitleAlreadyExists.With(logAttrTitleID, title.ID)
			}

			return err
		}

		return nil
	})
	if err != nil {
		return lending.Title{}, err
	}

	s.logOperation(ctx, logMsgTitleAdded, logAttrTitleID, title.ID.String(), colTotalCopies, title.TotalCopies)

	return title, nil
}

// AddCopies grows total and available copies of a title together.
func (s *Store) AddCopies(ctx context.Context, titleID uuid.UUID, count int) (lending.Title, error) {
	if count <= 0 {
		return lending.Title{}, lending.ErrInvalidCopyCount.With("count", count)
	}

	return s.changeCopies(ctx, actionAddCopies, titleID, count, nil)
}

// RemoveCopies withdraws idle copies of a title. Copies held by borrowers cannot be removed.
func (s *Store) RemoveCopies(ctx context.Context, titleID uuid.UUID, count int) (lending.Title, error) {
	if count <= 0 {
		return lending.Title{}, lending.ErrInvalidCopyCount.With("count", count)
	}

	return s.changeCopies(ctx, actionRemoveCopies, titleID, -count, goqu.C(colAvailableCopies).Gte(count))
}

func (s *Store) changeCopies(ctx context.Context, action string, titleID uuid.UUID, delta int, guard exp.Expression) (lending.Title, error) {
	var title lending.Title

	err := s.WithinTransaction(ctx, func(ctx context.Context, scope lending.TxScope) error {
		tx := scope.(*txScope)

		where := []exp.Expression{goqu.C(colID).Eq(titleID.String())}
		if guard != nil {
			where = append(where, guard)
		}

		ds := s.update(s.titlesTable).
			Set(goqu.Record{
				colTotalCopies:     goqu.L(colTotalCopies+" + ?", delta),
				colAvailableCopies: goqu.L(colAvailableCopies+" + ?", delta),
			}).
			Where(where...)

		rowsAffected, err := s.execStatement(ctx, tx.q, action, ds)
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

			return lending.ErrInventoryUnderflow.With(logAttrTitleID, titleID).With(logAttrDelta, delta)
		}

		title, err = tx.GetTitle(ctx, titleID)

		return err
	})
	if err != nil {
		return lending.Title{}, err
	}

	s.logOperation(ctx, logMsgCopiesChanged, logAttrTitleID, titleID.String(), logAttrDelta, delta)

	return title, nil
}
