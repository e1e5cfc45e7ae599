package helper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine"
)

func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id
}

// FixedClock returns a clock that always reports now.
func FixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func FixtureTitle(t testing.TB, copies int) lending.Title {
	return lending.Title{
		ID:          GivenUniqueID(t),
		ISBN:        "978-1-098-10013-1",
		Name:        "Learning Domain-Driven Design",
		Author:      "Vlad Khononov",
		TotalCopies: copies,
	}
}

func GivenTitle(t testing.TB, ctx context.Context, store *sqlengine.Store, copies int) lending.Title {
	title, err := store.AddTitle(ctx, FixtureTitle(t, copies))
	require.NoError(t, err, "error in arranging test data")

	return title
}

func GivenBorrower(t testing.TB, ctx context.Context, store *sqlengine.Store) lending.Borrower {
	borrower, err := store.RegisterBorrower(ctx, lending.Borrower{ID: GivenUniqueID(t), Name: "Ada Reader", Enabled: true})
	require.NoError(t, err, "error in arranging test data")

	return borrower
}

func GivenDisabledBorrower(t testing.TB, ctx context.Context, store *sqlengine.Store) lending.Borrower {
	borrower, err := store.RegisterBorrower(ctx, lending.Borrower{ID: GivenUniqueID(t), Name: "Idle Reader", Enabled: false})
	require.NoError(t, err, "error in arranging test data")

	return borrower
}

// GivenLoan creates an ACTIVE record and reserves its copy the way a borrow does, bypassing the engine.
func GivenLoan(
	t testing.TB,
	ctx context.Context,
	store *sqlengine.Store,
	borrowerID uuid.UUID,
	titleID uuid.UUID,
	borrowDate time.Time,
	loanDays int,
) lending.LoanRecord {
	record := lending.LoanRecord{
		ID:         GivenUniqueID(t),
		BorrowerID: borrowerID,
		TitleID:    titleID,
		BorrowDate: lending.DateOf(borrowDate),
		DueDate:    lending.DueDateFor(borrowDate, loanDays),
		Status:     lending.StatusActive,
	}

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
		if err := tx.ReserveCopy(ctx, titleID); err != nil {
			return err
		}

		return tx.CreateLoan(ctx, record)
	})
	require.NoError(t, err, "error in arranging test data")

	return record
}

func LoadTitle(t testing.TB, ctx context.Context, store *sqlengine.Store, titleID uuid.UUID) lending.Title {
	var title lending.Title

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
		var err error
		title, err = tx.GetTitle(ctx, titleID)

		return err
	})
	require.NoError(t, err, "error in loading test data")

	return title
}

func LoadLoan(t testing.TB, ctx context.Context, store *sqlengine.Store, recordID uuid.UUID) lending.LoanRecord {
	var record lending.LoanRecord

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
		var err error
		record, err = tx.GetLoan(ctx, recordID)

		return err
	})
	require.NoError(t, err, "error in loading test data")

	return record
}

// AssertInventoryConserved checks available + holding records == total for a title.
func AssertInventoryConserved(t testing.TB, ctx context.Context, store *sqlengine.Store, titleID uuid.UUID) {
	t.Helper()

	var (
		title   lending.Title
		holding int
	)

	err := store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
		var err error
		if title, err = tx.GetTitle(ctx, titleID); err != nil {
			return err
		}

		holding, err = tx.CountActiveLoansByTitle(ctx, titleID)

		return err
	})
	require.NoError(t, err, "error in loading test data")

	assert.Equal(t, title.TotalCopies, title.AvailableCopies+holding, "inventory not conserved for title %s", titleID)
	assert.GreaterOrEqual(t, title.AvailableCopies, 0)
	assert.LessOrEqual(t, title.AvailableCopies, title.TotalCopies)
}
