package sqlengine_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine"
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper"              //nolint:revive
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper/storewrapper" //nolint:revive
)

func Test_FactoryFunctions_ShouldFail_WithNilDatabaseConnection(t *testing.T) {
	// act
	_, pgxErr := sqlengine.NewStoreFromPGXPool((*pgxpool.Pool)(nil))
	_, sqlErr := sqlengine.NewStoreFromSQLDB((*sql.DB)(nil))
	_, sqlxErr := sqlengine.NewStoreFromSQLX((*sqlx.DB)(nil))
	_, sqliteErr := sqlengine.NewStoreFromSQLite((*sql.DB)(nil))

	// assert
	assert.ErrorIs(t, pgxErr, lending.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlErr, lending.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlxErr, lending.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqliteErr, lending.ErrNilDatabaseConnection)
}

func Test_FactoryFunctions_ShouldFail_WithEmptyTableName(t *testing.T) {
	testCases := []struct {
		name      string
		titles    string
		borrowers string
		loans     string
	}{
		{name: "empty titles table", titles: "", borrowers: "borrowers", loans: "loan_records"},
		{name: "empty borrowers table", titles: "titles", borrowers: "", loans: "loan_records"},
		{name: "empty loans table", titles: "titles", borrowers: "borrowers", loans: ""},
	}

	db, err := sqlengine.OpenSQLite(t.TempDir() + "/factory.db")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := sqlengine.NewStoreFromSQLite(db, sqlengine.WithTableNames(tc.titles, tc.borrowers, tc.loans))

			// assert
			assert.ErrorIs(t, err, lending.ErrEmptyTableNameSupplied)
		})
	}
}

func Test_Store_WithTableNames_ShouldWorkCorrectly(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := sqlengine.OpenSQLite(t.TempDir() + "/custom.db")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store, err := sqlengine.NewStoreFromSQLite(db, sqlengine.WithTableNames("branch_titles", "branch_borrowers", "branch_loans"))
	require.NoError(t, err)

	// act
	require.NoError(t, store.Migrate(ctxWithTimeout))
	title := GivenTitle(t, ctxWithTimeout, store, 2)

	// assert
	var count int
	require.NoError(t, db.QueryRowContext(ctxWithTimeout, "SELECT COUNT(*) FROM branch_titles").Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, LoadTitle(t, ctxWithTimeout, store, title.ID).AvailableCopies)
}

func Test_Migrate_IsIdempotent(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 1)

	// act
	err := store.Migrate(ctxWithTimeout)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 1, LoadTitle(t, ctxWithTimeout, store, title.ID).TotalCopies, "migrating again must keep existing rows")
}

func Test_WithinTransaction_RollsBack_WhenCallbackFails(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 3)
	errCallback := errors.New("callback failed")

	// act
	err := store.WithinTransaction(ctxWithTimeout, func(ctx context.Context, tx lending.TxScope) error {
		if reserveErr := tx.ReserveCopy(ctx, title.ID); reserveErr != nil {
			return reserveErr
		}

		return errCallback
	})

	// assert
	assert.ErrorIs(t, err, errCallback)
	assert.Equal(t, 3, LoadTitle(t, ctxWithTimeout, store, title.ID).AvailableCopies, "reservation must be rolled back")
}

func Test_WithinTransaction_RollsBack_AndRepanics_WhenCallbackPanics(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 2)

	// act
	assert.PanicsWithValue(t, "boom", func() {
		_ = store.WithinTransaction(ctxWithTimeout, func(ctx context.Context, tx lending.TxScope) error {
			_ = tx.ReserveCopy(ctx, title.ID)
			panic("boom")
		})
	})

	// assert
	assert.Equal(t, 2, LoadTitle(t, ctxWithTimeout, store, title.ID).AvailableCopies, "reservation must be rolled back")
}
