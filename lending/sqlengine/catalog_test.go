package sqlengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/lending"
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper"              //nolint:revive
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper/storewrapper" //nolint:revive
)

func Test_AddTitle_MakesEveryCopyAvailable(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	fixture := FixtureTitle(t, 4)
	fixture.AvailableCopies = 1

	// act
	title, err := store.AddTitle(ctxWithTimeout, fixture)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 4, title.AvailableCopies)
	assert.Equal(t, title, LoadTitle(t, ctxWithTimeout, store, title.ID))
}

func Test_AddTitle_Fails(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	existing := GivenTitle(t, ctxWithTimeout, store, 1)

	t.Run("with a negative copy count", func(t *testing.T) {
		_, err := store.AddTitle(ctxWithTimeout, FixtureTitle(t, -1))
		assert.ErrorIs(t, err, lending.ErrInvalidCopyCount)
		assert.True(t, lending.IsInvalidInput(err))
	})

	t.Run("with an id that is already catalogued", func(t *testing.T) {
		duplicate := FixtureTitle(t, 2)
		duplicate.ID = existing.ID

		_, err := store.AddTitle(ctxWithTimeout, duplicate)
		assert.ErrorIs(t, err, lending.ErrTitleAlreadyExists)
	})
}

func Test_AddCopies_GrowsTotalAndAvailableTogether(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 1)
	borrower := GivenBorrower(t, ctxWithTimeout, store)
	GivenLoan(t, ctxWithTimeout, store, borrower.ID, title.ID, borrowDay, 14)

	// act
	updated, err := store.AddCopies(ctxWithTimeout, title.ID, 2)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalCopies)
	assert.Equal(t, 2, updated.AvailableCopies)
	AssertInventoryConserved(t, ctxWithTimeout, store, title.ID)
}

func Test_RemoveCopies(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	title := GivenTitle(t, ctxWithTimeout, store, 3)
	borrower := GivenBorrower(t, ctxWithTimeout, store)
	GivenLoan(t, ctxWithTimeout, store, borrower.ID, title.ID, borrowDay, 14)

	t.Run("withdraws idle copies", func(t *testing.T) {
		updated, err := store.RemoveCopies(ctxWithTimeout, title.ID, 1)

		require.NoError(t, err)
		assert.Equal(t, 2, updated.TotalCopies)
		assert.Equal(t, 1, updated.AvailableCopies)
		AssertInventoryConserved(t, ctxWithTimeout, store, title.ID)
	})

	t.Run("refuses to withdraw lent copies", func(t *testing.T) {
		_, err := store.RemoveCopies(ctxWithTimeout, title.ID, 2)

		assert.ErrorIs(t, err, lending.ErrInventoryUnderflow)
		assert.Equal(t, 2, LoadTitle(t, ctxWithTimeout, store, title.ID).TotalCopies)
	})

	t.Run("fails for an unknown title", func(t *testing.T) {
		_, err := store.RemoveCopies(ctxWithTimeout, GivenUniqueID(t), 1)

		assert.ErrorIs(t, err, lending.ErrTitleNotFound)
	})

	t.Run("fails for a non-positive count", func(t *testing.T) {
		_, err := store.RemoveCopies(ctxWithTimeout, title.ID, 0)

		assert.ErrorIs(t, err, lending.ErrInvalidCopyCount)
	})
}

func Test_Borrowers(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()

	borrower := GivenBorrower(t, ctxWithTimeout, store)

	t.Run("registering an existing id fails", func(t *testing.T) {
		_, err := store.RegisterBorrower(ctxWithTimeout, lending.Borrower{ID: borrower.ID, Name: "twin", Enabled: true})

		assert.ErrorIs(t, err, lending.ErrBorrowerAlreadyExists)
	})

	t.Run("disabling is visible through LookupBorrower", func(t *testing.T) {
		_, err := store.SetBorrowerEnabled(ctxWithTimeout, borrower.ID, false)
		require.NoError(t, err)

		var loaded lending.Borrower
		err = store.WithinTransaction(ctxWithTimeout, func(ctx context.Context, tx lending.TxScope) error {
			var lookupErr error
			loaded, lookupErr = tx.LookupBorrower(ctx, borrower.ID)

			return lookupErr
		})

		require.NoError(t, err)
		assert.False(t, loaded.Enabled)
	})

	t.Run("unknown borrowers are not found", func(t *testing.T) {
		_, err := store.SetBorrowerEnabled(ctxWithTimeout, GivenUniqueID(t), true)

		assert.ErrorIs(t, err, lending.ErrBorrowerNotFound)
	})
}
