package loadgen_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/internal/loadgen"
	"github.com/SouthernStars/book-manage-system/lending/engine"
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper/storewrapper" //nolint:revive
)

func Test_New_RejectsInvalidConfiguration(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()
	lendingEngine, err := engine.New(store)
	require.NoError(t, err)

	testCases := []struct {
		name        string
		mutate      func(*loadgen.Config)
		expectedErr error
	}{
		{name: "zero rate", mutate: func(c *loadgen.Config) { c.Rate = 0 }, expectedErr: loadgen.ErrNonPositiveRate},
		{name: "no titles", mutate: func(c *loadgen.Config) { c.Titles = 0 }, expectedErr: loadgen.ErrNonPositiveTitles},
		{name: "no borrowers", mutate: func(c *loadgen.Config) { c.Borrowers = 0 }, expectedErr: loadgen.ErrNonPositiveBorrowers},
		{name: "negative copies", mutate: func(c *loadgen.Config) { c.CopiesPerTitle = -1 }, expectedErr: loadgen.ErrNegativeCopies},
		{name: "zero loan days", mutate: func(c *loadgen.Config) { c.LoanDays = 0 }, expectedErr: loadgen.ErrNonPositiveLoanDays},
		{name: "weight above 100", mutate: func(c *loadgen.Config) { c.CirculationWeight = 101 }, expectedErr: loadgen.ErrInvalidWeight},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			config := loadgen.DefaultConfig()
			tc.mutate(&config)

			// act
			_, err := loadgen.New(store, lendingEngine, config, nil)

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}

	_, err = loadgen.New(nil, lendingEngine, loadgen.DefaultConfig(), nil)
	assert.ErrorIs(t, err, loadgen.ErrNilStore)

	_, err = loadgen.New(store, nil, loadgen.DefaultConfig(), nil)
	assert.ErrorIs(t, err, loadgen.ErrNilLender)
}

func Test_Run_FailsWithoutSeed(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	store := wrapper.GetStore()
	lendingEngine, err := engine.New(store)
	require.NoError(t, err)

	generator, err := loadgen.New(store, lendingEngine, loadgen.DefaultConfig(), nil)
	require.NoError(t, err)

	// act
	_, err = generator.Run(context.Background())

	// assert
	assert.ErrorIs(t, err, loadgen.ErrNotSeeded)
}

func Test_Run_KeepsInventoryConservedUnderContention(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	ctx := context.Background()
	store := wrapper.GetStore()
	lendingEngine, err := engine.New(store, engine.WithRetryOptions(engine.WithBaseDelay(time.Millisecond)))
	require.NoError(t, err)

	config := loadgen.Config{
		Rate:              200,
		Duration:          400 * time.Millisecond,
		Titles:            2,
		CopiesPerTitle:    1,
		Borrowers:         5,
		LoanDays:          7,
		CirculationWeight: 30,
	}

	generator, err := loadgen.New(store, lendingEngine, config, nil)
	require.NoError(t, err)

	// arrange
	require.NoError(t, generator.Seed(ctx), "error in arranging test data")

	// act
	stats, err := generator.Run(ctx)

	// assert
	require.NoError(t, err)
	assert.Positive(t, stats.Requests)
	assert.Zero(t, stats.Errors)
	assert.GreaterOrEqual(t, stats.Requests, stats.Rejections)
	assert.Positive(t, stats.Borrowed)
	assert.NoError(t, generator.Verify(ctx))
}
