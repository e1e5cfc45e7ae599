package scanner_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/engine"
	. "github.com/SouthernStars/book-manage-system/lending/scanner" //nolint:revive
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper"              //nolint:revive
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper/storewrapper" //nolint:revive
)

var (
	borrowDay = time.Date(2024, time.January, 1, 11, 0, 0, 0, time.UTC)
	dueDay    = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
)

func Test_New_RejectsInvalidConfiguration(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()

	// act & assert
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilTransactor)

	_, err = New(wrapper.GetStore(), WithClock(nil))
	assert.ErrorIs(t, err, ErrNilClock)
}

func Test_Sweep_ReclassifiesOnlyActiveRecordsPastTheirDueDate(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	ctx := context.Background()
	store := wrapper.GetStore()
	scanner, err := New(store)
	require.NoError(t, err)

	// arrange
	title := GivenTitle(t, ctx, store, 3)
	late := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 14)
	dueToday := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay.AddDate(0, 0, 1), 14)
	returnedLate := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 14)
	err = store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
		if _, err := tx.MarkReturned(ctx, returnedLate.ID, dueDay.AddDate(0, 0, 1), 0.5); err != nil {
			return err
		}

		return tx.ReleaseCopy(ctx, title.ID)
	})
	require.NoError(t, err, "error in arranging test data")

	// act
	result, err := scanner.Sweep(ctx, dueDay.AddDate(0, 0, 1).Add(20*time.Hour))

	// assert
	require.NoError(t, err)
	assert.Equal(t, dueDay.AddDate(0, 0, 1), result.AsOf)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Reclassified)
	assert.Equal(t, []uuid.UUID{late.ID}, result.RecordIDs)

	reloaded := LoadLoan(t, ctx, store, late.ID)
	assert.Equal(t, lending.StatusOverdue, reloaded.Status)
	assert.Nil(t, reloaded.FineAmount, "a sweep never accrues fines")
	assert.Nil(t, reloaded.ReturnDate)

	assert.Equal(t, lending.StatusActive, LoadLoan(t, ctx, store, dueToday.ID).Status)
	assert.Equal(t, lending.StatusReturned, LoadLoan(t, ctx, store, returnedLate.ID).Status)

	assert.Equal(t, 1, LoadTitle(t, ctx, store, title.ID).AvailableCopies, "a sweep never touches inventory")
	AssertInventoryConserved(t, ctx, store, title.ID)
}

func Test_Sweep_IsIdempotent(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	ctx := context.Background()
	store := wrapper.GetStore()
	scanner, err := New(store)
	require.NoError(t, err)
	asOf := dueDay.AddDate(0, 0, 3)

	// arrange
	title := GivenTitle(t, ctx, store, 2)
	first := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 14)
	second := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 10)

	// act
	firstRun, err := scanner.Sweep(ctx, asOf)
	require.NoError(t, err)
	secondRun, err := scanner.Sweep(ctx, asOf)
	require.NoError(t, err)

	// assert
	assert.Equal(t, 2, firstRun.Reclassified)
	assert.ElementsMatch(t, firstRun.RecordIDs, []uuid.UUID{first.ID, second.ID})
	assert.Equal(t, 2, secondRun.Examined)
	assert.Equal(t, 0, secondRun.Reclassified)
	assert.Empty(t, secondRun.RecordIDs)
	assert.Equal(t, lending.StatusOverdue, LoadLoan(t, ctx, store, first.ID).Status)
	assert.Equal(t, lending.StatusOverdue, LoadLoan(t, ctx, store, second.ID).Status)
}

func Test_Sweep_OverdueRecordsStayReturnableWithTheSameFine(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	ctx := context.Background()
	store := wrapper.GetStore()
	returnDay := dueDay.AddDate(0, 0, 5)
	scanner, err := New(store)
	require.NoError(t, err)
	lendingEngine, err := engine.New(store, engine.WithClock(FixedClock(returnDay)))
	require.NoError(t, err)

	// arrange
	title := GivenTitle(t, ctx, store, 1)
	record := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 14)
	_, err = scanner.Sweep(ctx, returnDay)
	require.NoError(t, err, "error in arranging test data")

	// act
	returned, err := lendingEngine.ReturnLoan(ctx, record.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, lending.StatusReturned, returned.Status)
	require.NotNil(t, returned.FineAmount)
	assert.InDelta(t, 2.5, *returned.FineAmount, 0.0001)
	assert.Equal(t, 1, LoadTitle(t, ctx, store, title.ID).AvailableCopies)
}

func Test_Sweep_IsObservable(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	ctx := context.Background()
	store := wrapper.GetStore()
	logHandler := NewLogHandlerSpy(false)
	metrics := NewMetricsCollectorSpy(true)
	tracing := NewTracingCollectorSpy(true)
	scanner, err := New(store,
		WithLogger(slog.New(logHandler)),
		WithMetrics(metrics),
		WithTracing(tracing),
	)
	require.NoError(t, err)

	// arrange
	title := GivenTitle(t, ctx, store, 1)
	GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 14)

	// act
	_, err = scanner.Sweep(ctx, dueDay.AddDate(0, 0, 2))
	require.NoError(t, err)

	// assert
	assert.True(t,
		logHandler.HasInfoLogWithMessage("overdue sweep completed").
			WithAttr("as_of", "2024-01-17").
			WithAttr("reclassified", "1").
			WithDurationMS().
			Assert(),
	)
	assert.True(t, logHandler.HasDebugLogWithMessage("loan record reclassified as overdue").WithAttr("due_date", "2024-01-15").Assert())
	assert.True(t, metrics.HasDurationRecordForMetric("lending_scanner_sweep_duration_seconds").WithStatus("success").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("lending_scanner_sweeps_total").WithStatus("success").Assert())
	assert.True(t, metrics.HasValueRecordForMetric("lending_scanner_records_reclassified").Assert())
	assert.True(t,
		tracing.HasSpanRecordForName("lending.scanner.sweep").
			WithStatus("success").
			WithStartAttribute("as_of", "2024-01-17").
			WithEndAttribute("reclassified", "1").
			Assert(),
	)
}

func Test_Sweep_FailsOnCanceledContext(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	logHandler := NewLogHandlerSpy(false)
	scanner, err := New(wrapper.GetStore(), WithLogger(slog.New(logHandler)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err = scanner.Sweep(ctx, dueDay)

	// assert
	assert.Error(t, err)
	assert.True(t, logHandler.HasErrorLogWithMessage("overdue sweep failed").WithAttrKey("error").Assert())
}

func Test_Run_RejectsNonPositiveInterval(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	scanner, err := New(wrapper.GetStore())
	require.NoError(t, err)

	// act & assert
	assert.ErrorIs(t, scanner.Run(context.Background(), 0), ErrNonPositiveInterval)
	assert.ErrorIs(t, scanner.Run(context.Background(), -time.Second), ErrNonPositiveInterval)
}

func Test_Run_SweepsUntilCanceled(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	ctx := context.Background()
	store := wrapper.GetStore()
	logHandler := NewLogHandlerSpy(false)
	scanner, err := New(store,
		WithClock(FixedClock(dueDay.AddDate(0, 0, 1))),
		WithLogger(slog.New(logHandler)),
	)
	require.NoError(t, err)

	// arrange
	title := GivenTitle(t, ctx, store, 1)
	record := GivenLoan(t, ctx, store, GivenBorrower(t, ctx, store).ID, title.ID, borrowDay, 14)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	// act
	go func() { done <- scanner.Run(runCtx, 10*time.Millisecond) }()

	// assert
	assert.Eventually(t, func() bool {
		return logHandler.CountLogsWithMessage(slog.LevelInfo, "overdue sweep completed") >= 2
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	assert.Equal(t, lending.StatusOverdue, LoadLoan(t, ctx, store, record.ID).Status)
	assert.True(t, logHandler.HasInfoLogWithMessage("overdue scanner stopped").Assert())
}
