package sqlengine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine"
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper"              //nolint:revive
	. "github.com/SouthernStars/book-manage-system/testutil/sqlengine/helper/storewrapper" //nolint:revive
)

func reserve(ctx context.Context, store *sqlengine.Store, title lending.Title) error {
	return store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
		return tx.ReserveCopy(ctx, title.ID)
	})
}

func Test_Observability_WithLogger_LogsStatementsAndOperations(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logHandler := NewLogHandlerSpy(false)
	wrapper := CreateWrapperWithTestConfig(t, sqlengine.WithLogger(slog.New(logHandler)))
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 1)
	logHandler.Reset()

	// act
	err := reserve(ctxWithTimeout, store, title)

	// assert
	require.NoError(t, err)
	assert.True(t,
		logHandler.HasDebugLogWithMessage("executed sql for: reserve copy").
			WithDurationMS().
			WithAttrKey("query").
			Assert(), "should log the statement with its duration",
	)
	assert.True(t,
		logHandler.HasInfoLogWithMessage("lending store operation: copy reserved").
			WithAttr("title_id", title.ID.String()).
			Assert(), "should log the inventory change",
	)
	assert.True(t,
		logHandler.HasDebugLogWithMessage("lending store operation: transaction committed").
			WithDurationMS().
			Assert(), "should log the commit",
	)
}

func Test_Observability_WithLogger_LogsFailedStatements(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logHandler := NewLogHandlerSpy(false)
	wrapper := CreateWrapperWithTestConfig(t, sqlengine.WithContextualLogger(slog.New(logHandler)))
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 1)
	logHandler.Reset()

	// act
	_, err := store.AddTitle(ctxWithTimeout, title)

	// assert
	assert.ErrorIs(t, err, lending.ErrTitleAlreadyExists)
	assert.True(t,
		logHandler.HasErrorLogWithMessage("database statement execution failed").
			WithAttrKey("error").
			Assert(), "should log the failing statement at error level",
	)
}

func Test_Observability_WithMetrics_RecordsTransactionDurations(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := NewMetricsCollectorSpy(true)
	wrapper := CreateWrapperWithTestConfig(t, sqlengine.WithMetrics(metrics))
	defer wrapper.Close()
	store := wrapper.GetStore()
	dialect := string(store.Dialect())

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 1)
	metrics.Reset()

	// act
	okErr := reserve(ctxWithTimeout, store, title)
	failedErr := reserve(ctxWithTimeout, store, title)

	// assert
	require.NoError(t, okErr)
	assert.ErrorIs(t, failedErr, lending.ErrNoCopyAvailable)
	assert.True(t,
		metrics.HasDurationRecordForMetric("lending_store_transaction_duration_seconds").
			WithStatus("success").
			WithLabel("dialect", dialect).
			Assert(),
	)
	assert.True(t,
		metrics.HasDurationRecordForMetric("lending_store_transaction_duration_seconds").
			WithStatus("error").
			Assert(),
	)
	assert.Zero(t,
		metrics.HasCounterRecordForMetric("lending_store_database_errors_total").Count(),
		"domain rejections are not database errors",
	)
}

func Test_Observability_WithMetrics_RecordsCanceledTransactions(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := NewMetricsCollectorSpy(true)
	wrapper := CreateWrapperWithTestConfig(t, sqlengine.WithMetrics(metrics))
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	canceledCtx, cancelNow := context.WithCancel(ctxWithTimeout)
	cancelNow()

	// act
	err := store.WithinTransaction(canceledCtx, func(ctx context.Context, tx lending.TxScope) error {
		_, listErr := tx.ListAvailableTitles(ctx)
		return listErr
	})

	// assert
	assert.Error(t, err)
	assert.True(t,
		metrics.HasDurationRecordForMetric("lending_store_transaction_duration_seconds").
			WithStatus("error").
			Assert(),
	)
}

func Test_Observability_WithTracing_RecordsTransactionSpans(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tracing := NewTracingCollectorSpy(true)
	wrapper := CreateWrapperWithTestConfig(t, sqlengine.WithTracing(tracing))
	defer wrapper.Close()
	store := wrapper.GetStore()

	// arrange
	title := GivenTitle(t, ctxWithTimeout, store, 0)
	tracing.Reset()

	// act
	err := reserve(ctxWithTimeout, store, title)

	// assert
	assert.ErrorIs(t, err, lending.ErrNoCopyAvailable)
	assert.True(t,
		tracing.HasSpanRecordForName("lending.store.transaction").
			WithStatus("error").
			WithStartAttribute("dialect", string(store.Dialect())).
			WithEndAttribute("error_type", "conflict").
			Assert(),
	)
}
