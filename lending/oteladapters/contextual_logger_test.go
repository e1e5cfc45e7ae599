package oteladapters_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/SouthernStars/book-manage-system/lending/oteladapters"
)

func Test_SlogBridgeLogger_WritesAllLevelsToTheHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	logger.DebugContext(ctx, "lending operation started", "operation", "list_overdue")
	logger.InfoContext(ctx, "lending operation completed", "operation", "borrow")
	logger.WarnContext(ctx, "retrying lending operation after concurrency conflict", "attempts", 2)
	logger.ErrorContext(ctx, "lending invariant violated", "error_code", "INVENTORY_OVERFLOW")

	output := buf.String()
	assert.Contains(t, output, `"level":"DEBUG"`)
	assert.Contains(t, output, `"level":"INFO"`)
	assert.Contains(t, output, `"level":"WARN"`)
	assert.Contains(t, output, `"level":"ERROR"`)
	assert.Contains(t, output, `"attempts":2`)
	assert.Contains(t, output, `"error_code":"INVENTORY_OVERFLOW"`)
}

func Test_SlogBridgeLogger_UsesTheGlobalProviderWithinASpan(t *testing.T) {
	provider := trace.NewTracerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.Tracer("test").Start(context.Background(), "lending.engine.borrow")
	defer span.End()

	logger := oteladapters.NewSlogBridgeLogger("test")

	assert.NotPanics(t, func() {
		logger.InfoContext(ctx, "lending operation completed", "operation", "borrow")
	})
}

func Test_OTelLogger_EmitsTypedAttributes(t *testing.T) {
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)

	logger.WarnContext(context.Background(), "retrying lending operation after concurrency conflict",
		"operation", "borrow",
		"attempts", 3,
		"duration_ms", 1.5,
		"retries_exhausted", false,
		"error", errors.New("serialization failure"),
		"delay", 20*time.Millisecond,
		"dangling",
	)

	require.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, log.SeverityWarn, record.severity)
	assert.Equal(t, "retrying lending operation after concurrency conflict", record.body.AsString())

	attrs := record.attrs

	assert.Len(t, attrs, 6)
	assert.Equal(t, "borrow", attrs["operation"].AsString())
	assert.Equal(t, int64(3), attrs["attempts"].AsInt64())
	assert.InDelta(t, 1.5, attrs["duration_ms"].AsFloat64(), 0.0001)
	assert.False(t, attrs["retries_exhausted"].AsBool())
	assert.Equal(t, "serialization failure", attrs["error"].AsString())
	assert.Equal(t, "20ms", attrs["delay"].AsString())
}

func Test_OTelLogger_MapsSeverities(t *testing.T) {
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)
	ctx := context.Background()

	logger.DebugContext(ctx, "d")
	logger.InfoContext(ctx, "i")
	logger.ErrorContext(ctx, "e")

	require.Len(t, recorder.records, 3)
	assert.Equal(t, log.SeverityDebug, recorder.records[0].severity)
	assert.Equal(t, log.SeverityInfo, recorder.records[1].severity)
	assert.Equal(t, log.SeverityError, recorder.records[2].severity)
}

func Test_OTelLogger_WithNoopLogger(t *testing.T) {
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))

	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "lending operation completed", "operation", "return")
	})
}

// emittedRecord keeps what a test asserts, since a log.Record must not be retained after Emit returns.
type emittedRecord struct {
	severity log.Severity
	body     log.Value
	attrs    map[string]log.Value
}

type recordingLogger struct {
	embedded.Logger
	records []emittedRecord
}

func (l *recordingLogger) Emit(_ context.Context, record log.Record) {
	emitted := emittedRecord{
		severity: record.Severity(),
		body:     record.Body(),
		attrs:    make(map[string]log.Value, record.AttributesLen()),
	}

	record.WalkAttributes(func(kv log.KeyValue) bool {
		emitted.attrs[kv.Key] = kv.Value
		return true
	})

	l.records = append(l.records, emitted)
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}
