package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/SouthernStars/book-manage-system/lending/oteladapters"
)

func newRecordingTracer() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func spanAttribute(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_RecordsStartAndEndAttributes(t *testing.T) {
	collector, exporter := newRecordingTracer()

	_, spanCtx := collector.StartSpan(context.Background(), "lending.engine.borrow", map[string]string{"operation": "borrow"})
	spanCtx.AddAttribute("title_id", "t-1")
	collector.FinishSpan(spanCtx, "success", map[string]string{"attempts": "1"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "lending.engine.borrow", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	for key, want := range map[string]string{"operation": "borrow", "title_id": "t-1", "attempts": "1", oteladapters.AttributeOutcome: "success"} {
		got, ok := spanAttribute(span, key)
		assert.True(t, ok, "missing attribute %s", key)
		assert.Equal(t, want, got)
	}
}

func Test_TracingCollector_MapsStatuses(t *testing.T) {
	testCases := []struct {
		status          string
		attrs           map[string]string
		wantCode        codes.Code
		wantDescription string
	}{
		{status: "success", wantCode: codes.Ok},
		{status: "rejected", attrs: map[string]string{"error_type": "conflict"}, wantCode: codes.Unset},
		{status: "error", attrs: map[string]string{"error": "connection refused"}, wantCode: codes.Error, wantDescription: "connection refused"},
		{status: "error", wantCode: codes.Error, wantDescription: "lending operation failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			collector, exporter := newRecordingTracer()

			_, spanCtx := collector.StartSpan(context.Background(), "lending.engine.return", nil)
			collector.FinishSpan(spanCtx, tc.status, tc.attrs)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.wantCode, spans[0].Status.Code)
			assert.Equal(t, tc.wantDescription, spans[0].Status.Description)

			outcome, _ := spanAttribute(spans[0], oteladapters.AttributeOutcome)
			assert.Equal(t, tc.status, outcome)
		})
	}
}

func Test_TracingCollector_NestsSpansThroughTheContext(t *testing.T) {
	collector, exporter := newRecordingTracer()

	ctx, parent := collector.StartSpan(context.Background(), "lending.engine.borrow", nil)
	_, child := collector.StartSpan(ctx, "lending.store.transaction", map[string]string{"dialect": "sqlite3"})
	collector.FinishSpan(child, "success", nil)
	collector.FinishSpan(parent, "success", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "lending.store.transaction", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
}

func Test_TracingCollector_IgnoresForeignSpanContexts(t *testing.T) {
	collector, exporter := newRecordingTracer()

	assert.NotPanics(t, func() {
		collector.FinishSpan(nil, "success", map[string]string{"k": "v"})
		collector.FinishSpan(foreignSpan{}, "error", nil)
	})
	assert.Empty(t, exporter.GetSpans())
}

func Test_SpanContext_SetStatus(t *testing.T) {
	collector, exporter := newRecordingTracer()

	_, spanCtx := collector.StartSpan(context.Background(), "lending.scanner.sweep", nil)
	spanCtx.SetStatus("error")
	collector.FinishSpan(spanCtx, "error", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.String(oteladapters.AttributeOutcome, "error"))
}

type foreignSpan struct{}

func (foreignSpan) SetStatus(string)            {}
func (foreignSpan) AddAttribute(string, string) {}
