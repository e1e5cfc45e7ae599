package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SouthernStars/book-manage-system/lending"
)

// AttributeOutcome is set on every finished span. It carries the lending status
// ("success", "rejected", "error") even where the OTel status code cannot express it.
const AttributeOutcome = "lending.outcome"

// TracingCollector implements lending.TracingCollector with an OpenTelemetry tracer.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector using tracer, usually taken from the global TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span as a child of any span already in ctx.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, lending.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attributesOf(attrs)...))

	return spanCtx, &SpanContext{span: span}
}

// FinishSpan sets the final attributes and status and ends the span.
// Span contexts not created by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx lending.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*SpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(attributesOf(attrs)...)
	otelSpanCtx.setStatus(status, attrs["error"])
	otelSpanCtx.span.End()
}

var _ lending.TracingCollector = (*TracingCollector)(nil)

// SpanContext wraps an OpenTelemetry span as a lending.SpanContext.
type SpanContext struct {
	span trace.Span
}

func (s *SpanContext) SetStatus(status string) {
	s.setStatus(status, "")
}

func (s *SpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// setStatus maps lending statuses to OTel codes. A rejected request (unknown borrower, no copy left, ...)
// is an expected outcome, so its span stays Unset rather than Error.
func (s *SpanContext) setStatus(status, description string) {
	s.span.SetAttributes(attribute.String(AttributeOutcome, status))

	switch status {
	case "success", "ok":
		s.span.SetStatus(codes.Ok, "")
	case "error":
		if description == "" {
			description = "lending operation failed"
		}
		s.span.SetStatus(codes.Error, description)
	}
}

var _ lending.SpanContext = (*SpanContext)(nil)
