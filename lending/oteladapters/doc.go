// Package oteladapters implements the lending observability interfaces on top of OpenTelemetry.
//
// Wire them into any lending component through its options:
//
//	meter := otel.Meter("lendingctl")
//	tracer := otel.Tracer("lendingctl")
//
//	eng, err := engine.New(store,
//		engine.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		engine.WithTracing(oteladapters.NewTracingCollector(tracer)),
//		engine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("lendingctl")),
//	)
package oteladapters
