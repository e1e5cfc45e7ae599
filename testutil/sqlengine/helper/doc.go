// Package helper provides fixtures and observability spies for lending store tests.
//
// The spies capture log records, metrics and spans emitted through the dependency-free
// lending.Logger, lending.MetricsCollector and lending.TracingCollector interfaces.
package helper
