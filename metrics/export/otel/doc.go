// Package otel publishes goOTP engine counters through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket. A single callback reads
// [goOTP.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
