// Package otel exposes goSession engine metrics as OpenTelemetry instruments.
//
// [NewExporter] registers one Int64ObservableCounter per session counter and a
// cumulative Int64ObservableGauge per store-latency bucket. A single callback
// reads [goSession.Engine.MetricsSnapshot] on every collection.
//
// The caller owns the MeterProvider. The exporter never mutates engine state.
package otel
