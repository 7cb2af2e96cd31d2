// Package otel mirrors engine metrics into OpenTelemetry asynchronous
// instruments: one Int64ObservableCounter per counter and one gauge per
// latency bucket. A single callback reads the engine snapshot on every
// collection.
//
// Callers own the MeterProvider and pass a Meter in.
package otel
