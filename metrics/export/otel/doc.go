// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per series name, with the
// label of each engine counter carried as an attribute, and one Int64ObservableGauge
// per histogram bucket. A single callback reads the engine snapshot on each
// collection cycle.
//
// The exporter never owns the MeterProvider and never mutates engine state.
package otel
