// Package otel exports warden engine metrics as OpenTelemetry instruments.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter. Each
// latency histogram becomes two gauges: <name>_bucket, with one cumulative
// data point per "le" attribute, and <name>_count. The callback reads
// Engine.MetricsSnapshot once per collection.
//
// Callers own the MeterProvider and pass in a Meter.
package otel
