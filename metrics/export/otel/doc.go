// Package otel publishes engine metrics through OpenTelemetry.
//
// Related counters share one Int64ObservableCounter keyed by an attribute
// (gosession_verify_total{outcome}, gosession_stamp_lookup_total{cache}, ...);
// the rest get one instrument each. The verify latency histogram is exposed as
// cumulative bucket gauges keyed by "le". A single callback reads
// goSession.Engine.MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
