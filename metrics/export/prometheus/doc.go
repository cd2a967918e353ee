// Package prometheus exposes engine metrics through client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads
// goSession.Engine.MetricsSnapshot on each scrape. Counter names are
// gosession_*_total; the single histogram is gosession_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global default registry. Callers register the
//     Collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
