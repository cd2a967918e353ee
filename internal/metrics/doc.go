// Package metrics holds the engine's in-process session counters and the
// verify latency histogram.
//
// Each [MetricID] owns a cache-line-padded uint64 slot updated with atomic
// adds, so concurrent Verify calls never contend on a lock. The latency
// histogram has eight fixed buckets from 5ms to +Inf; the bounds match what
// metrics/export publishes.
//
// [Metrics.Snapshot] copies everything at once. Exporters read snapshots and
// never touch the live slots.
//
// A disabled [Metrics] still accepts calls and records nothing.
package metrics
