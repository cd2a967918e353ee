// Package internal holds the magic-token generator shared by the engine and its
// flows, plus the private sub-packages of the session module.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: environment loading for cmd/sessiond
//   - flows: flow orchestrators with explicit dependency structs
//   - initdata: embedded-client handshake payload signing and verification
//   - logging: JSON slog construction
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis-backed handshake and redeem budgets
//   - stores: Redis magic-token records
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
