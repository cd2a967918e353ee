// Package goSession issues, verifies and revokes identity sessions for a
// first-party client population.
//
// Sessions are stateless signed tokens with role-tiered expiry. Each token embeds
// the principal's security stamp; rotating the stamp revokes every outstanding
// token at once, with no per-token blocklist. Principals enter through an
// embedded-client handshake or a single-use magic token, and trusted upstream
// hops can assert identity through headers that still pass the stamp check.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config], the
// error taxonomy ([KindOf]) and value types (IssuedSession, MagicToken,
// MetricsSnapshot). Flow orchestration, magic token storage, rate limiting and
// audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Revocation delay
//
// Verify reads the current stamp through a short-lived cache (Stamp.CacheTTL).
// The process that rotates a stamp drops its own entry immediately; other
// processes keep accepting the old stamp until their entry lapses. This bounded
// delay is accepted in exchange for keeping verification off the database on
// hot paths. Set Stamp.CacheTTL to zero for immediate revocation everywhere.
package goSession
