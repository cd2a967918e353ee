// Package stamp implements the revocation store: one opaque rotating security
// stamp per principal, read on every verification and rotated to revoke every
// outstanding token at once.
//
// # Propagation delay
//
// Lookups are cached in-process for Config.CacheTTL. Rotate drops the entry of
// the process that performed it; other processes observe the new stamp once their
// own entry lapses. Revocation is therefore bounded by CacheTTL, not instant.
//
// # What this package must NOT do
//
//   - Track individual tokens or keep a blocklist.
//   - Cache not-found results.
package stamp
