// Package rate provides Redis-backed fixed-window counters for the public entry
// points of the session protocol.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - rl:hs:  handshake attempts per IP
//   - rl:mr:  failed magic-token redemptions per IP
//
// # What this package must NOT do
//
//   - Decide whether a handshake or redemption is valid.
//   - Be imported outside the goSession module.
package rate
