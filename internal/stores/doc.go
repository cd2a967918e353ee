// Package stores provides Redis-backed, short-lived record stores for the
// single-use magic-token exchange.
//
// # Design
//
// Each record is a versioned binary blob keyed by the SHA-256 of the token and
// expires with the token. Consume uses WATCH/MULTI with bounded retry so the
// read and the used-flag flip form one atomic step: of any number of concurrent
// redeemers, at most one succeeds.
//
// # What this package must NOT do
//
//   - Import goSession or any sibling internal package.
//   - Store plaintext tokens.
//   - Distinguish unknown, expired and used tokens in its errors.
package stores
