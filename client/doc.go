// Package client implements the embedded-client side of the session protocol:
// credential discovery across the session cookie, a stored bearer token and a
// full handshake.
//
// # Architecture boundaries
//
// [Resolver] talks to the HTTP surface served by httpapi. It never verifies
// tokens itself; the server is the only judge of a credential. [Bridge] and
// [TokenVault] are constructed explicitly and passed in, so tests substitute
// fakes without touching globals.
//
// Resolution order is fixed: cookie, then the vault bearer token, then the
// handshake, then [Unauthenticated]. Only one resolution runs at a time per
// Resolver; concurrent callers wait for the in-flight result.
//
// # What this package must NOT do
//
//   - Import the root goSession engine internals beyond its error taxonomy.
//   - Treat a transient failure as Unauthenticated or wipe stored credentials on it.
//   - Loop: a failed handshake ends resolution.
package client
