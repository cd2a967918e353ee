// Package principal defines the identity model shared by the token codec, the
// revocation store, persistence adapters and the engine.
//
// # Architecture boundaries
//
// This package owns plain data types and the [Store] contract. It performs no I/O
// and holds no configuration.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, stamp or any storage driver.
//   - Carry token or cookie encoding details.
package principal
