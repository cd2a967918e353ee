// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunVerify, RunFastPath, RunHandshake, RunMagicRedeem, etc.)
// accepts a typed dependency struct and returns a result with a classified
// failure kind. The Engine maps those kinds onto its exported errors, metrics and
// audit events, which keeps the Engine type thin and the flows testable with
// plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token manager, stamp store, principal
// store and magic token store. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
