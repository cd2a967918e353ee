// Package middleware resolves the caller's principal for HTTP handlers.
//
// # Resolvers
//
//   - [TokenResolver] reads the session cookie, then the Authorization bearer
//     header, and verifies the signed token through the engine.
//   - [HeaderResolver] trusts upstream identity headers only when the hop passes
//     its [TrustPolicy], then runs the stamp check without signature
//     verification.
//   - [Chain] tries resolvers in order; the first one that finds a credential
//     decides the outcome.
//
// [Guard] runs a [Resolver], maps failures to coarse HTTP responses and stores
// the resolved principal in the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing,
// stamp comparison and revocation decisions stay in the engine.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly.
//   - Access Redis or the principal store.
//   - Reveal the detailed failure reason in a response body.
package middleware
