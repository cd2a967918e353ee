// Package jwt encodes and verifies signed session tokens and issues them with a
// role-tiered expiry.
//
// The verifier is pinned to one HMAC algorithm. Time validation is done here
// rather than by the parser so the clock-skew window is inclusive at both ends.
package jwt
