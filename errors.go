package goSession

import "errors"

var (
	// ErrTokenMalformed covers bad signatures, pinned-algorithm violations and invalid claim shapes.
	ErrTokenMalformed = errors.New("session token malformed")
	// ErrTokenExpired is returned once exp plus the clock tolerance has passed.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenNotYetValid is returned for tokens issued beyond the clock tolerance in the future.
	ErrTokenNotYetValid = errors.New("session token not yet valid")
	// ErrSessionRevoked is returned on stamp mismatch, missing principal or soft-deleted principal.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrPrincipalNotFound is returned by administrative operations on unknown principals.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrMagicTokenInvalid is the single outcome for unknown, used and expired magic tokens.
	ErrMagicTokenInvalid = errors.New("magic token invalid or expired")
	// ErrBackendUnavailable wraps storage, cache and timeout failures.
	ErrBackendUnavailable = errors.New("session backend unavailable")
	// ErrSigningKeyUnavailable means the process cannot sign tokens.
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
	// ErrHandshakeInvalid is returned for init data that fails signature or freshness checks.
	ErrHandshakeInvalid = errors.New("handshake payload invalid")
	// ErrUntrustedHop is returned when identity headers arrive from an unverified connection.
	ErrUntrustedHop = errors.New("identity headers from untrusted hop")
	// ErrNoCredential is returned when a request carries no session credential at all.
	ErrNoCredential = errors.New("no session credential")
	// ErrRateLimited is returned when a per-client attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRoleInvalid is returned for empty or malformed role names.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrEngineNotReady is returned when a required dependency was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind is the coarse failure taxonomy surfaced to clients. Each kind
// drives a different client reaction.
type ErrorKind int

const (
	// KindNone means no error.
	KindNone ErrorKind = iota
	// KindMalformed is fatal to the request and never retried.
	KindMalformed
	// KindExpired triggers silent re-resolution.
	KindExpired
	// KindRevoked forces a full logout and credential wipe.
	KindRevoked
	// KindNotFound is shown to users as a generic "invalid or expired".
	KindNotFound
	// KindTransient is eligible for bounded retry.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindRevoked:
		return "revoked"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// KindOf resolves err into its ErrorKind. Unclassified errors are Transient.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrHandshakeInvalid),
		errors.Is(err, ErrUntrustedHop),
		errors.Is(err, ErrRoleInvalid):
		return KindMalformed
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenNotYetValid),
		errors.Is(err, ErrNoCredential):
		return KindExpired
	case errors.Is(err, ErrSessionRevoked):
		return KindRevoked
	case errors.Is(err, ErrMagicTokenInvalid),
		errors.Is(err, ErrPrincipalNotFound):
		return KindNotFound
	default:
		// ErrBackendUnavailable, ErrRateLimited, context errors and anything unclassified.
		return KindTransient
	}
}
