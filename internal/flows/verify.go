package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/principal"
)

var errStampMismatch = errors.New("security stamp mismatch")

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureMalformed
	VerifyFailureExpired
	VerifyFailureNotYetValid
	VerifyFailureRevoked
	VerifyFailureUnavailable
)

// VerifyResult returns either the resolved principal or a classified failure.
type VerifyResult struct {
	Failure   VerifyFailureKind
	Err       error
	Claims    *jwt.SessionClaims
	Principal principal.Principal
}

// StampLookup reads the current stamp and soft-delete flag of a principal.
type StampLookup func(ctx context.Context, id string) (principal.StampRecord, error)

// VerifyDeps captures session verification dependencies.
type VerifyDeps struct {
	Decode      func(string) (*jwt.SessionClaims, error)
	LookupStamp StampLookup
}

// RunVerify checks signature and time window, then cross-checks the embedded
// stamp against the current one.
func RunVerify(ctx context.Context, tokenStr string, deps VerifyDeps) VerifyResult {
	claims, err := deps.Decode(tokenStr)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpired):
			return VerifyResult{Failure: VerifyFailureExpired, Err: err}
		case errors.Is(err, jwt.ErrNotYetValid):
			return VerifyResult{Failure: VerifyFailureNotYetValid, Err: err}
		default:
			return VerifyResult{Failure: VerifyFailureMalformed, Err: err}
		}
	}

	if failure, err := checkStamp(ctx, claims.Subject, claims.Stamp, deps.LookupStamp); failure != VerifyFailureNone {
		return VerifyResult{Failure: failure, Err: err, Claims: claims}
	}

	return VerifyResult{
		Claims:    claims,
		Principal: claims.Principal(),
	}
}

func checkStamp(ctx context.Context, id, asserted string, lookup StampLookup) (VerifyFailureKind, error) {
	rec, err := lookup(ctx, id)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return VerifyFailureRevoked, err
		}
		return VerifyFailureUnavailable, err
	}
	if rec.Deleted {
		return VerifyFailureRevoked, principal.ErrDeleted
	}
	if subtle.ConstantTimeCompare([]byte(rec.Stamp), []byte(asserted)) != 1 {
		return VerifyFailureRevoked, errStampMismatch
	}
	return VerifyFailureNone, nil
}
