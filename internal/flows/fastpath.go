package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/principal"
)

var errHeaderIncomplete = errors.New("trusted headers incomplete")

// HeaderValues carries the identity asserted by a trusted upstream hop.
type HeaderValues struct {
	ID     string
	Role   string
	Stamp  string
	Tenant string
}

// FastPathFailureKind classifies header resolution outcomes.
type FastPathFailureKind int

const (
	FastPathFailureNone FastPathFailureKind = iota
	// FastPathFailureAbsent means no identity was asserted; callers fall back to token verification.
	FastPathFailureAbsent
	FastPathFailureMalformed
	FastPathFailureRevoked
	FastPathFailureUnavailable
)

type FastPathResult struct {
	Failure   FastPathFailureKind
	Err       error
	Principal principal.Principal
}

type FastPathDeps struct {
	LookupStamp StampLookup
}

// placeholders are values upstream code emits when it stringifies a missing id.
var placeholders = map[string]struct{}{
	"undefined":       {},
	"null":            {},
	"nil":             {},
	"none":            {},
	"[object object]": {},
}

// HeaderValue trims v and reports "" for empty or placeholder values.
func HeaderValue(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := placeholders[strings.ToLower(v)]; ok {
		return ""
	}
	return v
}

// RunFastPath resolves a principal from trusted headers. Signature checks are
// skipped; the revocation check is not.
func RunFastPath(ctx context.Context, h HeaderValues, deps FastPathDeps) FastPathResult {
	id := HeaderValue(h.ID)
	if id == "" {
		return FastPathResult{Failure: FastPathFailureAbsent}
	}

	stamp := HeaderValue(h.Stamp)
	role := principal.Role(HeaderValue(h.Role))
	if stamp == "" || !role.Valid() {
		return FastPathResult{Failure: FastPathFailureMalformed, Err: errHeaderIncomplete}
	}

	switch failure, err := checkStamp(ctx, id, stamp, deps.LookupStamp); failure {
	case VerifyFailureNone:
	case VerifyFailureUnavailable:
		return FastPathResult{Failure: FastPathFailureUnavailable, Err: err}
	default:
		return FastPathResult{Failure: FastPathFailureRevoked, Err: err}
	}

	return FastPathResult{
		Principal: principal.Principal{
			ID:       id,
			Role:     role,
			TenantID: principal.TenantPtr(HeaderValue(h.Tenant)),
			Stamp:    stamp,
		},
	}
}
