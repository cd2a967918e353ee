package goSession

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/principal"
)

// ResolveHeaders resolves identity asserted by a trusted upstream hop. Callers
// must establish that the hop is trusted before calling; see the middleware
// package. Signature verification is skipped, the stamp check is not.
// ErrNoCredential means no identity was asserted.
func (e *Engine) ResolveHeaders(ctx context.Context, h TrustedHeaders) (principal.Principal, error) {
	if !e.ready() {
		return principal.Principal{}, ErrEngineNotReady
	}

	res := e.flow.FastPath(ctx, flows.HeaderValues{
		ID:     h.ID,
		Role:   h.Role,
		Stamp:  h.Stamp,
		Tenant: h.Tenant,
	})

	switch res.Failure {
	case flows.FastPathFailureNone:
		e.metricInc(MetricFastPathAccepted)
		return res.Principal, nil
	case flows.FastPathFailureAbsent:
		return principal.Principal{}, ErrNoCredential
	case flows.FastPathFailureMalformed:
		e.metricInc(MetricFastPathRejected)
		e.logRejection(ctx, "fast_path", ErrTokenMalformed, res.Err, "")
		return principal.Principal{}, ErrTokenMalformed
	case flows.FastPathFailureRevoked:
		id := flows.HeaderValue(h.ID)
		e.metricInc(MetricFastPathRejected)
		e.logRejection(ctx, "fast_path", ErrSessionRevoked, res.Err, id)
		e.emitAudit(ctx, auditEventFastPathRejected, false, id, "", "", ErrSessionRevoked, nil)
		return principal.Principal{}, ErrSessionRevoked
	default:
		e.metricInc(MetricTransientFailure)
		e.logRejection(ctx, "fast_path", ErrBackendUnavailable, res.Err, "")
		return principal.Principal{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
}

// HeaderValue trims v and reports "" for empty values and for placeholders
// such as "undefined" or "null" that upstream code emits for a missing id.
func HeaderValue(v string) string {
	return flows.HeaderValue(v)
}
