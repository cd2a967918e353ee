package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/stamp"
)

// Rotate replaces the security stamp of principalID, revoking every token
// issued before it. Other processes observe the rotation within
// Stamp.CacheTTL; this process observes it immediately.
func (e *Engine) Rotate(ctx context.Context, principalID string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}

	next, err := e.stamps.Rotate(ctx, principalID)
	if err != nil {
		return "", e.stampError(err)
	}

	e.metricInc(MetricStampRotated)
	e.emitAudit(ctx, auditEventStampRotated, true, principalID, "", "", nil, nil)
	return next, nil
}

// CurrentStamp returns the stamp a token for principalID must carry to verify.
func (e *Engine) CurrentStamp(ctx context.Context, principalID string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	current, err := e.stamps.CurrentStamp(ctx, principalID)
	if err != nil {
		return "", e.stampError(err)
	}
	return current, nil
}

// ChangeRole persists a new role and always rotates the stamp with it, so a
// downgrade takes effect on the next verification.
func (e *Engine) ChangeRole(ctx context.Context, principalID string, role principal.Role) (principal.Record, error) {
	if !e.ready() {
		return principal.Record{}, ErrEngineNotReady
	}
	if !role.Valid() {
		return principal.Record{}, ErrRoleInvalid
	}

	rec, err := e.flow.ChangeRole(ctx, principalID, role)
	if err != nil {
		return principal.Record{}, e.storeError(err)
	}

	e.metricInc(MetricRoleChanged)
	e.metricInc(MetricStampRotated)
	e.emitAudit(ctx, auditEventRoleChanged, true, principalID, rec.View().Tenant(), "", nil, func() map[string]string {
		return map[string]string{
			"role": string(role),
		}
	})
	return rec, nil
}

// SoftDelete marks principalID deleted. Every outstanding token stops
// verifying regardless of stamp.
func (e *Engine) SoftDelete(ctx context.Context, principalID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	err := e.store.SoftDelete(ctx, principalID)
	e.stamps.Invalidate(principalID)
	if err != nil {
		return e.storeError(err)
	}

	e.metricInc(MetricPrincipalDeleted)
	e.emitAudit(ctx, auditEventPrincipalDeleted, true, principalID, "", "", nil, nil)
	return nil
}

func (e *Engine) stampError(err error) error {
	switch {
	case errors.Is(err, principal.ErrNotFound):
		return ErrPrincipalNotFound
	case errors.Is(err, principal.ErrDeleted):
		return ErrSessionRevoked
	case errors.Is(err, stamp.ErrUnavailable):
		e.metricInc(MetricTransientFailure)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return e.storeError(err)
	}
}
