package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
)

// Handshake verifies signed embedded-client init data, finds or provisions the
// bound principal and issues a session. tenantHint is applied only when the
// principal is created.
func (e *Engine) Handshake(ctx context.Context, initData, tenantHint string) (*IssuedSession, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.config.Handshake.BotToken == "" {
		return nil, ErrEngineNotReady
	}

	if err := e.rateLimiter.CheckHandshake(ctx, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "handshake")
			return nil, ErrRateLimited
		}
		e.metricInc(MetricTransientFailure)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	res := e.flow.Handshake(ctx, initData, tenantHint)
	if res.Failure != flows.HandshakeFailureNone {
		var err error
		switch res.Failure {
		case flows.HandshakeFailureInvalid:
			err = ErrHandshakeInvalid
		case flows.HandshakeFailureRevoked:
			err = ErrSessionRevoked
		default:
			e.metricInc(MetricTransientFailure)
			err = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
		}

		e.metricInc(MetricHandshakeFailure)
		e.logRejection(ctx, "handshake", err, res.Err, res.Record.ID)
		e.emitAudit(ctx, auditEventHandshakeFailure, false, res.Record.ID, "", "", err, func() map[string]string {
			return map[string]string{
				"provider":    res.Identity.Provider,
				"external_id": res.Identity.Subject,
			}
		})
		return nil, err
	}

	rec := res.Record
	if res.Created {
		e.metricInc(MetricPrincipalProvisioned)
		e.logger.InfoContext(ctx, "principal provisioned", "principal_id", rec.ID, "provider", rec.Provider)
		e.emitAudit(ctx, auditEventPrincipalCreated, true, rec.ID, rec.View().Tenant(), "", nil, nil)
	}

	sess, err := e.issue(ctx, rec)
	if err != nil {
		e.metricInc(MetricHandshakeFailure)
		return nil, err
	}
	sess.Created = res.Created

	e.metricInc(MetricHandshakeSuccess)
	e.emitAudit(ctx, auditEventHandshakeSuccess, true, rec.ID, sess.Principal.Tenant(), sess.TokenID, nil, nil)
	return sess, nil
}
