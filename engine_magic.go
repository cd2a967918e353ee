package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
)

// IssueMagic mints a single-use exchange token for a live principal. It is
// meant to be called by a trusted upstream after out-of-band confirmation.
func (e *Engine) IssueMagic(ctx context.Context, principalID string) (*MagicToken, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flow.IssueMagic(ctx, principalID)
	switch res.Failure {
	case flows.MagicFailureNone:
	case flows.MagicFailurePrincipalNotFound:
		return nil, ErrPrincipalNotFound
	case flows.MagicFailureRevoked:
		return nil, ErrSessionRevoked
	default:
		e.metricInc(MetricTransientFailure)
		e.logRejection(ctx, "magic_issue", ErrBackendUnavailable, res.Err, principalID)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}

	e.metricInc(MetricMagicIssued)
	e.emitAudit(ctx, auditEventMagicIssued, true, principalID, "", "", nil, nil)

	return &MagicToken{
		Token:       res.Token,
		PrincipalID: principalID,
		ExpiresAt:   res.ExpiresAt,
	}, nil
}

// RedeemMagic consumes token at most once and issues a full session for the
// principal it was bound to. Unknown, used and expired tokens all return
// ErrMagicTokenInvalid.
func (e *Engine) RedeemMagic(ctx context.Context, token string) (*IssuedSession, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	if err := e.rateLimiter.CheckRedeem(ctx, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "magic_redeem")
			return nil, ErrRateLimited
		}
		e.metricInc(MetricTransientFailure)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	res := e.flow.RedeemMagic(ctx, token)
	switch res.Failure {
	case flows.MagicFailureNone:
	case flows.MagicFailureInvalid:
		e.metricInc(MetricMagicRejected)
		e.logRejection(ctx, "magic_redeem", ErrMagicTokenInvalid, res.Err, "")
		e.emitAudit(ctx, auditEventMagicRejected, false, "", "", "", ErrMagicTokenInvalid, nil)
		if err := e.rateLimiter.RecordRedeemFailure(ctx, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "redeem failure not recorded", "error", err)
		}
		return nil, ErrMagicTokenInvalid
	case flows.MagicFailureRevoked:
		e.metricInc(MetricMagicRejected)
		e.logRejection(ctx, "magic_redeem", ErrSessionRevoked, res.Err, res.Record.ID)
		return nil, ErrSessionRevoked
	default:
		e.metricInc(MetricTransientFailure)
		e.logRejection(ctx, "magic_redeem", ErrBackendUnavailable, res.Err, "")
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}

	sess, err := e.issue(ctx, res.Record)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMagicRedeemed)
	e.emitAudit(ctx, auditEventMagicRedeemed, true, res.Record.ID, sess.Principal.Tenant(), sess.TokenID, nil, nil)
	return sess, nil
}
