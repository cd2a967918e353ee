package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/stamp"
)

// Engine issues, verifies and revokes sessions.
//
// Engine instances are configured once through Builder and are safe for
// concurrent use.
type Engine struct {
	config      Config
	logger      *slog.Logger
	now         func() time.Time
	store       principal.Store
	stamps      *stamp.Store
	jwtManager  *jwt.Manager
	magicStore  *stores.MagicTokenStore
	rateLimiter *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	flow        flows.Service

	closeOnce sync.Once
}

// Close flushes pending audit events and releases the stamp cache. It is safe
// to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.audit != nil {
			e.audit.Close()
		}
		e.stamps.Close()
	})
}

// AuditDropped returns how many audit events were discarded on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// TTL returns the expiry tier a token issued for role would get.
func (e *Engine) TTL(role principal.Role) time.Duration {
	return e.jwtManager.TTL(role)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized() && e.store != nil
}

// Issue signs a new session for principalID. The principal is read fresh from
// the store so the token always embeds the current stamp.
func (e *Engine) Issue(ctx context.Context, principalID string) (*IssuedSession, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	rec, err := e.getPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if rec.Deleted() {
		return nil, ErrSessionRevoked
	}
	return e.issue(ctx, rec)
}

func (e *Engine) issue(ctx context.Context, rec principal.Record) (*IssuedSession, error) {
	view := rec.View()
	tok, err := e.jwtManager.Issue(view)
	if err != nil {
		if errors.Is(err, jwt.ErrSigningKey) {
			e.logger.ErrorContext(ctx, "session signing failed", "principal_id", rec.ID, "error", err)
			return nil, ErrSigningKeyUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, rec.ID, view.Tenant(), tok.ID, nil, func() map[string]string {
		return map[string]string{
			"role": string(rec.Role),
			"ttl":  tok.TTL().String(),
		}
	})

	return &IssuedSession{
		Principal: view,
		Token:     tok.Value,
		TokenID:   tok.ID,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// Verify validates token and cross-checks its embedded stamp. On success the
// returned principal is built from the token claims, not from a profile read.
func (e *Engine) Verify(ctx context.Context, token string) (principal.Principal, error) {
	if !e.ready() {
		return principal.Principal{}, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flow.Verify(ctx, token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	var subject string
	if res.Claims != nil {
		subject = res.Claims.Subject
	}

	switch res.Failure {
	case flows.VerifyFailureNone:
		e.metricInc(MetricVerifySuccess)
		return res.Principal, nil
	case flows.VerifyFailureMalformed:
		e.metricInc(MetricVerifyMalformed)
		e.logRejection(ctx, "verify", ErrTokenMalformed, res.Err, subject)
		return principal.Principal{}, ErrTokenMalformed
	case flows.VerifyFailureExpired:
		e.metricInc(MetricVerifyExpired)
		e.logRejection(ctx, "verify", ErrTokenExpired, res.Err, subject)
		return principal.Principal{}, ErrTokenExpired
	case flows.VerifyFailureNotYetValid:
		e.metricInc(MetricVerifyExpired)
		e.logRejection(ctx, "verify", ErrTokenNotYetValid, res.Err, subject)
		return principal.Principal{}, ErrTokenNotYetValid
	case flows.VerifyFailureRevoked:
		e.metricInc(MetricVerifyRevoked)
		e.logRejection(ctx, "verify", ErrSessionRevoked, res.Err, subject)
		e.emitAudit(ctx, auditEventVerifyRevoked, false, subject, "", tokenID(res.Claims), ErrSessionRevoked, nil)
		return principal.Principal{}, ErrSessionRevoked
	default:
		e.metricInc(MetricTransientFailure)
		e.logRejection(ctx, "verify", ErrBackendUnavailable, res.Err, subject)
		return principal.Principal{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
}

// Profile reads the full principal record. It is separate from Verify so
// verification latency does not depend on profile size.
func (e *Engine) Profile(ctx context.Context, principalID string) (principal.Record, error) {
	if !e.ready() {
		return principal.Record{}, ErrEngineNotReady
	}
	rec, err := e.getPrincipal(ctx, principalID)
	if err != nil {
		return principal.Record{}, err
	}
	if rec.Deleted() {
		return principal.Record{}, ErrSessionRevoked
	}
	return rec, nil
}

func (e *Engine) getPrincipal(ctx context.Context, id string) (principal.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.Stamp.LookupTimeout)
	defer cancel()

	rec, err := e.store.Get(callCtx, id)
	if err != nil {
		return principal.Record{}, e.storeError(err)
	}
	return rec, nil
}

func (e *Engine) storeError(err error) error {
	switch {
	case errors.Is(err, principal.ErrNotFound):
		return ErrPrincipalNotFound
	case errors.Is(err, principal.ErrDeleted):
		return ErrSessionRevoked
	default:
		e.metricInc(MetricTransientFailure)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

func (e *Engine) logRejection(ctx context.Context, op string, kind, reason error, principalID string) {
	level := slog.LevelInfo
	switch {
	case errors.Is(kind, ErrTokenExpired):
		// Expiry is the normal end of a session.
		level = slog.LevelDebug
	case KindOf(kind) == KindTransient:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("kind", KindOf(kind).String()),
	}
	if reason != nil {
		attrs = append(attrs, slog.String("reason", reason.Error()))
	}
	if principalID != "" {
		attrs = append(attrs, slog.String("principal_id", principalID))
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		attrs = append(attrs, slog.String("ip", ip))
	}
	e.logger.LogAttrs(ctx, level, "session rejected", attrs...)
}

func tokenID(claims *jwt.SessionClaims) string {
	if claims == nil {
		return ""
	}
	return claims.ID
}
