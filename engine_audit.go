package goSession

import (
	"context"
	"errors"
)

const (
	auditEventHandshakeSuccess   = "handshake_success"
	auditEventHandshakeFailure   = "handshake_failure"
	auditEventPrincipalCreated   = "principal_created"
	auditEventSessionIssued      = "session_issued"
	auditEventVerifyRevoked      = "verify_revoked"
	auditEventStampRotated       = "stamp_rotated"
	auditEventRoleChanged        = "role_changed"
	auditEventPrincipalDeleted   = "principal_deleted"
	auditEventMagicIssued        = "magic_token_issued"
	auditEventMagicRedeemed      = "magic_token_redeemed"
	auditEventMagicRejected      = "magic_token_rejected"
	auditEventFastPathRejected   = "fast_path_rejected"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// revocationEvent reports events that record a change to a principal's
// sessions. They are kept even when the audit buffer drops on overflow.
func revocationEvent(ev AuditEvent) bool {
	switch ev.EventType {
	case auditEventStampRotated, auditEventRoleChanged, auditEventPrincipalDeleted:
		return true
	}
	return false
}

// AuditErrorCode is the coarse error label carried by audit events.
type AuditErrorCode string

const (
	auditErrMalformed        AuditErrorCode = "malformed"
	auditErrExpired          AuditErrorCode = "expired"
	auditErrRevoked          AuditErrorCode = "revoked"
	auditErrInvalidMagic     AuditErrorCode = "invalid_or_expired"
	auditErrNotFound         AuditErrorCode = "principal_not_found"
	auditErrHandshakeInvalid AuditErrorCode = "handshake_invalid"
	auditErrUntrustedHop     AuditErrorCode = "untrusted_hop"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrRoleInvalid      AuditErrorCode = "role_invalid"
	auditErrSigningKey       AuditErrorCode = "signing_key_unavailable"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	tenantID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		TenantID:    tenantID,
		TokenID:     tokenID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenMalformed):
		return auditErrMalformed
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenNotYetValid):
		return auditErrExpired
	case errors.Is(err, ErrSessionRevoked):
		return auditErrRevoked
	case errors.Is(err, ErrMagicTokenInvalid):
		return auditErrInvalidMagic
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrHandshakeInvalid):
		return auditErrHandshakeInvalid
	case errors.Is(err, ErrUntrustedHop):
		return auditErrUntrustedHop
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrSigningKeyUnavailable):
		return auditErrSigningKey
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
