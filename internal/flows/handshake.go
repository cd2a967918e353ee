package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goSession/internal/initdata"
	"github.com/MrEthical07/goSession/principal"
)

// HandshakeFailureKind classifies handshake failures.
type HandshakeFailureKind int

const (
	HandshakeFailureNone HandshakeFailureKind = iota
	HandshakeFailureInvalid
	HandshakeFailureRevoked
	HandshakeFailureUnavailable
)

type HandshakeResult struct {
	Failure  HandshakeFailureKind
	Err      error
	Record   principal.Record
	Created  bool
	Identity principal.ExternalIdentity
}

// HandshakeDeps captures embedded-client handshake dependencies.
type HandshakeDeps struct {
	VerifyPayload func(raw string) (initdata.Payload, error)
	FindOrCreate  func(ctx context.Context, identity principal.ExternalIdentity, rec principal.NewRecord) (principal.Record, bool, error)
	NewID         func() string
	NewStamp      func() (string, error)
	Provider      string
	DefaultRole   principal.Role
}

// RunHandshake verifies the signed payload and resolves the bound principal,
// provisioning it on first contact. The tenant hint only applies to new rows.
func RunHandshake(ctx context.Context, raw, tenantHint string, deps HandshakeDeps) HandshakeResult {
	payload, err := deps.VerifyPayload(raw)
	if err != nil {
		return HandshakeResult{Failure: HandshakeFailureInvalid, Err: err}
	}
	if payload.User.ID == 0 {
		return HandshakeResult{Failure: HandshakeFailureInvalid, Err: initdata.ErrMalformed}
	}

	identity := principal.ExternalIdentity{
		Provider:  deps.Provider,
		Subject:   strconv.FormatInt(payload.User.ID, 10),
		Username:  payload.User.Username,
		FirstName: payload.User.FirstName,
		LastName:  payload.User.LastName,
		Language:  payload.User.LanguageCode,
	}

	stamp, err := deps.NewStamp()
	if err != nil {
		return HandshakeResult{Failure: HandshakeFailureUnavailable, Err: err, Identity: identity}
	}

	rec, created, err := deps.FindOrCreate(ctx, identity, principal.NewRecord{
		ID:            deps.NewID(),
		Role:          deps.DefaultRole,
		TenantID:      principal.TenantPtr(tenantHint),
		SecurityStamp: stamp,
		Identity:      identity,
	})
	if err != nil {
		if errors.Is(err, principal.ErrDeleted) {
			return HandshakeResult{Failure: HandshakeFailureRevoked, Err: err, Identity: identity}
		}
		return HandshakeResult{Failure: HandshakeFailureUnavailable, Err: err, Identity: identity}
	}
	if rec.Deleted() {
		return HandshakeResult{Failure: HandshakeFailureRevoked, Err: principal.ErrDeleted, Record: rec, Identity: identity}
	}

	return HandshakeResult{Record: rec, Created: created, Identity: identity}
}
