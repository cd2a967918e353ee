package flows

import (
	"context"

	"github.com/MrEthical07/goSession/principal"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.Decode != nil && s.deps.Verify.LookupStamp != nil
}

func (s Service) Verify(ctx context.Context, tokenStr string) VerifyResult {
	return RunVerify(ctx, tokenStr, s.deps.Verify)
}

func (s Service) FastPath(ctx context.Context, h HeaderValues) FastPathResult {
	return RunFastPath(ctx, h, s.deps.FastPath)
}

func (s Service) Handshake(ctx context.Context, raw, tenantHint string) HandshakeResult {
	return RunHandshake(ctx, raw, tenantHint, s.deps.Handshake)
}

func (s Service) IssueMagic(ctx context.Context, principalID string) MagicIssueResult {
	return RunMagicIssue(ctx, principalID, s.deps.MagicIssue)
}

func (s Service) RedeemMagic(ctx context.Context, token string) MagicRedeemResult {
	return RunMagicRedeem(ctx, token, s.deps.MagicRedeem)
}

func (s Service) ChangeRole(ctx context.Context, id string, role principal.Role) (principal.Record, error) {
	return RunChangeRole(ctx, id, role, s.deps.RoleChange)
}
