package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/principal"
)

// MagicFailureKind classifies magic token issue and redeem failures.
type MagicFailureKind int

const (
	MagicFailureNone MagicFailureKind = iota
	// MagicFailureInvalid covers unknown, used and expired tokens alike.
	MagicFailureInvalid
	MagicFailurePrincipalNotFound
	MagicFailureRevoked
	MagicFailureUnavailable
)

// MagicIssueDeps captures magic token issuance dependencies.
type MagicIssueDeps struct {
	GetPrincipal func(ctx context.Context, id string) (principal.Record, error)
	NewToken     func() (string, [32]byte, error)
	Save         func(ctx context.Context, tokenHash [32]byte, record *stores.MagicTokenRecord, ttl time.Duration) error
	TTL          time.Duration
	Now          func() time.Time
}

type MagicIssueResult struct {
	Failure   MagicFailureKind
	Err       error
	Token     string
	ExpiresAt time.Time
}

// RunMagicIssue mints a single-use token bound to a live principal.
func RunMagicIssue(ctx context.Context, principalID string, deps MagicIssueDeps) MagicIssueResult {
	rec, err := deps.GetPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return MagicIssueResult{Failure: MagicFailurePrincipalNotFound, Err: err}
		}
		return MagicIssueResult{Failure: MagicFailureUnavailable, Err: err}
	}
	if rec.Deleted() {
		return MagicIssueResult{Failure: MagicFailureRevoked, Err: principal.ErrDeleted}
	}

	token, hash, err := deps.NewToken()
	if err != nil {
		return MagicIssueResult{Failure: MagicFailureUnavailable, Err: err}
	}

	now := deps.Now()
	expiresAt := now.Add(deps.TTL)
	record := &stores.MagicTokenRecord{
		PrincipalID: rec.ID,
		IssuedAt:    now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}
	if err := deps.Save(ctx, hash, record, deps.TTL); err != nil {
		return MagicIssueResult{Failure: MagicFailureUnavailable, Err: err}
	}

	return MagicIssueResult{Token: token, ExpiresAt: expiresAt.Truncate(time.Second)}
}

// MagicRedeemDeps captures magic token redemption dependencies.
type MagicRedeemDeps struct {
	HashToken    func(string) ([32]byte, error)
	Consume      func(ctx context.Context, tokenHash [32]byte, now time.Time) (*stores.MagicTokenRecord, error)
	GetPrincipal func(ctx context.Context, id string) (principal.Record, error)
	Now          func() time.Time
}

type MagicRedeemResult struct {
	Failure MagicFailureKind
	Err     error
	Record  principal.Record
}

// RunMagicRedeem atomically consumes token and returns the principal it was
// bound to, read fresh from the source of truth.
func RunMagicRedeem(ctx context.Context, token string, deps MagicRedeemDeps) MagicRedeemResult {
	hash, err := deps.HashToken(token)
	if err != nil {
		return MagicRedeemResult{Failure: MagicFailureInvalid, Err: err}
	}

	record, err := deps.Consume(ctx, hash, deps.Now())
	if err != nil {
		if errors.Is(err, stores.ErrMagicTokenNotFound) {
			return MagicRedeemResult{Failure: MagicFailureInvalid, Err: err}
		}
		return MagicRedeemResult{Failure: MagicFailureUnavailable, Err: err}
	}

	rec, err := deps.GetPrincipal(ctx, record.PrincipalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return MagicRedeemResult{Failure: MagicFailureInvalid, Err: err}
		}
		return MagicRedeemResult{Failure: MagicFailureUnavailable, Err: err}
	}
	if rec.Deleted() {
		return MagicRedeemResult{Failure: MagicFailureRevoked, Err: principal.ErrDeleted}
	}

	return MagicRedeemResult{Record: rec}
}
