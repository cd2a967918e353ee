package goSession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/principal"
)

func TestMagicTokenIssueAndRedeemOnce(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleStandard, "acme")
	ctx := context.Background()

	mt, err := env.engine.IssueMagic(ctx, "p1")
	if err != nil {
		t.Fatalf("IssueMagic failed: %v", err)
	}
	if mt.Token == "" || mt.PrincipalID != "p1" {
		t.Fatalf("unexpected magic token: %+v", mt)
	}
	if got := mt.ExpiresAt.Sub(env.clock.Now()); got != 10*time.Minute {
		t.Fatalf("expected 10m ttl, got %v", got)
	}

	sess, err := env.engine.RedeemMagic(ctx, mt.Token)
	if err != nil {
		t.Fatalf("RedeemMagic failed: %v", err)
	}
	if sess.Principal.ID != "p1" || sess.Principal.Tenant() != "acme" {
		t.Fatalf("unexpected session principal: %+v", sess.Principal)
	}
	if _, err := env.engine.Verify(ctx, sess.Token); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	_, err = env.engine.RedeemMagic(ctx, mt.Token)
	if !errors.Is(err, ErrMagicTokenInvalid) {
		t.Fatalf("expected ErrMagicTokenInvalid on reuse, got %v", err)
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found kind, got %v", KindOf(err))
	}
}

func TestMagicTokenConcurrentRedeemSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleStandard, "")

	mt, err := env.engine.IssueMagic(context.Background(), "p1")
	if err != nil {
		t.Fatalf("IssueMagic failed: %v", err)
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		invalid   atomic.Int64
		start     = make(chan struct{})
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.RedeemMagic(context.Background(), mt.Token)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrMagicTokenInvalid):
				invalid.Add(1)
			default:
				t.Errorf("unexpected redeem error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", successes.Load())
	}
	if invalid.Load() != workers-1 {
		t.Fatalf("expected %d invalid redemptions, got %d", workers-1, invalid.Load())
	}
}

func TestMagicTokenExpiredAndUnknownLookAlike(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleStandard, "")
	ctx := context.Background()

	mt, err := env.engine.IssueMagic(ctx, "p1")
	if err != nil {
		t.Fatalf("IssueMagic failed: %v", err)
	}
	env.clock.Advance(10*time.Minute + time.Second)

	_, expiredErr := env.engine.RedeemMagic(ctx, mt.Token)
	_, unknownErr := env.engine.RedeemMagic(ctx, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	_, garbageErr := env.engine.RedeemMagic(ctx, "%%%")

	for name, err := range map[string]error{"expired": expiredErr, "unknown": unknownErr, "garbage": garbageErr} {
		if !errors.Is(err, ErrMagicTokenInvalid) {
			t.Fatalf("%s: expected ErrMagicTokenInvalid, got %v", name, err)
		}
		if err.Error() != ErrMagicTokenInvalid.Error() {
			t.Fatalf("%s: error text must not reveal the reason, got %q", name, err.Error())
		}
	}
}

func TestMagicTokenIssueRequiresLivePrincipal(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleStandard, "")
	ctx := context.Background()

	if _, err := env.engine.IssueMagic(ctx, "missing"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	if err := env.engine.SoftDelete(ctx, "p1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := env.engine.IssueMagic(ctx, "p1"); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestMagicTokenRedeemAfterDeleteIsRevoked(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleStandard, "")
	ctx := context.Background()

	mt, err := env.engine.IssueMagic(ctx, "p1")
	if err != nil {
		t.Fatalf("IssueMagic failed: %v", err)
	}
	if err := env.engine.SoftDelete(ctx, "p1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := env.engine.RedeemMagic(ctx, mt.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestMagicTokenRedeemFailuresRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.MaxRedeemFailures = 2
	}, nil)
	env.seed("p1", principal.RoleStandard, "")
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.RedeemMagic(ctx, "bogus"); !errors.Is(err, ErrMagicTokenInvalid) {
			t.Fatalf("attempt %d: expected ErrMagicTokenInvalid, got %v", i, err)
		}
	}

	mt, err := env.engine.IssueMagic(ctx, "p1")
	if err != nil {
		t.Fatalf("IssueMagic failed: %v", err)
	}
	if _, err := env.engine.RedeemMagic(ctx, mt.Token); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// The token was not consumed by the rejected attempt.
	other := WithClientIP(context.Background(), "198.51.100.8")
	if _, err := env.engine.RedeemMagic(other, mt.Token); err != nil {
		t.Fatalf("expected redemption from another IP to succeed, got %v", err)
	}
}
