package goSession

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goSession/principal"
)

func TestResolveHeadersPlaceholdersAreAbsent(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, id := range []string{"", "  ", "undefined", "null", "nil", "None", "[object Object]"} {
		_, err := env.engine.ResolveHeaders(context.Background(), TrustedHeaders{
			ID:    id,
			Role:  "standard",
			Stamp: "whatever",
		})
		if !errors.Is(err, ErrNoCredential) {
			t.Fatalf("id %q: expected ErrNoCredential, got %v", id, err)
		}
	}
}

func TestResolveHeadersChecksStamp(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleAdmin, "")
	ctx := context.Background()

	p, err := env.engine.ResolveHeaders(ctx, TrustedHeaders{
		ID:     " p1 ",
		Role:   "admin",
		Stamp:  "stamp-p1",
		Tenant: "null",
	})
	if err != nil {
		t.Fatalf("ResolveHeaders failed: %v", err)
	}
	if p.ID != "p1" || p.Role != principal.RoleAdmin {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.TenantID != nil {
		t.Fatalf("expected placeholder tenant to be nil, got %q", *p.TenantID)
	}

	_, err = env.engine.ResolveHeaders(ctx, TrustedHeaders{ID: "p1", Role: "admin", Stamp: "stale"})
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked for stale stamp, got %v", err)
	}

	_, err = env.engine.ResolveHeaders(ctx, TrustedHeaders{ID: "p1", Role: "admin"})
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed without stamp, got %v", err)
	}

	_, err = env.engine.ResolveHeaders(ctx, TrustedHeaders{ID: "p1", Role: "ad min", Stamp: "stamp-p1"})
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for invalid role, got %v", err)
	}
}

func TestResolveHeadersAfterRotationIsRevoked(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed("p1", principal.RoleStandard, "acme")
	ctx := context.Background()

	h := TrustedHeaders{ID: "p1", Role: "standard", Stamp: "stamp-p1", Tenant: "acme"}
	if _, err := env.engine.ResolveHeaders(ctx, h); err != nil {
		t.Fatalf("ResolveHeaders failed: %v", err)
	}

	next, err := env.engine.Rotate(ctx, "p1")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if _, err := env.engine.ResolveHeaders(ctx, h); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	h.Stamp = next
	p, err := env.engine.ResolveHeaders(ctx, h)
	if err != nil {
		t.Fatalf("ResolveHeaders with new stamp failed: %v", err)
	}
	if p.Tenant() != "acme" {
		t.Fatalf("expected tenant acme, got %q", p.Tenant())
	}
}

func TestHeaderValue(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"  abc  ":           "abc",
		"UNDEFINED":         "",
		"null":              "",
		"nullable":          "nullable",
		"tenant-1":          "tenant-1",
		" [object object] ": "",
	}
	for in, want := range cases {
		if got := HeaderValue(in); got != want {
			t.Fatalf("HeaderValue(%q) = %q, want %q", in, got, want)
		}
	}
}
