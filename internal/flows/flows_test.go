package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/initdata"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/principal"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func stampTable(rows map[string]principal.StampRecord) StampLookup {
	return func(ctx context.Context, id string) (principal.StampRecord, error) {
		rec, ok := rows[id]
		if !ok {
			return principal.StampRecord{}, principal.ErrNotFound
		}
		return rec, nil
	}
}

func claimsFor(id, stamp string) *jwt.SessionClaims {
	now := time.Now()
	return &jwt.SessionClaims{
		Role:  "standard",
		Stamp: stamp,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestRunVerifyClassifiesFailures(t *testing.T) {
	lookup := stampTable(map[string]principal.StampRecord{
		"p1": {Stamp: "s1"},
		"p2": {Stamp: "s2", Deleted: true},
	})

	tests := []struct {
		name   string
		decode func(string) (*jwt.SessionClaims, error)
		want   VerifyFailureKind
	}{
		{"ok", func(string) (*jwt.SessionClaims, error) { return claimsFor("p1", "s1"), nil }, VerifyFailureNone},
		{"malformed", func(string) (*jwt.SessionClaims, error) { return nil, jwt.ErrMalformed }, VerifyFailureMalformed},
		{"expired", func(string) (*jwt.SessionClaims, error) { return nil, jwt.ErrExpired }, VerifyFailureExpired},
		{"future", func(string) (*jwt.SessionClaims, error) { return nil, jwt.ErrNotYetValid }, VerifyFailureNotYetValid},
		{"stamp mismatch", func(string) (*jwt.SessionClaims, error) { return claimsFor("p1", "old"), nil }, VerifyFailureRevoked},
		{"deleted", func(string) (*jwt.SessionClaims, error) { return claimsFor("p2", "s2"), nil }, VerifyFailureRevoked},
		{"missing", func(string) (*jwt.SessionClaims, error) { return claimsFor("p9", "s9"), nil }, VerifyFailureRevoked},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := RunVerify(context.Background(), "token", VerifyDeps{Decode: tc.decode, LookupStamp: lookup})
			if res.Failure != tc.want {
				t.Fatalf("expected failure %d, got %d (%v)", tc.want, res.Failure, res.Err)
			}
			if tc.want == VerifyFailureNone && res.Principal.ID != "p1" {
				t.Fatalf("unexpected principal %+v", res.Principal)
			}
		})
	}
}

func TestRunVerifyBackendErrorIsUnavailable(t *testing.T) {
	res := RunVerify(context.Background(), "token", VerifyDeps{
		Decode: func(string) (*jwt.SessionClaims, error) { return claimsFor("p1", "s1"), nil },
		LookupStamp: func(context.Context, string) (principal.StampRecord, error) {
			return principal.StampRecord{}, errors.New("connection refused")
		},
	})
	if res.Failure != VerifyFailureUnavailable {
		t.Fatalf("expected unavailable, got %d", res.Failure)
	}
}

func TestRunFastPathPlaceholdersAreAbsent(t *testing.T) {
	calls := 0
	deps := FastPathDeps{LookupStamp: func(ctx context.Context, id string) (principal.StampRecord, error) {
		calls++
		return principal.StampRecord{Stamp: "s1"}, nil
	}}

	for _, id := range []string{"", "  ", "undefined", "NULL", "nil", "None", "[object Object]"} {
		res := RunFastPath(context.Background(), HeaderValues{ID: id, Role: "standard", Stamp: "s1"}, deps)
		if res.Failure != FastPathFailureAbsent {
			t.Fatalf("id %q: expected absent, got %d", id, res.Failure)
		}
	}
	if calls != 0 {
		t.Fatalf("expected no stamp lookups, got %d", calls)
	}
}

func TestRunFastPathChecksStamp(t *testing.T) {
	deps := FastPathDeps{LookupStamp: stampTable(map[string]principal.StampRecord{
		"p1": {Stamp: "s1"},
	})}

	res := RunFastPath(context.Background(), HeaderValues{ID: "p1", Role: "admin", Stamp: "s1", Tenant: "t1"}, deps)
	if res.Failure != FastPathFailureNone {
		t.Fatalf("expected success, got %d (%v)", res.Failure, res.Err)
	}
	if res.Principal.Role != principal.RoleAdmin || res.Principal.Tenant() != "t1" {
		t.Fatalf("unexpected principal %+v", res.Principal)
	}

	res = RunFastPath(context.Background(), HeaderValues{ID: "p1", Role: "admin", Stamp: "stale"}, deps)
	if res.Failure != FastPathFailureRevoked {
		t.Fatalf("expected revoked, got %d", res.Failure)
	}

	res = RunFastPath(context.Background(), HeaderValues{ID: "p1", Role: "admin", Stamp: "null"}, deps)
	if res.Failure != FastPathFailureMalformed {
		t.Fatalf("expected malformed for placeholder stamp, got %d", res.Failure)
	}
}

func TestRunHandshakeRejectsDeletedPrincipal(t *testing.T) {
	deletedAt := time.Now()
	deps := HandshakeDeps{
		VerifyPayload: func(string) (initdata.Payload, error) {
			return initdata.Payload{User: initdata.User{ID: 42, FirstName: "Ada"}}, nil
		},
		FindOrCreate: func(ctx context.Context, identity principal.ExternalIdentity, rec principal.NewRecord) (principal.Record, bool, error) {
			if identity.Subject != "42" {
				t.Fatalf("unexpected subject %q", identity.Subject)
			}
			return principal.Record{ID: "p1", DeletedAt: &deletedAt}, false, nil
		},
		NewID:       func() string { return "new" },
		NewStamp:    func() (string, error) { return "stamp", nil },
		DefaultRole: principal.RoleStandard,
	}

	res := RunHandshake(context.Background(), "raw", "", deps)
	if res.Failure != HandshakeFailureRevoked {
		t.Fatalf("expected revoked, got %d", res.Failure)
	}
}

func TestRunHandshakeAppliesTenantHintToNewRecord(t *testing.T) {
	var seen principal.NewRecord
	deps := HandshakeDeps{
		VerifyPayload: func(string) (initdata.Payload, error) {
			return initdata.Payload{User: initdata.User{ID: 7}}, nil
		},
		FindOrCreate: func(ctx context.Context, identity principal.ExternalIdentity, rec principal.NewRecord) (principal.Record, bool, error) {
			seen = rec
			return principal.Record{ID: rec.ID, Role: rec.Role, TenantID: rec.TenantID, SecurityStamp: rec.SecurityStamp}, true, nil
		},
		NewID:       func() string { return "p7" },
		NewStamp:    func() (string, error) { return "stamp", nil },
		DefaultRole: principal.RoleStandard,
	}

	res := RunHandshake(context.Background(), "raw", " org-1 ", deps)
	if res.Failure != HandshakeFailureNone || !res.Created {
		t.Fatalf("expected created principal, got %+v", res)
	}
	if seen.TenantID == nil || *seen.TenantID != "org-1" {
		t.Fatalf("expected tenant hint on new record, got %v", seen.TenantID)
	}
}

func TestRunMagicRedeemHidesReason(t *testing.T) {
	deps := MagicRedeemDeps{
		HashToken: func(string) ([32]byte, error) { return [32]byte{}, nil },
		Consume: func(context.Context, [32]byte, time.Time) (*stores.MagicTokenRecord, error) {
			return nil, stores.ErrMagicTokenNotFound
		},
		Now: time.Now,
	}
	if res := RunMagicRedeem(context.Background(), "t", deps); res.Failure != MagicFailureInvalid {
		t.Fatalf("expected invalid, got %d", res.Failure)
	}

	deps.HashToken = func(string) ([32]byte, error) { return [32]byte{}, errors.New("bad encoding") }
	if res := RunMagicRedeem(context.Background(), "t", deps); res.Failure != MagicFailureInvalid {
		t.Fatalf("expected invalid for undecodable token, got %d", res.Failure)
	}
}

func TestRunChangeRoleInvalidatesOnFailure(t *testing.T) {
	invalidated := 0
	deps := RoleChangeDeps{
		NewStamp: func() (string, error) { return "fresh", nil },
		UpdateRole: func(ctx context.Context, id string, role principal.Role, stamp string) (principal.Record, error) {
			return principal.Record{}, principal.ErrDeleted
		},
		Invalidate: func(string) { invalidated++ },
	}

	if _, err := RunChangeRole(context.Background(), "p1", principal.RoleAdmin, deps); !errors.Is(err, principal.ErrDeleted) {
		t.Fatalf("expected ErrDeleted, got %v", err)
	}
	if invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", invalidated)
	}
}
