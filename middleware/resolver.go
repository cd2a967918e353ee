package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/principal"
)

// Resolver turns a request into a principal. Implementations return
// goSession.ErrNoCredential when the request carries nothing they understand.
type Resolver interface {
	Resolve(r *http.Request) (principal.Principal, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (principal.Principal, error)

func (f ResolverFunc) Resolve(r *http.Request) (principal.Principal, error) {
	return f(r)
}

// TokenVerifier is the engine surface used by TokenResolver.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (principal.Principal, error)
}

// HeaderVerifier is the engine surface used by HeaderResolver.
type HeaderVerifier interface {
	ResolveHeaders(ctx context.Context, h goSession.TrustedHeaders) (principal.Principal, error)
}

// TokenResolver verifies the session cookie and falls back to the bearer
// header when the cookie is missing or rejected.
type TokenResolver struct {
	Verifier   TokenVerifier
	CookieName string
}

func (t TokenResolver) Resolve(r *http.Request) (principal.Principal, error) {
	if t.Verifier == nil {
		return principal.Principal{}, goSession.ErrEngineNotReady
	}

	var cookieErr error
	if c, err := r.Cookie(t.CookieName); err == nil && c.Value != "" {
		p, err := t.Verifier.Verify(r.Context(), c.Value)
		if err == nil {
			return p, nil
		}
		cookieErr = err
	}

	if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
		return t.Verifier.Verify(r.Context(), token)
	}
	if cookieErr != nil {
		return principal.Principal{}, cookieErr
	}
	return principal.Principal{}, goSession.ErrNoCredential
}

// HeaderNames lists the trusted identity headers.
type HeaderNames struct {
	ID     string
	Role   string
	Stamp  string
	Tenant string
}

func (h HeaderNames) list() []string {
	out := make([]string, 0, 4)
	for _, name := range []string{h.ID, h.Role, h.Stamp, h.Tenant} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// HeaderResolver resolves identity injected by a trusted upstream hop.
type HeaderResolver struct {
	Verifier HeaderVerifier
	Policy   TrustPolicy
	Headers  HeaderNames
}

func (h HeaderResolver) Resolve(r *http.Request) (principal.Principal, error) {
	if h.Verifier == nil {
		return principal.Principal{}, goSession.ErrEngineNotReady
	}

	values := goSession.TrustedHeaders{
		ID:     r.Header.Get(h.Headers.ID),
		Role:   r.Header.Get(h.Headers.Role),
		Stamp:  r.Header.Get(h.Headers.Stamp),
		Tenant: r.Header.Get(h.Headers.Tenant),
	}
	if goSession.HeaderValue(values.ID) == "" {
		return principal.Principal{}, goSession.ErrNoCredential
	}
	if !h.Policy.Trusted(r) {
		return principal.Principal{}, goSession.ErrUntrustedHop
	}
	return h.Verifier.ResolveHeaders(r.Context(), values)
}

// Chain returns a Resolver that tries each resolver in order and stops at the
// first one that found a credential, successful or not.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(r *http.Request) (principal.Principal, error) {
		for _, res := range resolvers {
			if res == nil {
				continue
			}
			p, err := res.Resolve(r)
			if errors.Is(err, goSession.ErrNoCredential) {
				continue
			}
			return p, err
		}
		return principal.Principal{}, goSession.ErrNoCredential
	})
}

// FromEngine builds the standard resolver chain for e: the header fast path
// when it is enabled, then cookie and bearer tokens.
func FromEngine(e *goSession.Engine) (Resolver, error) {
	cfg := e.Config()
	tokens := TokenResolver{Verifier: e, CookieName: cfg.Cookie.Name}
	if !cfg.FastPath.Enabled {
		return tokens, nil
	}

	policy, err := NewTrustPolicy(cfg.FastPath.TrustedProxies, cfg.FastPath.SharedSecretHeader, cfg.FastPath.SharedSecret)
	if err != nil {
		return nil, err
	}
	headers := HeaderResolver{
		Verifier: e,
		Policy:   policy,
		Headers: HeaderNames{
			ID:     cfg.FastPath.IDHeader,
			Role:   cfg.FastPath.RoleHeader,
			Stamp:  cfg.FastPath.StampHeader,
			Tenant: cfg.FastPath.TenantHeader,
		},
	}
	return Chain(headers, tokens), nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
