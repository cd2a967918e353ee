package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/principal"
)

type principalContextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal resolved by Guard.
func PrincipalFromContext(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(principal.Principal)
	return p, ok
}

// Guard resolves the caller with res and rejects the request on failure. The
// response body carries only the coarse error code.
func Guard(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if res == nil {
				WriteError(w, goSession.ErrEngineNotReady)
				return
			}

			p, err := res.Resolve(r)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects principals whose role is not in roles. It must run after
// Guard.
func RequireRole(roles ...principal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, goSession.ErrNoCredential)
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTrustedHop rejects requests that do not pass policy. Internal routes
// use it in place of a user session.
func RequireTrustedHop(policy TrustPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !policy.Trusted(r) {
				slog.WarnContext(r.Context(), "internal route from untrusted hop", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StripInternalHeaders removes trusted identity headers from requests that do
// not pass policy, so a direct client cannot assert an identity downstream.
func StripInternalHeaders(policy TrustPolicy, names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !policy.Trusted(r) {
				for _, name := range names {
					r.Header.Del(name)
				}
				if h := policy.SecretHeader(); h != "" {
					r.Header.Del(h)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP records the peer address on the request context for rate limiting
// and audit. Run chi's RealIP first when behind a proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(goSession.WithClientIP(r.Context(), host)))
	})
}

// Status maps an engine error to an HTTP status and a coarse error code.
func Status(err error) (int, string) {
	if errors.Is(err, goSession.ErrRateLimited) {
		return http.StatusTooManyRequests, "rate_limited"
	}
	if errors.Is(err, goSession.ErrUntrustedHop) {
		return http.StatusForbidden, "forbidden"
	}
	if errors.Is(err, goSession.ErrEngineNotReady) {
		return http.StatusServiceUnavailable, "unavailable"
	}

	switch goSession.KindOf(err) {
	case goSession.KindMalformed:
		return http.StatusUnauthorized, "invalid"
	case goSession.KindExpired:
		return http.StatusUnauthorized, "expired"
	case goSession.KindRevoked:
		return http.StatusUnauthorized, "revoked"
	case goSession.KindNotFound:
		return http.StatusUnauthorized, "invalid_or_expired"
	case goSession.KindNone:
		return http.StatusOK, ""
	default:
		return http.StatusServiceUnavailable, "unavailable"
	}
}

// WriteError writes the coarse JSON error body for err.
func WriteError(w http.ResponseWriter, err error) {
	status, code := Status(err)
	writeJSONError(w, status, code)
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
