package goSession

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config defines the session engine. Instances are treated as immutable after
// Build.
type Config struct {
	JWT       JWTConfig
	Expiry    ExpiryConfig
	Stamp     StampConfig
	Magic     MagicConfig
	Handshake HandshakeConfig
	FastPath  FastPathConfig
	Cookie    CookieConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig pins the symmetric signing algorithm and key material.
type JWTConfig struct {
	SigningMethod string // "hs256" (default), "hs384", "hs512"
	Secret        []byte
	Issuer        string
	Audience      string
	// Leeway is the clock-skew tolerance applied to exp and iat, inclusive.
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
EXPIRY CONFIG
====================================
*/

// ExpiryConfig defines the role-tiered token lifetimes.
type ExpiryConfig struct {
	ElevatedTTL   time.Duration
	StandardTTL   time.Duration
	ElevatedRoles []string
}

/*
====================================
STAMP CONFIG
====================================
*/

// StampConfig tunes the revocation stamp cache. CacheTTL bounds how long a
// rotation performed by another process can go unnoticed here.
type StampConfig struct {
	CacheTTL      time.Duration
	CacheSize     int64
	LookupTimeout time.Duration
}

/*
====================================
MAGIC TOKEN CONFIG
====================================
*/

type MagicConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

/*
====================================
HANDSHAKE CONFIG
====================================
*/

// HandshakeConfig defines embedded-client init data verification.
type HandshakeConfig struct {
	BotToken    string
	MaxAge      time.Duration
	Provider    string
	DefaultRole string
}

/*
====================================
FAST PATH CONFIG
====================================
*/

// FastPathConfig defines the trusted upstream identity headers. Headers are
// honored only from TrustedProxies and only when SharedSecret matches.
type FastPathConfig struct {
	Enabled            bool
	IDHeader           string
	RoleHeader         string
	StampHeader        string
	TenantHeader       string
	SharedSecretHeader string
	SharedSecret       string
	TrustedProxies     []string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the session cookie. Domain is the apex host; Embedded
// switches to SameSite=None with the Partitioned attribute.
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	Embedded bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the Redis-backed per-IP budgets. Zero disables a budget.
type RateLimitConfig struct {
	MaxHandshakes       int
	HandshakeWindow     time.Duration
	MaxRedeemFailures   int
	RedeemFailureWindow time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			Leeway:        60 * time.Second,
		},
		Expiry: ExpiryConfig{
			ElevatedTTL:   24 * time.Hour,
			StandardTTL:   7 * 24 * time.Hour,
			ElevatedRoles: []string{"admin", "owner"},
		},
		Stamp: StampConfig{
			CacheTTL:      2 * time.Minute,
			CacheSize:     100_000,
			LookupTimeout: 2 * time.Second,
		},
		Magic: MagicConfig{
			TTL:         10 * time.Minute,
			RedisPrefix: "amt",
		},
		Handshake: HandshakeConfig{
			MaxAge:      24 * time.Hour,
			Provider:    "telegram",
			DefaultRole: "standard",
		},
		FastPath: FastPathConfig{
			Enabled:            false,
			IDHeader:           "X-Principal-Id",
			RoleHeader:         "X-Principal-Role",
			StampHeader:        "X-Principal-Stamp",
			TenantHeader:       "X-Principal-Tenant",
			SharedSecretHeader: "X-Internal-Auth",
		},
		Cookie: CookieConfig{
			Name:   "session",
			Path:   "/",
			Secure: true,
		},
		RateLimit: RateLimitConfig{
			MaxHandshakes:       30,
			HandshakeWindow:     time.Minute,
			MaxRedeemFailures:   10,
			RedeemFailureWindow: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the production defaults. JWT.Secret and
// Handshake.BotToken must still be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Expiry.ElevatedRoles = append([]string(nil), cfg.Expiry.ElevatedRoles...)
	out.FastPath.TrustedProxies = append([]string(nil), cfg.FastPath.TrustedProxies...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	switch c.JWT.SigningMethod {
	case "hs256", "hs384", "hs512":
	default:
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Expiry
	if c.Expiry.ElevatedTTL <= 0 || c.Expiry.StandardTTL <= 0 {
		return errors.New("Expiry TTLs must be > 0")
	}
	for _, role := range c.Expiry.ElevatedRoles {
		if strings.TrimSpace(role) == "" {
			return errors.New("Expiry ElevatedRoles contains an empty role")
		}
	}

	// Stamp
	if c.Stamp.CacheTTL < 0 {
		return errors.New("Stamp CacheTTL must be >= 0")
	}
	if c.Stamp.LookupTimeout <= 0 {
		return errors.New("Stamp LookupTimeout must be > 0")
	}

	// Magic
	if c.Magic.TTL <= 0 || c.Magic.TTL > time.Hour {
		return errors.New("Magic TTL must be in (0, 1h]")
	}

	// Handshake
	if c.Handshake.MaxAge <= 0 {
		return errors.New("Handshake MaxAge must be > 0")
	}
	if strings.TrimSpace(c.Handshake.DefaultRole) == "" {
		return errors.New("Handshake DefaultRole must be set")
	}

	// Fast path
	if c.FastPath.Enabled {
		if c.FastPath.IDHeader == "" || c.FastPath.RoleHeader == "" || c.FastPath.StampHeader == "" {
			return errors.New("FastPath requires id, role and stamp header names")
		}
		if len(c.FastPath.TrustedProxies) == 0 && c.FastPath.SharedSecret == "" {
			return errors.New("FastPath requires TrustedProxies or SharedSecret")
		}
		if c.FastPath.SharedSecret != "" && c.FastPath.SharedSecretHeader == "" {
			return errors.New("FastPath SharedSecret requires SharedSecretHeader")
		}
		for _, cidr := range c.FastPath.TrustedProxies {
			if _, err := netip.ParsePrefix(cidr); err != nil {
				return fmt.Errorf("FastPath TrustedProxies: %v", err)
			}
		}
	}

	// Cookie
	if c.Cookie.Name == "" {
		return errors.New("Cookie Name must be set")
	}
	if strings.HasPrefix(c.Cookie.Domain, ".") || strings.Contains(c.Cookie.Domain, "*") {
		return errors.New("Cookie Domain must be the apex host without a leading dot or wildcard")
	}
	if c.Cookie.Embedded && !c.Cookie.Secure {
		return errors.New("Cookie Embedded requires Secure")
	}

	// Rate limits
	if c.RateLimit.MaxHandshakes < 0 || c.RateLimit.MaxRedeemFailures < 0 {
		return errors.New("RateLimit budgets must be >= 0")
	}
	if c.RateLimit.MaxHandshakes > 0 && c.RateLimit.HandshakeWindow <= 0 {
		return errors.New("RateLimit HandshakeWindow must be > 0")
	}
	if c.RateLimit.MaxRedeemFailures > 0 && c.RateLimit.RedeemFailureWindow <= 0 {
		return errors.New("RateLimit RedeemFailureWindow must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

// LintWarning is a non-fatal configuration concern.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of warnings produced by Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but weaken the protocol.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > 60*time.Second {
		add("leeway_large", "clock tolerance above 60s widens the replay window of expired tokens")
	}
	if c.Expiry.ElevatedTTL > 24*time.Hour {
		add("elevated_ttl_long", "elevated tokens live longer than 24h")
	}
	if c.Expiry.StandardTTL > 7*24*time.Hour {
		add("standard_ttl_long", "standard tokens live longer than 7d")
	}
	if c.Expiry.ElevatedTTL > c.Expiry.StandardTTL {
		add("elevated_outlives_standard", "elevated tokens outlive standard tokens")
	}
	if c.Stamp.CacheTTL > 5*time.Minute {
		add("stamp_cache_long", "revocation may take more than 5m to propagate")
	}
	if c.FastPath.Enabled && c.FastPath.SharedSecret == "" {
		add("fastpath_no_secret", "fast path trusts network position alone")
	}
	if !c.Cookie.Secure {
		add("cookie_insecure", "session cookie is sent over plain HTTP")
	}
	if c.RateLimit.MaxHandshakes == 0 && c.RateLimit.MaxRedeemFailures == 0 {
		add("rate_limits_disabled", "handshake and magic redeem attempts are unbounded")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "security events are not recorded")
	}
	return ws
}
