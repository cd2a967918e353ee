// Package config loads the sessiond configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/viper"
)

// Config holds sessiond settings. Durations accept Go duration strings.
type Config struct {
	// HTTPAddr is the listen address (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL backs magic tokens and rate limits.
	RedisURL string `mapstructure:"REDIS_URL"`

	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	JWTIssuer   string        `mapstructure:"JWT_ISSUER"`
	JWTAudience string        `mapstructure:"JWT_AUDIENCE"`
	JWTLeeway   time.Duration `mapstructure:"JWT_LEEWAY"`

	ElevatedTTL   time.Duration `mapstructure:"ELEVATED_TTL"`
	StandardTTL   time.Duration `mapstructure:"STANDARD_TTL"`
	ElevatedRoles []string      `mapstructure:"ELEVATED_ROLES"`

	StampCacheTTL time.Duration `mapstructure:"STAMP_CACHE_TTL"`
	MagicTTL      time.Duration `mapstructure:"MAGIC_TTL"`
	MagicRedirect string        `mapstructure:"MAGIC_REDIRECT"`

	// BotToken verifies embedded-client handshakes. Empty disables the handshake.
	BotToken        string        `mapstructure:"BOT_TOKEN"`
	HandshakeMaxAge time.Duration `mapstructure:"HANDSHAKE_MAX_AGE"`

	CookieName     string `mapstructure:"COOKIE_NAME"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieEmbedded bool   `mapstructure:"COOKIE_EMBEDDED"`

	// FastPathEnabled honors identity headers from TrustedProxies carrying
	// InternalSecret. The same trust settings gate /internal routes.
	FastPathEnabled bool     `mapstructure:"FASTPATH_ENABLED"`
	TrustedProxies  []string `mapstructure:"TRUSTED_PROXIES"`
	InternalSecret  string   `mapstructure:"INTERNAL_SECRET"`
	BehindProxy     bool     `mapstructure:"BEHIND_PROXY"`

	AuditEnabled    bool          `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled  bool          `mapstructure:"METRICS_ENABLED"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env from the working directory when present.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads envFile (if present), then environment variables, which
// override the file. The result is validated against the engine rules.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // missing file is fine
	}

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "gosession")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_LEEWAY", "60s")
	v.SetDefault("ELEVATED_TTL", "24h")
	v.SetDefault("STANDARD_TTL", "168h")
	v.SetDefault("ELEVATED_ROLES", "admin,owner")
	v.SetDefault("STAMP_CACHE_TTL", "2m")
	v.SetDefault("MAGIC_TTL", "10m")
	v.SetDefault("MAGIC_REDIRECT", "/")
	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("HANDSHAKE_MAX_AGE", "24h")
	v.SetDefault("COOKIE_NAME", "session")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_EMBEDDED", false)
	v.SetDefault("FASTPATH_ENABLED", false)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("INTERNAL_SECRET", "")
	v.SetDefault("BEHIND_PROXY", false)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ElevatedRoles = compact(cfg.ElevatedRoles)
	cfg.TrustedProxies = compact(cfg.TrustedProxies)

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("config: REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("config: SHUTDOWN_TIMEOUT must be > 0")
	}

	session := cfg.Session()
	if err := session.Validate(); err != nil {
		return nil, errors.New("config: " + err.Error())
	}
	return &cfg, nil
}

// Session maps the loaded settings onto the engine configuration.
func (c *Config) Session() goSession.Config {
	s := goSession.DefaultConfig()

	s.JWT.Secret = []byte(c.JWTSecret)
	s.JWT.Issuer = c.JWTIssuer
	s.JWT.Audience = c.JWTAudience
	s.JWT.Leeway = c.JWTLeeway

	s.Expiry.ElevatedTTL = c.ElevatedTTL
	s.Expiry.StandardTTL = c.StandardTTL
	if len(c.ElevatedRoles) > 0 {
		s.Expiry.ElevatedRoles = append([]string(nil), c.ElevatedRoles...)
	}

	s.Stamp.CacheTTL = c.StampCacheTTL
	s.Magic.TTL = c.MagicTTL

	s.Handshake.BotToken = c.BotToken
	s.Handshake.MaxAge = c.HandshakeMaxAge

	s.Cookie.Name = c.CookieName
	s.Cookie.Domain = c.CookieDomain
	s.Cookie.Secure = c.CookieSecure
	s.Cookie.Embedded = c.CookieEmbedded

	s.FastPath.Enabled = c.FastPathEnabled
	s.FastPath.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	s.FastPath.SharedSecret = c.InternalSecret

	s.Audit.Enabled = c.AuditEnabled
	s.Metrics.Enabled = c.MetricsEnabled
	s.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return s
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
