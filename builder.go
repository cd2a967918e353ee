package goSession

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/internal"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/initdata"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/stamp"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  principal.Store

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing magic tokens and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore sets the source of truth for principals and stamps.
func (b *Builder) WithPrincipalStore(store principal.Store) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issuance and verification.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every dependency.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("principal store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger,
		now:     now,
		store:   b.store,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- TOKENS --------
	elevated := make([]principal.Role, 0, len(cfg.Expiry.ElevatedRoles))
	for _, r := range cfg.Expiry.ElevatedRoles {
		elevated = append(elevated, principal.Role(r))
	}
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		ElevatedRoles: elevated,
		ElevatedTTL:   cfg.Expiry.ElevatedTTL,
		StandardTTL:   cfg.Expiry.StandardTTL,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- STAMPS --------
	stamps, err := stamp.New(b.store, stamp.Config{
		CacheTTL:      cfg.Stamp.CacheTTL,
		CacheSize:     cfg.Stamp.CacheSize,
		LookupTimeout: cfg.Stamp.LookupTimeout,
		Observe: func(hit bool) {
			if hit {
				engine.metricInc(MetricStampCacheHit)
				return
			}
			engine.metricInc(MetricStampCacheMiss)
		},
	})
	if err != nil {
		return nil, err
	}
	engine.stamps = stamps

	// -------- REDIS-BACKED STATE --------
	engine.magicStore = stores.NewMagicTokenStore(b.redis, cfg.Magic.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		MaxHandshakes:       cfg.RateLimit.MaxHandshakes,
		HandshakeWindow:     cfg.RateLimit.HandshakeWindow,
		MaxRedeemFailures:   cfg.RateLimit.MaxRedeemFailures,
		RedeemFailureWindow: cfg.RateLimit.RedeemFailureWindow,
	})

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Retain:     revocationEvent,
		OnDrop: func(ev internalaudit.Event) {
			logger.Debug("audit event dropped", "event_type", ev.EventType)
		},
	}, b.auditSink)

	// -------- FLOWS --------
	lookup := flows.StampLookup(stamps.Lookup)
	engine.flow = flows.New(flows.Deps{
		Verify: flows.VerifyDeps{
			Decode:      jm.Decode,
			LookupStamp: lookup,
		},
		FastPath: flows.FastPathDeps{
			LookupStamp: lookup,
		},
		Handshake: flows.HandshakeDeps{
			VerifyPayload: func(raw string) (initdata.Payload, error) {
				return initdata.Verify(raw, cfg.Handshake.BotToken, cfg.Handshake.MaxAge, cfg.JWT.Leeway, now())
			},
			FindOrCreate: b.store.FindOrCreate,
			NewID:        func() string { return ulid.Make().String() },
			NewStamp:     stamp.Generate,
			Provider:     cfg.Handshake.Provider,
			DefaultRole:  principal.Role(cfg.Handshake.DefaultRole),
		},
		MagicIssue: flows.MagicIssueDeps{
			GetPrincipal: b.store.Get,
			NewToken:     internal.NewMagicToken,
			Save:         engine.magicStore.Save,
			TTL:          cfg.Magic.TTL,
			Now:          now,
		},
		MagicRedeem: flows.MagicRedeemDeps{
			HashToken:    internal.HashMagicToken,
			Consume:      engine.magicStore.Consume,
			GetPrincipal: b.store.Get,
			Now:          now,
		},
		RoleChange: flows.RoleChangeDeps{
			NewStamp:   stamp.Generate,
			UpdateRole: b.store.UpdateRole,
			Invalidate: stamps.Invalidate,
		},
	})

	b.built = true

	return engine, nil
}
