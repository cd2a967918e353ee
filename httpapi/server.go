package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	sessionprom "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errRateLimited = goSession.ErrRateLimited

// Options configures a Server.
type Options struct {
	Engine *goSession.Engine
	Logger *slog.Logger

	// InternalProxies and InternalSecret gate the /internal routes. They
	// default to the engine fast-path trust settings.
	InternalProxies      []string
	InternalSecretHeader string
	InternalSecret       string

	// MagicRedirect is where GET /auth/magic sends the browser.
	MagicRedirect string

	// PublicRate and PublicBurst bound public auth routes per client IP.
	PublicRate  float64
	PublicBurst int

	// BehindProxy enables X-Forwarded-For / X-Real-IP handling.
	BehindProxy bool

	// Registry receives HTTP and engine collectors. A private registry is
	// used when nil.
	Registry *prometheus.Registry
}

// Server holds the HTTP surface of the session engine.
type Server struct {
	engine   *goSession.Engine
	logger   *slog.Logger
	resolver middleware.Resolver
	internal middleware.TrustPolicy
	fastPath *middleware.TrustPolicy
	headers  []string
	cookies  CookieBuilder
	limiter  *ipLimiter
	metrics  *httpMetrics
	registry *prometheus.Registry
	redirect string
	proxied  bool
}

// New validates opts and builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("httpapi: engine required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Engine.Config()

	resolver, err := middleware.FromEngine(opts.Engine)
	if err != nil {
		return nil, err
	}

	proxies := opts.InternalProxies
	secretHeader := opts.InternalSecretHeader
	secret := opts.InternalSecret
	if len(proxies) == 0 && secret == "" {
		proxies = cfg.FastPath.TrustedProxies
		secretHeader = cfg.FastPath.SharedSecretHeader
		secret = cfg.FastPath.SharedSecret
	}
	// With nothing configured the zero policy keeps /internal closed.
	var internal middleware.TrustPolicy
	if len(proxies) > 0 || secret != "" {
		internal, err = middleware.NewTrustPolicy(proxies, secretHeader, secret)
		if err != nil {
			return nil, err
		}
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(sessionprom.NewCollector(opts.Engine))

	rate, burst := opts.PublicRate, opts.PublicBurst
	if rate <= 0 {
		rate = 5
	}
	if burst <= 0 {
		burst = 20
	}

	redirect := opts.MagicRedirect
	if redirect == "" {
		redirect = "/"
	}

	s := &Server{
		engine:   opts.Engine,
		logger:   logger,
		resolver: resolver,
		internal: internal,
		cookies:  NewCookieBuilder(cfg.Cookie),
		limiter:  newIPLimiter(rate, burst),
		metrics:  newHTTPMetrics(reg),
		registry: reg,
		redirect: redirect,
		proxied:  opts.BehindProxy,
	}
	if cfg.FastPath.Enabled {
		policy, err := middleware.NewTrustPolicy(cfg.FastPath.TrustedProxies, cfg.FastPath.SharedSecretHeader, cfg.FastPath.SharedSecret)
		if err != nil {
			return nil, err
		}
		s.fastPath = &policy
		s.headers = []string{cfg.FastPath.IDHeader, cfg.FastPath.RoleHeader, cfg.FastPath.StampHeader, cfg.FastPath.TenantHeader}
	}
	return s, nil
}

// Routes returns the chi router with every route mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if s.proxied {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.ClientIP)
	r.Use(accessLog(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(s.metrics.instrument)
	if s.fastPath != nil {
		r.Use(middleware.StripInternalHeaders(*s.fastPath, s.headers...))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/auth", func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Post("/handshake", s.handleHandshake)
		r.Get("/magic", s.handleMagicRedeem)
		r.Post("/logout", s.handleLogout)
		r.With(middleware.Guard(s.resolver)).Get("/profile", s.handleProfile)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.RequireTrustedHop(s.internal))
		r.Route("/principals/{id}", func(r chi.Router) {
			r.Post("/magic", s.handleIssueMagic)
			r.Post("/rotate", s.handleRotate)
			r.Get("/stamp", s.handleCurrentStamp)
			r.Put("/role", s.handleChangeRole)
			r.Delete("/", s.handleSoftDelete)
		})
	})

	return r
}

// Sweep drops idle rate-limit buckets every interval until ctx is done.
func (s *Server) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.sweep()
		}
	}
}
