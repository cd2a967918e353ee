// Command sessiond serves the session protocol over HTTP.
//
// Configuration comes from the environment and an optional .env file; see
// internal/config for the variable names. With DATABASE_URL unset principals
// live in memory and are lost on restart.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/httpapi"
	"github.com/MrEthical07/goSession/internal/config"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/MrEthical07/goSession/store/postgres"
	"github.com/redis/go-redis/v9"
)

const internalSecretHeader = "X-Internal-Auth"

func main() {
	if err := run(); err != nil {
		slog.Error("sessiond exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- infrastructure ----------
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return err
	}

	var store principal.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; principals are kept in memory")
		store = memory.New()
	} else {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		if err := pg.Ping(pingCtx); err != nil {
			return err
		}
		store = pg
	}

	// ---------- engine ----------
	sessionCfg := cfg.Session()
	sessionCfg.FastPath.SharedSecretHeader = internalSecretHeader
	for _, w := range sessionCfg.Lint() {
		logger.Warn("config lint", "code", w.Code, "message", w.Message)
	}

	builder := goSession.New().
		WithConfig(sessionCfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithLogger(logger)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(goSession.NewLogSink(logger.With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	// ---------- http ----------
	api, err := httpapi.New(httpapi.Options{
		Engine:               engine,
		Logger:               logger,
		InternalProxies:      cfg.TrustedProxies,
		InternalSecretHeader: internalSecretHeader,
		InternalSecret:       cfg.InternalSecret,
		MagicRedirect:        cfg.MagicRedirect,
		BehindProxy:          cfg.BehindProxy,
	})
	if err != nil {
		return err
	}
	go api.Sweep(ctx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
