package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/cenkalti/backoff/v4"
)

// Config configures a Resolver.
type Config struct {
	// BaseURL is the origin serving /auth routes, without a trailing slash.
	BaseURL string
	// HTTPClient must carry a cookie jar for the cookie channel to work. A
	// client with a fresh jar is created when nil.
	HTTPClient *http.Client
	Bridge     *Bridge
	Vault      *TokenVault
	TenantHint string

	// RequestTimeout bounds every outbound call. Default 30s.
	RequestTimeout time.Duration
	// MaxAttempts caps tries per call on transient failures. Default 3.
	MaxAttempts int
	// InitialBackoff is the first retry delay. Default 250ms.
	InitialBackoff time.Duration

	Logger *slog.Logger
}

// Resolver discovers and remembers a working credential.
type Resolver struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	resolving bool
	flight    *flight
	state     State
	token     string
}

// flight is one resolution attempt. result is written before done is closed.
type flight struct {
	done   chan struct{}
	result State
}

// New validates cfg and returns an unresolved Resolver.
func New(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("client: BaseURL required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 250 * time.Millisecond
	}

	hc := cfg.HTTPClient
	if hc == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{Jar: jar}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		cfg:    cfg,
		http:   hc,
		logger: logger,
		state:  Unresolved{},
	}, nil
}

// State returns the current state without triggering resolution.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Resolve runs credential discovery. A caller arriving while another
// resolution is in flight waits for it and returns its result.
func (r *Resolver) Resolve(ctx context.Context) State {
	r.mu.Lock()
	if r.resolving {
		f := r.flight
		r.mu.Unlock()
		select {
		case <-f.done:
			return f.result
		case <-ctx.Done():
			return Failed{Kind: goSession.KindTransient, Err: ctx.Err()}
		}
	}
	f := &flight{done: make(chan struct{})}
	r.resolving = true
	r.flight = f
	r.state = Pending{}
	r.mu.Unlock()

	st, token := r.resolve(ctx)

	r.mu.Lock()
	r.state = st
	r.token = token
	r.resolving = false
	f.result = st
	close(f.done)
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "session resolved", "state", st.String())
	return st
}

func (r *Resolver) resolve(ctx context.Context) (State, string) {
	// 1. Ambient cookie.
	p, err := r.profile(ctx, "")
	switch {
	case err == nil:
		return Authenticated{Principal: p, Channel: ChannelCookie}, ""
	case goSession.KindOf(err) == goSession.KindTransient:
		return Failed{Kind: goSession.KindTransient, Err: err}, ""
	}

	// 2. Stored bearer token.
	token, found, err := r.cfg.Vault.Load(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "token vault read failed", "error", err)
	}
	if found {
		p, err := r.profile(ctx, token)
		switch kind := goSession.KindOf(err); {
		case err == nil:
			return Authenticated{Principal: p, Channel: ChannelBearer}, token
		case kind == goSession.KindTransient:
			return Failed{Kind: kind, Err: err}, ""
		case kind == goSession.KindRevoked:
			if err := r.cfg.Vault.Wipe(ctx); err != nil {
				r.logger.WarnContext(ctx, "token vault wipe failed", "error", err)
			}
		}
	}

	// 3. Full handshake.
	initData, ok := r.cfg.Bridge.InitData()
	if !ok {
		return Unauthenticated{}, ""
	}
	sess, err := r.handshake(ctx, initData)
	if err != nil {
		return Failed{Kind: goSession.KindOf(err), Err: err}, ""
	}
	if err := r.cfg.Vault.Save(ctx, sess.Token); err != nil {
		r.logger.WarnContext(ctx, "token vault write failed", "error", err)
	}
	return Authenticated{Principal: sess.Principal, Channel: ChannelBearer}, sess.Token
}

// Do sends req with the resolved credential, resolving first if needed. A 401
// resets the resolver so the next call re-discovers a credential.
func (r *Resolver) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	st := r.State()
	if _, ok := st.(Authenticated); !ok {
		st = r.Resolve(ctx)
	}
	auth, ok := st.(Authenticated)
	if !ok {
		if f, isFailed := st.(Failed); isFailed {
			return nil, f.Err
		}
		return nil, goSession.ErrNoCredential
	}

	req = req.WithContext(ctx)
	if auth.Channel == ChannelBearer {
		r.mu.Lock()
		token := r.token
		r.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", goSession.ErrBackendUnavailable, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		r.reset(Unresolved{})
	}
	return resp, nil
}

// Logout asks the server to clear the cookie, optionally rotating the stamp on
// every device, and wipes the stored token. Local state is cleared even when
// the request fails.
func (r *Resolver) Logout(ctx context.Context, allDevices bool) error {
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()

	body, err := json.Marshal(map[string]bool{"allDevices": allDevices})
	if err != nil {
		return err
	}
	resp, reqErr := r.post(ctx, "/auth/logout", body, token)
	if reqErr == nil {
		if resp.StatusCode != http.StatusOK {
			reqErr = classify(resp)
		}
		_ = resp.Body.Close()
	}

	wipeErr := r.cfg.Vault.Wipe(ctx)
	r.reset(Unauthenticated{})

	if reqErr != nil {
		return reqErr
	}
	return wipeErr
}

func (r *Resolver) reset(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolving {
		return
	}
	r.state = st
	r.token = ""
}

type handshakeResult struct {
	Principal Principal `json:"principal"`
	Token     string    `json:"token"`
}

func (r *Resolver) profile(ctx context.Context, token string) (Principal, error) {
	var out struct {
		Principal Principal `json:"principal"`
	}
	err := r.retry(ctx, func() error {
		resp, err := r.send(ctx, http.MethodGet, "/auth/profile", nil, token)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return classify(resp)
		}
		return decodeBody(resp, &out)
	})
	return out.Principal, err
}

func (r *Resolver) handshake(ctx context.Context, initData string) (handshakeResult, error) {
	body, err := json.Marshal(map[string]string{
		"initData":   initData,
		"tenantHint": r.cfg.TenantHint,
	})
	if err != nil {
		return handshakeResult{}, err
	}

	var out handshakeResult
	err = r.retry(ctx, func() error {
		resp, err := r.post(ctx, "/auth/handshake", body, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return classify(resp)
		}
		return decodeBody(resp, &out)
	})
	return out, err
}

// retry runs op until it succeeds, fails with a non-transient error or the
// attempt cap is reached.
func (r *Resolver) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && goSession.KindOf(err) != goSession.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.logger.DebugContext(ctx, "retrying session call", "error", err, "wait", wait)
	})
}

func (r *Resolver) post(ctx context.Context, path string, body []byte, token string) (*http.Response, error) {
	return r.send(ctx, http.MethodPost, path, body, token)
}

func (r *Resolver) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, r.cfg.BaseURL+path, rdr)
	if err != nil {
		cancel()
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", goSession.ErrBackendUnavailable, err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// classify maps a non-2xx response onto the engine error taxonomy using the
// coarse code in the JSON body.
func classify(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		switch body.Error {
		case "expired":
			return goSession.ErrTokenExpired
		case "revoked":
			return goSession.ErrSessionRevoked
		case "invalid_or_expired":
			return goSession.ErrMagicTokenInvalid
		default:
			return goSession.ErrTokenMalformed
		}
	case http.StatusForbidden:
		return goSession.ErrUntrustedHop
	case http.StatusTooManyRequests:
		return goSession.ErrRateLimited
	default:
		return fmt.Errorf("%w: status %d", goSession.ErrBackendUnavailable, resp.StatusCode)
	}
}

func decodeBody(resp *http.Response, dst any) error {
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode response: %v", goSession.ErrBackendUnavailable, err)
	}
	return nil
}
