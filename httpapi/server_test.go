package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/initdata"
	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testBotToken = "123456:TEST-bot-token"
	testSecret   = "0123456789abcdef0123456789abcdef"
	internalKey  = "internal-key"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type testServer struct {
	srv    *httptest.Server
	engine *goSession.Engine
	store  *memory.Store
	clock  *fixedClock
}

func newTestServer(t *testing.T, mutate func(*goSession.Config)) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Handshake.BotToken = testBotToken
	cfg.Cookie.Secure = false
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &fixedClock{now: time.Now().Truncate(time.Second)}
	store := memory.New()
	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	api, err := New(Options{
		Engine:               engine,
		InternalSecretHeader: "X-Internal-Auth",
		InternalSecret:       internalKey,
		MagicRedirect:        "/app",
		PublicRate:           1000,
		PublicBurst:          1000,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, engine: engine, store: store, clock: clock}
}

func (ts *testServer) initData(t *testing.T, userID int64) string {
	t.Helper()
	values, err := initdata.NewValues(initdata.User{ID: userID, FirstName: "Ada", Username: "ada"}, ts.clock.Now())
	if err != nil {
		t.Fatalf("NewValues: %v", err)
	}
	return initdata.Sign(values, testBotToken)
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestHandshakeSetsCookieAndReturnsToken(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/auth/handshake", handshakeRequest{InitData: ts.initData(t, 77), TenantHint: "acme"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body := decode[sessionResponse](t, resp)
	if body.Token == "" || body.Principal.ID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Principal.TenantID == nil || *body.Principal.TenantID != "acme" {
		t.Fatal("expected tenant acme")
	}

	c := sessionCookie(resp)
	if c == nil {
		t.Fatal("expected session cookie")
	}
	if !c.HttpOnly || c.Value != body.Token || c.MaxAge != int((7*24*time.Hour).Seconds()) {
		t.Fatalf("unexpected cookie: %+v", c)
	}

	again := ts.do(t, http.MethodPost, "/auth/handshake", handshakeRequest{InitData: ts.initData(t, 77)}, nil)
	if again.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for existing principal, got %d", again.StatusCode)
	}
}

func TestHandshakeRejectsBadPayload(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/auth/handshake", handshakeRequest{InitData: "user=%7B%7D&hash=00"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := decode[map[string]string](t, resp)["error"]; got != "invalid" {
		t.Fatalf("expected invalid, got %q", got)
	}
}

func TestProfileByCookieAndBearer(t *testing.T) {
	ts := newTestServer(t, nil)
	hs := ts.do(t, http.MethodPost, "/auth/handshake", handshakeRequest{InitData: ts.initData(t, 5)}, nil)
	sess := decode[sessionResponse](t, hs)

	byBearer := ts.do(t, http.MethodGet, "/auth/profile", nil, bearer(sess.Token))
	if byBearer.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", byBearer.StatusCode)
	}
	got := decode[map[string]principalView](t, byBearer)["principal"]
	if got.ID != sess.Principal.ID || got.DisplayName != "Ada" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	byCookie := ts.do(t, http.MethodGet, "/auth/profile", nil, http.Header{"Cookie": {"session=" + sess.Token}})
	if byCookie.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 by cookie, got %d", byCookie.StatusCode)
	}

	anonymous := ts.do(t, http.MethodGet, "/auth/profile", nil, nil)
	if anonymous.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", anonymous.StatusCode)
	}
}

func TestLogoutAllDevicesRevokes(t *testing.T) {
	ts := newTestServer(t, nil)
	hs := ts.do(t, http.MethodPost, "/auth/handshake", handshakeRequest{InitData: ts.initData(t, 8)}, nil)
	sess := decode[sessionResponse](t, hs)

	out := ts.do(t, http.MethodPost, "/auth/logout", logoutRequest{AllDevices: true}, bearer(sess.Token))
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", out.StatusCode)
	}
	if !decode[logoutResponse](t, out).ClearStoredToken {
		t.Fatal("expected client to be told to wipe its stored token")
	}
	if c := sessionCookie(out); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie cleared, got %+v", c)
	}

	profile := ts.do(t, http.MethodGet, "/auth/profile", nil, bearer(sess.Token))
	if profile.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", profile.StatusCode)
	}
	if got := decode[map[string]string](t, profile)["error"]; got != "revoked" {
		t.Fatalf("expected revoked, got %q", got)
	}
}

func TestLogoutWithoutSessionStillClearsCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	out := ts.do(t, http.MethodPost, "/auth/logout", nil, nil)
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", out.StatusCode)
	}
	if sessionCookie(out) == nil {
		t.Fatal("expected a clearing cookie")
	}
}

func TestLogoutEmptyChunkedBodyClearsCookie(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	ts.srv.Config.Handler.ServeHTTP(rec, req)

	resp := rec.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for an empty chunked body, got %d", resp.StatusCode)
	}
	if c := sessionCookie(resp); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie cleared, got %+v", c)
	}
}

func TestLogoutMalformedBodyStillClearsCookie(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.srv.Config.Handler.ServeHTTP(rec, req)

	resp := rec.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if c := sessionCookie(resp); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie cleared, got %+v", c)
	}
}

func TestMagicRedeemRedirects(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.Put(principal.Record{ID: "p1", Role: principal.RoleStandard, SecurityStamp: "st"})

	issued := ts.do(t, http.MethodPost, "/internal/principals/p1/magic", nil, http.Header{"X-Internal-Auth": {internalKey}})
	if issued.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", issued.StatusCode)
	}
	mt := decode[magicResponse](t, issued)

	ok := ts.do(t, http.MethodGet, "/auth/magic?token="+url.QueryEscape(mt.Token), nil, nil)
	if ok.StatusCode != http.StatusSeeOther || ok.Header.Get("Location") != "/app" {
		t.Fatalf("expected redirect to /app, got %d %q", ok.StatusCode, ok.Header.Get("Location"))
	}
	if sessionCookie(ok) == nil {
		t.Fatal("expected session cookie on redemption")
	}

	reused := ts.do(t, http.MethodGet, "/auth/magic?token="+url.QueryEscape(mt.Token), nil, nil)
	if reused.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", reused.StatusCode)
	}
	if loc := reused.Header.Get("Location"); loc != "/app?error=invalid_or_expired" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	if sessionCookie(reused) != nil {
		t.Fatal("no cookie expected on a rejected token")
	}
}

func TestInternalRoutesRequireTrustedHop(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.Put(principal.Record{ID: "p1", Role: principal.RoleStandard, SecurityStamp: "st"})

	denied := ts.do(t, http.MethodPost, "/internal/principals/p1/rotate", nil, nil)
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", denied.StatusCode)
	}
	wrong := ts.do(t, http.MethodPost, "/internal/principals/p1/rotate", nil, http.Header{"X-Internal-Auth": {"nope"}})
	if wrong.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", wrong.StatusCode)
	}

	hdr := http.Header{"X-Internal-Auth": {internalKey}}
	rotated := ts.do(t, http.MethodPost, "/internal/principals/p1/rotate", nil, hdr)
	if rotated.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rotated.StatusCode)
	}
	stamp := decode[stampResponse](t, rotated).Stamp

	current := ts.do(t, http.MethodGet, "/internal/principals/p1/stamp", nil, hdr)
	if got := decode[stampResponse](t, current).Stamp; got != stamp {
		t.Fatalf("expected stamp %q, got %q", stamp, got)
	}

	role := ts.do(t, http.MethodPut, "/internal/principals/p1/role", roleRequest{Role: "admin"}, hdr)
	if role.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", role.StatusCode)
	}
	badRole := ts.do(t, http.MethodPut, "/internal/principals/p1/role", roleRequest{Role: "bad role"}, hdr)
	if badRole.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", badRole.StatusCode)
	}

	del := ts.do(t, http.MethodDelete, "/internal/principals/p1", nil, hdr)
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", del.StatusCode)
	}
	missing := ts.do(t, http.MethodDelete, "/internal/principals/ghost", nil, hdr)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestFastPathHeadersStrippedFromUntrustedClients(t *testing.T) {
	ts := newTestServer(t, func(cfg *goSession.Config) {
		cfg.FastPath.Enabled = true
		cfg.FastPath.SharedSecret = "edge-secret"
	})
	ts.store.Put(principal.Record{ID: "p1", Role: principal.RoleAdmin, SecurityStamp: "st"})

	spoofed := http.Header{
		"X-Principal-Id":    {"p1"},
		"X-Principal-Role":  {"admin"},
		"X-Principal-Stamp": {"st"},
	}
	resp := ts.do(t, http.MethodGet, "/auth/profile", nil, spoofed)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected spoofed headers to be ignored, got %d", resp.StatusCode)
	}

	trusted := spoofed.Clone()
	trusted.Set("X-Internal-Auth", "edge-secret")
	ok := ts.do(t, http.MethodGet, "/auth/profile", nil, trusted)
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from trusted hop, got %d", ok.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	if resp := ts.do(t, http.MethodGet, "/healthz", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	body, _ := io.ReadAll(resp.Body)
	out := string(body)
	if !strings.Contains(out, "gosession_http_requests_total") {
		t.Fatalf("expected http metrics, got:\n%s", out)
	}
	if !strings.Contains(out, "gosession_verify_success_total") {
		t.Fatalf("expected engine metrics, got:\n%s", out)
	}
}

func TestPublicRateLimit(t *testing.T) {
	l := newIPLimiter(1, 2)
	base := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return base }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("expected burst of two")
	}
	if l.allow("a") {
		t.Fatal("expected third request denied")
	}
	if !l.allow("b") {
		t.Fatal("expected other IP to have its own bucket")
	}

	l.now = func() time.Time { return base.Add(10 * time.Minute) }
	l.sweep()
	if l.size() != 0 {
		t.Fatalf("expected idle buckets swept, got %d", l.size())
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	ts := newTestServer(t, nil)

	api, err := New(Options{Engine: ts.engine})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		api.Sweep(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sweep did not stop")
	}
}
