package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeServer struct {
	mu             sync.Mutex
	valid          map[string]bool
	revoked        map[string]bool
	failProfile    int
	handshakeCode  int
	handshakeDelay time.Duration
	lastAllDevices bool

	profileCalls   atomic.Int32
	bearerCalls    atomic.Int32
	handshakeCalls atomic.Int32
	logoutCalls    atomic.Int32
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{
		valid:   map[string]bool{"cookie-token": true, "stored-token": true},
		revoked: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/profile", f.profile)
	mux.HandleFunc("POST /auth/handshake", f.handshake)
	mux.HandleFunc("POST /auth/logout", f.logout)
	mux.HandleFunc("GET /api/echo", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.token(r); !ok {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"authorization": r.Header.Get("Authorization")})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) token(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer "), true
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value, true
	}
	return "", false
}

func (f *fakeServer) profile(w http.ResponseWriter, r *http.Request) {
	f.profileCalls.Add(1)
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		f.bearerCalls.Add(1)
	}

	f.mu.Lock()
	if f.failProfile > 0 {
		f.failProfile--
		f.mu.Unlock()
		writeTestJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}
	f.mu.Unlock()

	tok, ok := f.token(r)
	if !ok {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
		return
	}

	f.mu.Lock()
	revoked, valid := f.revoked[tok], f.valid[tok]
	f.mu.Unlock()
	switch {
	case revoked:
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "revoked"})
	case valid:
		writeTestJSON(w, http.StatusOK, map[string]any{"principal": map[string]any{"id": "p1", "role": "standard"}})
	default:
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid"})
	}
}

func (f *fakeServer) handshake(w http.ResponseWriter, r *http.Request) {
	n := f.handshakeCalls.Add(1)
	time.Sleep(f.handshakeDelay)

	var body struct {
		InitData string `json:"initData"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if f.handshakeCode != 0 || body.InitData == "" {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid"})
		return
	}

	tok := fmt.Sprintf("hs-token-%d", n)
	f.mu.Lock()
	f.valid[tok] = true
	f.mu.Unlock()
	writeTestJSON(w, http.StatusCreated, map[string]any{
		"principal": map[string]any{"id": "p1", "role": "standard"},
		"token":     tok,
	})
}

func (f *fakeServer) logout(w http.ResponseWriter, r *http.Request) {
	f.logoutCalls.Add(1)
	var body struct {
		AllDevices bool `json:"allDevices"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.lastAllDevices = body.AllDevices
	f.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "session", Path: "/", MaxAge: -1})
	writeTestJSON(w, http.StatusOK, map[string]bool{"clearStoredToken": true})
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// spyStorage is a SecureStorage that counts calls.
type spyStorage struct {
	*MemoryStorage
	available bool
	hang      chan struct{}

	gets    atomic.Int32
	sets    atomic.Int32
	deletes atomic.Int32
}

func newSpyStorage() *spyStorage {
	return &spyStorage{MemoryStorage: NewMemoryStorage(), available: true}
}

func (s *spyStorage) Available(context.Context) bool { return s.available }

func (s *spyStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.gets.Add(1)
	if s.hang != nil {
		<-s.hang
	}
	return s.MemoryStorage.Get(ctx, key)
}

func (s *spyStorage) Set(ctx context.Context, key, value string) error {
	s.sets.Add(1)
	return s.MemoryStorage.Set(ctx, key, value)
}

func (s *spyStorage) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	return s.MemoryStorage.Delete(ctx, key)
}

func jarWithCookie(t *testing.T, base, value string) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	if value != "" {
		u, err := url.Parse(base)
		if err != nil {
			t.Fatalf("url.Parse: %v", err)
		}
		jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: value, Path: "/"}})
	}
	return jar
}

func newTestResolver(t *testing.T, base string, jar http.CookieJar, vault *TokenVault, bridge *Bridge) *Resolver {
	t.Helper()
	r, err := New(Config{
		BaseURL:        base,
		HTTPClient:     &http.Client{Jar: jar},
		Bridge:         bridge,
		Vault:          vault,
		RequestTimeout: 5 * time.Second,
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}
