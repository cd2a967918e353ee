package goSession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/initdata"
	"github.com/MrEthical07/goSession/principal"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testBotToken = "123456:TEST-bot-token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Handshake.BotToken = testBotToken
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func newTestEnv(t *testing.T, mutate func(*Config), sink AuditSink) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	store := memory.New()
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mr: mr, rdb: rdb, clock: clock}
}

func (env *testEnv) seed(id string, role principal.Role, tenant string) {
	env.store.Put(principal.Record{
		ID:            id,
		Role:          role,
		TenantID:      principal.TenantPtr(tenant),
		SecurityStamp: "stamp-" + id,
		Provider:      "telegram",
		ExternalID:    "ext-" + id,
	})
}

func (env *testEnv) initData(t *testing.T, userID int64) string {
	t.Helper()
	return env.initDataAt(t, userID, env.clock.Now())
}

func (env *testEnv) initDataAt(t *testing.T, userID int64, authDate time.Time) string {
	t.Helper()

	values, err := initdata.NewValues(initdata.User{
		ID:           userID,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Username:     "ada",
		LanguageCode: "en",
	}, authDate)
	if err != nil {
		t.Fatalf("NewValues: %v", err)
	}
	return initdata.Sign(values, testBotToken)
}

func mustIssue(t *testing.T, e *Engine, id string) *IssuedSession {
	t.Helper()

	sess, err := e.Issue(context.Background(), id)
	if err != nil {
		t.Fatalf("Issue(%s): %v", id, err)
	}
	return sess
}
