package goSession

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/principal"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	return &captureSink{events: make(chan AuditEvent, buffer)}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *captureSink) collect(n int, timeout time.Duration) []AuditEvent {
	out := make([]AuditEvent, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func auditEnabled(cfg *Config) {
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEnv(t, nil, sink)
	env.seed("p1", principal.RoleStandard, "")

	sess := mustIssue(t, env.engine, "p1")
	_, _ = env.engine.Verify(context.Background(), sess.Token)
	env.engine.Close()

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", got)
	}
}

func TestAuditRotationEventCarriesFields(t *testing.T) {
	sink := newCaptureSink(8)
	env := newTestEnv(t, auditEnabled, sink)
	env.seed("p1", principal.RoleStandard, "")

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	if _, err := env.engine.Rotate(ctx, "p1"); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	events := sink.collect(1, 2*time.Second)
	if len(events) != 1 {
		t.Fatal("expected a rotation audit event")
	}
	ev := events[0]
	if ev.EventType != auditEventStampRotated {
		t.Fatalf("expected %s, got %s", auditEventStampRotated, ev.EventType)
	}
	if ev.IP != "198.51.100.33" || ev.PrincipalID != "p1" || !ev.Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.Timestamp.Equal(env.clock.Now().UTC()) {
		t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
	}
}

func TestAuditRevokedVerifyEvent(t *testing.T) {
	sink := newCaptureSink(8)
	env := newTestEnv(t, auditEnabled, sink)
	env.seed("p1", principal.RoleStandard, "")
	ctx := context.Background()

	sess := mustIssue(t, env.engine, "p1")
	if _, err := env.engine.Rotate(ctx, "p1"); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	_, _ = env.engine.Verify(ctx, sess.Token)

	events := sink.collect(3, 2*time.Second)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	last := events[2]
	if last.EventType != auditEventVerifyRevoked || last.Success {
		t.Fatalf("unexpected event: %+v", last)
	}
	if last.Error != string(auditErrRevoked) {
		t.Fatalf("expected error code %q, got %q", auditErrRevoked, last.Error)
	}
	if last.TokenID != sess.TokenID {
		t.Fatalf("expected token id %q, got %q", sess.TokenID, last.TokenID)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := newCaptureSink(32)
	env := newTestEnv(t, auditEnabled, sink)
	ctx := WithClientIP(context.Background(), "203.0.113.50")

	raw := env.initData(t, 314)
	sess, err := env.engine.Handshake(ctx, raw, "acme")
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}
	mt, err := env.engine.IssueMagic(ctx, sess.Principal.ID)
	if err != nil {
		t.Fatalf("IssueMagic failed: %v", err)
	}
	redeemed, err := env.engine.RedeemMagic(ctx, mt.Token)
	if err != nil {
		t.Fatalf("RedeemMagic failed: %v", err)
	}
	_, _ = env.engine.RedeemMagic(ctx, mt.Token)

	needles := []string{
		testBotToken,
		testSecret,
		raw,
		sess.Token,
		sess.Principal.Stamp,
		mt.Token,
		redeemed.Token,
	}

	events := sink.collect(8, 2*time.Second)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	for _, ev := range events {
		for _, needle := range needles {
			if needle == "" {
				continue
			}
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("secret leaked in %s error field", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("secret leaked in %s metadata", ev.EventType)
				}
			}
		}
	}
}

func TestAuditDroppedCounterExposed(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if env.engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops on a disabled dispatcher")
	}
}

func TestRevocationEventsAreRetained(t *testing.T) {
	for _, typ := range []string{auditEventStampRotated, auditEventRoleChanged, auditEventPrincipalDeleted} {
		if !revocationEvent(AuditEvent{EventType: typ}) {
			t.Fatalf("expected %s to be retained", typ)
		}
	}
	for _, typ := range []string{auditEventSessionIssued, auditEventMagicRedeemed, auditEventVerifyRevoked} {
		if revocationEvent(AuditEvent{EventType: typ}) {
			t.Fatalf("expected %s to be droppable", typ)
		}
	}
}
