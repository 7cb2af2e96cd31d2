package goIdentity

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/validation"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func auditEnabled(cfg *Config) {
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false
}

func collectEvents(sink *ChannelSink, want int) []AuditEvent {
	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEnvWithSink(t, sink)
	env.addUser(t, "1", "alice@example.com")
	slot := env.newSession(t)

	env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Email: "alice@example.com", Password: "wrong-password-123"})
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditLoginEventFields(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEnvWithSink(t, sink, auditEnabled)
	env.addUser(t, "1", "alice@example.com")
	slot := env.newSession(t)

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: testPassword})

	events := collectEvents(sink, 2)
	if len(events) != 2 {
		t.Fatalf("expected session and login events, got %+v", events)
	}
	if events[0].EventType != auditEventSessionCreated {
		t.Fatalf("expected session_created first, got %q", events[0].EventType)
	}

	ev := events[1]
	if ev.EventType != auditEventLoginSuccess || !ev.Success {
		t.Fatalf("unexpected login event %+v", ev)
	}
	if ev.UserID != "1" || ev.SessionKey == "" {
		t.Fatalf("expected user and session key, got %+v", ev)
	}
	if ev.IP != "198.51.100.33" {
		t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
	}
}

func TestAuditFailureCarriesErrorCode(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEnvWithSink(t, sink, auditEnabled)
	slot := env.newSession(t)

	env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Email: "nobody@example.com", Password: testPassword})

	events := collectEvents(sink, 2)
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	if ev := events[1]; ev.EventType != auditEventLoginFailure || ev.Success || ev.Error != "login_failed" {
		t.Fatalf("unexpected failure event %+v", ev)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEnvWithSink(t, sink, auditEnabled)
	user := env.addUser(t, "1", "alice@example.com", "admin")
	env.addUser(t, "2", "bob@example.com")
	ctx := context.Background()

	slot := env.newSession(t)
	refresh := env.engine.NewIdentity(nil, slot).CreateOrRefresh(ctx, true)
	env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: testPassword})
	env.engine.NewIdentity(nil, slot).LoginAs(ctx, LoginAsParams{UserID: "2"})
	env.engine.NewIdentity(nil, slot).LogoutAs(ctx)
	env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{Email: "alice@example.com"})
	mail, _ := env.mailer.last()

	kt := slotPair(t, slot)
	secretNeedles := []string{testPassword, kt.Token, refresh.Token, user.PasswordHash, mail.Link}

	events := collectEvents(sink, 7)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	for _, ev := range events {
		for _, needle := range secretNeedles {
			if needle == "" {
				continue
			}
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

func TestAuditErrorCode(t *testing.T) {
	cases := map[validation.Type]string{
		validation.TypeLoginFailed:     "login_failed",
		validation.TypeSessionRequired: "session_required",
		validation.TypeNotFound:        "not_found",
	}
	for typ, want := range cases {
		got := auditErrorCode(validation.Messages{validation.New("x", typ, "x")})
		if got != want {
			t.Fatalf("auditErrorCode(%s) = %q, want %q", typ, got, want)
		}
	}
	if auditErrorCode(nil) != "" {
		t.Fatalf("expected empty code without messages")
	}
}
