package goIdentity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/goIdentity/validation"
)

func requestResetToken(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	slot := env.newSession(t)
	res := env.engine.NewIdentity(nil, slot).Reset(context.Background(), ResetParams{Email: email})
	if !res.Saved || !res.Sent {
		t.Fatalf("reset request failed: %+v", res)
	}
	mail, ok := env.mailer.last()
	if !ok {
		t.Fatalf("expected reset email")
	}
	return strings.TrimPrefix(mail.Link, "/reset-password/")
}

func TestResetRequestSendsLink(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "1", "alice@example.com")
	u.FirstName = "Alice"
	env.users.put(u)

	token := requestResetToken(t, env, "alice@example.com")
	if token == "" {
		t.Fatalf("expected token in link")
	}

	mail, _ := env.mailer.last()
	if mail.To != "alice@example.com" || mail.FirstName != "Alice" {
		t.Fatalf("unexpected email %+v", mail)
	}
	if !strings.HasPrefix(mail.Link, "/reset-password/") {
		t.Fatalf("unexpected link %q", mail.Link)
	}
	stored := env.users.get("1").ResetTokenHash
	if stored == "" || strings.Contains(stored, token) {
		t.Fatalf("expected hashed reset token, got %q", stored)
	}
}

func TestResetUnknownEmailLooksSent(t *testing.T) {
	env := newTestEnv(t)
	slot := env.newSession(t)

	res := env.engine.NewIdentity(nil, slot).Reset(context.Background(), ResetParams{Email: "nobody@example.com"})
	if !res.Saved || !res.Sent || len(res.Messages) != 0 {
		t.Fatalf("unknown email must look like success, got %+v", res)
	}
	if _, ok := env.mailer.last(); ok {
		t.Fatalf("no email must be sent for unknown accounts")
	}
}

func TestResetRequiresSessionAndEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.engine.NewIdentity(nil, nil).Reset(ctx, ResetParams{Email: "alice@example.com"})
	if !hasMessage(res.Messages, "session", validation.TypeSessionRequired) {
		t.Fatalf("expected SessionRequired, got %+v", res.Messages)
	}

	res = env.engine.NewIdentity(nil, env.newSession(t)).Reset(ctx, ResetParams{})
	if !hasMessage(res.Messages, "email", validation.TypePresenceOf) {
		t.Fatalf("expected PresenceOf email, got %+v", res.Messages)
	}
}

func TestResetConfirmSetsPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	token := requestResetToken(t, env, "alice@example.com")

	const newPassword = "brand-new-password-456"
	slot := env.newSession(t)
	res := env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{
		Email:           "alice@example.com",
		Token:           token,
		Password:        newPassword,
		PasswordConfirm: newPassword,
	})
	if !res.Saved || len(res.Messages) != 0 {
		t.Fatalf("confirm failed: %+v", res)
	}
	if env.users.get("1").ResetTokenHash != "" {
		t.Fatalf("reset token must be single use")
	}

	login := env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: newPassword})
	if !login.LoggedIn {
		t.Fatalf("expected login with new password, got %+v", login)
	}

	again := env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{
		Email:           "alice@example.com",
		Token:           token,
		Password:        newPassword,
		PasswordConfirm: newPassword,
	})
	if again.Saved || !hasMessage(again.Messages, "token", validation.TypeNotValid) {
		t.Fatalf("expected reused token to be rejected, got %+v", again)
	}
}

func TestResetConfirmRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	token := requestResetToken(t, env, "alice@example.com")
	slot := env.newSession(t)

	res := env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{
		Email:           "alice@example.com",
		Token:           token,
		Password:        "brand-new-password-456",
		PasswordConfirm: "different-password-789",
	})
	if res.Saved || !hasMessage(res.Messages, "password", validation.TypeConfirmation) {
		t.Fatalf("expected Confirmation, got %+v", res)
	}

	res = env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{
		Email:           "alice@example.com",
		Token:           "not-the-token",
		Password:        "brand-new-password-456",
		PasswordConfirm: "brand-new-password-456",
	})
	if res.Saved || !hasMessage(res.Messages, "token", validation.TypeNotValid) {
		t.Fatalf("expected NotValid token, got %+v", res)
	}

	res = env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{
		Email:           "alice@example.com",
		Token:           token,
		Password:        "short",
		PasswordConfirm: "short",
	})
	if res.Saved || !hasMessage(res.Messages, "password", validation.TypeValidationFailed) {
		t.Fatalf("expected short password rejection, got %+v", res)
	}
	if env.users.get("1").ResetTokenHash == "" {
		t.Fatalf("failed confirmations must keep the token")
	}
}

func TestResetMailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "1", "alice@example.com")
	env.mailer.err = errors.New("smtp down")

	res := env.engine.NewIdentity(nil, env.newSession(t)).Reset(context.Background(), ResetParams{Email: "alice@example.com"})
	if !res.Saved || res.Sent {
		t.Fatalf("expected saved but unsent, got %+v", res)
	}
	if !hasMessage(res.Messages, "email", validation.TypeUnavailable) {
		t.Fatalf("expected Unavailable on email, got %+v", res.Messages)
	}
}

func TestResetRequestRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Security.MaxResetRequests = 1 })
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.newSession(t)

	if res := env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{Email: "alice@example.com"}); !res.Sent {
		t.Fatalf("first request must pass, got %+v", res)
	}
	res := env.engine.NewIdentity(nil, slot).Reset(ctx, ResetParams{Email: "ALICE@example.com"})
	if res.Sent || !hasMessage(res.Messages, "email", validation.TypeRateLimited) {
		t.Fatalf("expected RateLimited, got %+v", res)
	}
}

func TestResetSaveFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "1", "alice@example.com")
	env.users.saveErr = &validation.Error{Messages: validation.Messages{
		validation.New("email", validation.TypeUniqueness, "email already exists"),
	}}

	res := env.engine.NewIdentity(nil, env.newSession(t)).Reset(context.Background(), ResetParams{Email: "alice@example.com"})
	if res.Saved || res.Sent {
		t.Fatalf("expected unsaved result, got %+v", res)
	}
	if !hasMessage(res.Messages, "email", validation.TypeUniqueness) {
		t.Fatalf("expected store validation messages merged, got %+v", res.Messages)
	}
}
