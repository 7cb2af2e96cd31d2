package goIdentity

import (
	"context"
	"strings"
	"testing"

	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/validation"
)

func hasMessage(msgs validation.Messages, field string, typ validation.Type) bool {
	for _, m := range msgs {
		if m.Field == field && m.Type == typ {
			return true
		}
	}
	return false
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.newSession(t)

	id := env.engine.NewIdentity(nil, slot)
	res := id.Login(ctx, LoginParams{Email: "alice@example.com", Password: testPassword})
	if !res.Saved || !res.LoggedIn || res.LoggedInAs {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Messages) != 0 {
		t.Fatalf("expected no messages, got %+v", res.Messages)
	}

	sess, err := env.engine.NewIdentity(nil, slot).Session(ctx, false)
	if err != nil || sess.UserID != "1" {
		t.Fatalf("expected persisted user id, got %+v err=%v", sess, err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected login success metric 1, got %d", got)
	}
}

func TestLoginByUsername(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "1", "alice@example.com")
	u.Username = "alice"
	env.users.put(u)
	slot := env.newSession(t)

	res := env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Username: "alice", Password: testPassword})
	if !res.LoggedIn {
		t.Fatalf("expected username login, got %+v", res)
	}
}

func TestLoginRequiresSessionAndFields(t *testing.T) {
	env := newTestEnv(t)

	res := env.engine.NewIdentity(nil, nil).Login(context.Background(), LoginParams{})
	if res.Saved || res.LoggedIn {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, want := range []struct {
		field string
		typ   validation.Type
	}{
		{"email", validation.TypePresenceOf},
		{"password", validation.TypePresenceOf},
		{"session", validation.TypeSessionRequired},
	} {
		if !hasMessage(res.Messages, want.field, want.typ) {
			t.Fatalf("expected %s on %s, got %+v", want.typ, want.field, res.Messages)
		}
	}
}

func TestLoginRejections(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "1", "alice@example.com")
	env.users.put(User{ID: "2", Email: "oauth@example.com"})
	deleted := env.addUser(t, "3", "gone@example.com")
	deleted.Deleted = true
	env.users.put(deleted)

	cases := []struct {
		name  string
		email string
		pass  string
		field string
		typ   validation.Type
		text  string
	}{
		{"unknown", "nobody@example.com", testPassword, "email", validation.TypeLoginFailed, "Login Failed"},
		{"wrong password", "alice@example.com", "wrong-password-123", "email", validation.TypeLoginFailed, "Login Failed"},
		{"no password", "oauth@example.com", testPassword, "password", validation.TypeLoginFailed, "Password Login Disabled"},
		{"deleted", "gone@example.com", testPassword, "password", validation.TypeLoginForbidden, "Login Forbidden"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slot := env.newSession(t)
			res := env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Email: tc.email, Password: tc.pass})
			if !res.Saved || res.LoggedIn {
				t.Fatalf("expected saved anonymous session, got %+v", res)
			}
			if len(res.Messages) != 1 {
				t.Fatalf("expected one message, got %+v", res.Messages)
			}
			m := res.Messages[0]
			if m.Field != tc.field || m.Type != tc.typ || m.Text != tc.text {
				t.Fatalf("unexpected message %+v", m)
			}
		})
	}
}

func TestFailedLoginDetachesUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.loggedIn(t, "alice@example.com")

	res := env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: "wrong-password-123"})
	if res.LoggedIn {
		t.Fatalf("failed login must log the session out")
	}
	if ok, _ := env.engine.NewIdentity(nil, slot).IsLoggedIn(ctx, false, false); ok {
		t.Fatalf("expected persisted logout")
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Security.MaxLoginAttempts = 2 })
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.newSession(t)

	for i := 0; i < 2; i++ {
		env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: "wrong-password-123"})
	}

	res := env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "Alice@example.com", Password: testPassword})
	if res.LoggedIn {
		t.Fatalf("expected throttled login")
	}
	if !hasMessage(res.Messages, "email", validation.TypeRateLimited) {
		t.Fatalf("expected RateLimited on email, got %+v", res.Messages)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected rate limited metric 1, got %d", got)
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Security.MaxLoginAttempts = 2 })
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.newSession(t)

	env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: "wrong-password-123"})
	if res := env.engine.NewIdentity(nil, slot).Login(ctx, LoginParams{Email: "alice@example.com", Password: testPassword}); !res.LoggedIn {
		t.Fatalf("expected login, got %+v", res)
	}
	if env.mr.Exists("il:alice@example.com") {
		t.Fatalf("expected throttle counter cleared")
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t)
	legacy, err := password.NewBcrypt(4).Hash(testPassword)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}
	env.users.put(User{ID: "1", Email: "alice@example.com", PasswordHash: legacy})
	slot := env.newSession(t)

	res := env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Email: "alice@example.com", Password: testPassword})
	if !res.LoggedIn {
		t.Fatalf("expected legacy hash to verify, got %+v", res)
	}
	if got := env.users.get("1").PasswordHash; !strings.HasPrefix(got, "$argon2id$") {
		t.Fatalf("expected argon2id upgrade, got %q", got)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordUpgraded]; got != 1 {
		t.Fatalf("expected upgrade metric 1, got %d", got)
	}
}

func TestLoginUserStoreDown(t *testing.T) {
	env := newTestEnv(t)
	slot := env.newSession(t)
	env.users.findErr = errStoreDown

	res := env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Email: "alice@example.com", Password: testPassword})
	if res.Saved || !hasMessage(res.Messages, "store", validation.TypeUnavailable) {
		t.Fatalf("expected unsaved Unavailable result, got %+v", res)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.loggedIn(t, "alice@example.com")

	res := env.engine.NewIdentity(nil, slot).Logout(ctx)
	if !res.Saved || res.LoggedIn {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = env.engine.NewIdentity(nil, nil).Logout(ctx)
	if !hasMessage(res.Messages, "session", validation.TypeSessionRequired) {
		t.Fatalf("expected SessionRequired, got %+v", res.Messages)
	}
}

func TestLoginAsAndLogoutAs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "admin@example.com", "admin")
	env.addUser(t, "2", "bob@example.com")
	slot := env.loggedIn(t, "admin@example.com")

	id := env.engine.NewIdentity(nil, slot)
	res := id.LoginAs(ctx, LoginAsParams{UserID: "2"})
	if !res.Saved || !res.LoggedIn || !res.LoggedInAs {
		t.Fatalf("unexpected result: %+v", res)
	}
	if u, _ := id.User(ctx, false, false); u.ID != "2" {
		t.Fatalf("expected acting as bob, got %+v", u)
	}
	if as, _ := id.UserAs(ctx); as == nil || as.ID != "1" {
		t.Fatalf("expected admin as impersonator, got %+v", as)
	}

	res = env.engine.NewIdentity(nil, slot).LogoutAs(ctx)
	if !res.Saved || !res.LoggedIn || res.LoggedInAs {
		t.Fatalf("unexpected logoutAs result: %+v", res)
	}
	if got, _ := env.engine.NewIdentity(nil, slot).UserID(ctx, false); got != "1" {
		t.Fatalf("expected admin restored, got %q", got)
	}
}

func TestLoginAsSelfEndsImpersonation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "admin@example.com", "admin")
	env.addUser(t, "2", "bob@example.com")
	slot := env.loggedIn(t, "admin@example.com")

	env.engine.NewIdentity(nil, slot).LoginAs(ctx, LoginAsParams{UserID: "2"})
	res := env.engine.NewIdentity(nil, slot).LoginAs(ctx, LoginAsParams{UserID: "2"})
	if !res.Saved || res.LoggedInAs {
		t.Fatalf("expected impersonation to end, got %+v", res)
	}
	if got, _ := env.engine.NewIdentity(nil, slot).UserID(ctx, false); got != "1" {
		t.Fatalf("expected admin restored, got %q", got)
	}
}

func TestLoginAsRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "admin@example.com", "admin")
	env.addUser(t, "2", "bob@example.com")

	anonymous := env.newSession(t)
	res := env.engine.NewIdentity(nil, anonymous).LoginAs(ctx, LoginAsParams{UserID: "2"})
	if !hasMessage(res.Messages, "userId", validation.TypeForbidden) {
		t.Fatalf("expected Forbidden for anonymous caller, got %+v", res.Messages)
	}

	admin := env.loggedIn(t, "admin@example.com")
	res = env.engine.NewIdentity(nil, admin).LoginAs(ctx, LoginAsParams{UserID: "99"})
	if !hasMessage(res.Messages, "userId", validation.TypeNotFound) {
		t.Fatalf("expected NotFound, got %+v", res.Messages)
	}

	res = env.engine.NewIdentity(nil, admin).LoginAs(ctx, LoginAsParams{})
	if !hasMessage(res.Messages, "userId", validation.TypePresenceOf) {
		t.Fatalf("expected PresenceOf, got %+v", res.Messages)
	}

	bob := env.loggedIn(t, "bob@example.com")
	res = env.engine.NewIdentity(nil, bob).LoginAs(ctx, LoginAsParams{UserID: "1"})
	if res.Saved || res.LoggedInAs || !hasMessage(res.Messages, "userId", validation.TypeForbidden) {
		t.Fatalf("expected Forbidden without impersonation role, got %+v", res)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginAsDenied]; got != 2 {
		t.Fatalf("expected 2 denied impersonations, got %d", got)
	}
}

func TestLoginAsThroughInheritedRole(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Permissions = permission.Config{Roles: map[string]permission.RoleConfig{
			"superuser": {Inherit: []string{"admin"}},
		}}
	})
	ctx := context.Background()
	env.users.roles["admin"] = Role{ID: "r-admin", Index: "admin"}
	env.addUser(t, "1", "root@example.com", "superuser")
	env.addUser(t, "2", "bob@example.com")
	slot := env.loggedIn(t, "root@example.com")

	res := env.engine.NewIdentity(nil, slot).LoginAs(ctx, LoginAsParams{UserID: "2"})
	if !res.LoggedInAs {
		t.Fatalf("expected inherited admin role to allow impersonation, got %+v", res)
	}
}

func TestOAuth2LinksCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	slot := env.loggedIn(t, "alice@example.com")

	res := env.engine.NewIdentity(nil, slot).OAuth2(ctx, OAuth2Params{
		Provider:    "github",
		ProviderID:  "gh-77",
		AccessToken: "access",
		Meta:        map[string]any{"name": "Alice A", "email": "alice@example.com"},
	})
	if !res.Saved || !res.LoggedIn {
		t.Fatalf("unexpected result: %+v", res)
	}

	link, err := env.users.FindOAuth2Link(ctx, "github", "gh-77")
	if err != nil {
		t.Fatalf("expected link: %v", err)
	}
	if link.UserID != "1" || link.Name != "Alice A" || link.Email != "alice@example.com" {
		t.Fatalf("unexpected link %+v", link)
	}
}

func TestOAuth2LogsInLinkedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "alice@example.com")
	env.users.links["github/gh-77"] = OAuth2Link{Provider: "github", ProviderID: "gh-77", UserID: "1"}
	slot := env.newSession(t)

	res := env.engine.NewIdentity(nil, slot).OAuth2(ctx, OAuth2Params{Provider: "github", ProviderID: "gh-77"})
	if !res.Saved || !res.LoggedIn {
		t.Fatalf("expected linked user login, got %+v", res)
	}
	if got, _ := env.engine.NewIdentity(nil, slot).UserID(ctx, false); got != "1" {
		t.Fatalf("expected user 1, got %q", got)
	}
}

func TestOAuth2UnlinkedAnonymous(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slot := env.newSession(t)

	res := env.engine.NewIdentity(nil, slot).OAuth2(ctx, OAuth2Params{Provider: "github", ProviderID: "gh-1"})
	if res.LoggedIn || !hasMessage(res.Messages, "userId", validation.TypeValidationFailed) {
		t.Fatalf("expected userId ValidationFailed, got %+v", res)
	}
	if _, err := env.users.FindOAuth2Link(ctx, "github", "gh-1"); err != nil {
		t.Fatalf("expected link recorded without user: %v", err)
	}
}

func TestOAuth2Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.engine.NewIdentity(nil, credential.NewMemorySlot()).OAuth2(ctx, OAuth2Params{Provider: "github"})
	if !hasMessage(res.Messages, "providerId", validation.TypePresenceOf) {
		t.Fatalf("expected PresenceOf providerId, got %+v", res.Messages)
	}
	if len(env.users.links) != 0 {
		t.Fatalf("missing fields must not save a link")
	}

	env.users.put(User{ID: "5", Email: "gone@example.com", Deleted: true})
	env.users.links["github/gh-5"] = OAuth2Link{Provider: "github", ProviderID: "gh-5", UserID: "5"}
	slot := env.newSession(t)
	res = env.engine.NewIdentity(nil, slot).OAuth2(ctx, OAuth2Params{Provider: "github", ProviderID: "gh-5"})
	if res.LoggedIn || !hasMessage(res.Messages, "password", validation.TypeLoginForbidden) {
		t.Fatalf("expected LoginForbidden for deleted user, got %+v", res)
	}

	env.users.links["github/gh-6"] = OAuth2Link{Provider: "github", ProviderID: "gh-6", UserID: "6"}
	res = env.engine.NewIdentity(nil, slot).OAuth2(ctx, OAuth2Params{Provider: "github", ProviderID: "gh-6"})
	if res.LoggedIn || !hasMessage(res.Messages, "id", validation.TypeLoginFailed) {
		t.Fatalf("expected LoginFailed for missing user, got %+v", res)
	}
}
