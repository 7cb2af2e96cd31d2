package main

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/storage/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("IDENTITYD_LOGIN_AS_ROLES", "admin,support")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings failed: %v", err)
	}
	if s.Addr != ":8080" || !s.Cookie.Secure || s.DatabaseMaxConns != 10 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if len(s.LoginAsRoles) != 2 || s.LoginAsRoles[1] != "support" {
		t.Fatalf("unexpected login-as roles %v", s.LoginAsRoles)
	}
	if s.logLevel() != slog.LevelInfo {
		t.Fatalf("expected info level")
	}
}

func TestLoadSettingsRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if _, err := loadSettings(); err == nil {
		t.Fatalf("expected missing REDIS_ADDR to fail")
	}
}

func TestCookieJarFromSettings(t *testing.T) {
	jar, err := cookieSettings{}.jar()
	if err != nil || jar != nil {
		t.Fatalf("expected no jar without a hash key, got %v %v", jar, err)
	}

	hashKey, blockKey := credential.GenerateKeys()
	jar, err = cookieSettings{
		HashKey:  base64.StdEncoding.EncodeToString(hashKey),
		BlockKey: base64.StdEncoding.EncodeToString(blockKey),
	}.jar()
	if err != nil || jar == nil {
		t.Fatalf("expected jar, got %v %v", jar, err)
	}

	if _, err := (cookieSettings{HashKey: "%%%"}).jar(); err == nil {
		t.Fatalf("expected bad base64 to fail")
	}
}

func TestOAuth2Presets(t *testing.T) {
	ps, err := oauthSettings{
		Providers:      []string{"GitHub", "google"},
		RedirectURL:    "https://id.example.com/",
		GitHubClientID: "gh-client",
	}.providers()
	if err != nil {
		t.Fatalf("providers failed: %v", err)
	}
	gh, ok := ps["github"]
	if !ok || gh.Config.ClientID != "gh-client" {
		t.Fatalf("expected github provider, got %+v", ps)
	}
	if gh.Config.RedirectURL != "https://id.example.com/oauth2/github/callback" {
		t.Fatalf("unexpected redirect %q", gh.Config.RedirectURL)
	}
	if ps["google"].IDField != "sub" {
		t.Fatalf("google accounts are keyed by sub")
	}

	if _, err := (oauthSettings{Providers: []string{"myspace"}}).providers(); err == nil {
		t.Fatalf("expected unknown preset to fail")
	}
}

func TestSeedUserIsIdempotent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := goIdentity.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	store := memstore.New()
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	s := settings{SeedEmail: "admin@example.com", SeedPassword: "admin-password-1", SeedRoles: []string{"admin"}}
	ctx := context.Background()
	for range 2 {
		if err := seedUser(ctx, engine, store, memSeeder{store}, s); err != nil {
			t.Fatalf("seedUser failed: %v", err)
		}
	}

	u, err := store.FindUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("seed user missing: %v", err)
	}
	if len(u.Roles) != 1 || u.Roles[0].Index != "admin" {
		t.Fatalf("expected admin role once, got %+v", u.Roles)
	}

	slot := credential.NewMemorySlot()
	id := engine.NewIdentity(nil, slot)
	if res := id.CreateOrRefresh(ctx, false); !res.Saved {
		t.Fatalf("CreateOrRefresh failed: %+v", res)
	}
	if res := id.Login(ctx, goIdentity.LoginParams{Email: "admin@example.com", Password: "admin-password-1"}); !res.LoggedIn {
		t.Fatalf("expected seed login, got %+v", res)
	}

	if err := seedUser(ctx, engine, store, memSeeder{store}, settings{SeedEmail: "x@example.com"}); err == nil {
		t.Fatalf("expected missing password to fail")
	}
}
