package main

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/oauth2login"
	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// settings are the process-level knobs. Engine behavior comes from the
// YAML file at ConfigPath and GOIDENTITY_* variables.
type settings struct {
	Addr            string        `env:"IDENTITYD_ADDR" envDefault:":8080"`
	ConfigPath      string        `env:"IDENTITYD_CONFIG"`
	LogLevel        string        `env:"IDENTITYD_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"IDENTITYD_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustProxy      bool          `env:"IDENTITYD_TRUST_PROXY"`
	LoginAsRoles    []string      `env:"IDENTITYD_LOGIN_AS_ROLES" envSeparator:","`

	RedisAddr     string `env:"REDIS_ADDR,required,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	// DatabaseURL selects the postgres user store; empty runs on memstore.
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int    `env:"DATABASE_MAX_CONNS" envDefault:"10"`

	Cookie cookieSettings `envPrefix:"IDENTITYD_COOKIE_"`
	OAuth2 oauthSettings  `envPrefix:"IDENTITYD_OAUTH2_"`

	SeedEmail    string   `env:"IDENTITYD_SEED_EMAIL"`
	SeedPassword string   `env:"IDENTITYD_SEED_PASSWORD"`
	SeedRoles    []string `env:"IDENTITYD_SEED_ROLES" envSeparator:","`
}

type cookieSettings struct {
	// HashKey and BlockKey are base64. Without HashKey the session travels
	// as a bearer claim token only.
	HashKey  string        `env:"HASH_KEY"`
	BlockKey string        `env:"BLOCK_KEY"`
	Domain   string        `env:"DOMAIN"`
	MaxAge   time.Duration `env:"MAX_AGE" envDefault:"720h"`
	Secure   bool          `env:"SECURE" envDefault:"true"`
}

type oauthSettings struct {
	// Providers lists enabled presets: github, google.
	Providers   []string `env:"PROVIDERS" envSeparator:","`
	RedirectURL string   `env:"REDIRECT_BASE_URL"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
}

func loadSettings() (settings, error) {
	var s settings
	if err := env.Parse(&s); err != nil {
		return settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

func (s settings) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c cookieSettings) jar() (*credential.CookieJar, error) {
	if c.HashKey == "" {
		return nil, nil
	}
	hashKey, err := base64.StdEncoding.DecodeString(c.HashKey)
	if err != nil {
		return nil, fmt.Errorf("decode cookie hash key: %w", err)
	}
	var blockKey []byte
	if c.BlockKey != "" {
		if blockKey, err = base64.StdEncoding.DecodeString(c.BlockKey); err != nil {
			return nil, fmt.Errorf("decode cookie block key: %w", err)
		}
	}
	return credential.NewCookieJar(hashKey, blockKey, credential.CookieOptions{
		Domain:   c.Domain,
		MaxAge:   c.MaxAge,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o oauthSettings) providers() (oauth2login.Providers, error) {
	var ps []*oauth2login.Provider
	for _, name := range o.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		redirect := strings.TrimRight(o.RedirectURL, "/") + "/oauth2/" + name + "/callback"
		switch name {
		case "":
			continue
		case "github":
			ps = append(ps, &oauth2login.Provider{
				Name: name,
				Config: &oauth2.Config{
					ClientID:     o.GitHubClientID,
					ClientSecret: o.GitHubClientSecret,
					Endpoint:     endpoints.GitHub,
					RedirectURL:  redirect,
					Scopes:       []string{"read:user", "user:email"},
				},
				UserInfoURL: "https://api.github.com/user",
				IDField:     "id",
			})
		case "google":
			ps = append(ps, &oauth2login.Provider{
				Name: name,
				Config: &oauth2.Config{
					ClientID:     o.GoogleClientID,
					ClientSecret: o.GoogleClientSecret,
					Endpoint:     endpoints.Google,
					RedirectURL:  redirect,
					Scopes:       []string{"openid", "email", "profile"},
				},
				UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
				IDField:     "sub",
			})
		default:
			return nil, fmt.Errorf("unknown oauth2 provider preset %q", name)
		}
	}
	return oauth2login.NewProviders(ps...), nil
}
