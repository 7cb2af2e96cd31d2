// Package httpapi exposes the identity operations as JSON endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/oauth2login"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/go-chi/chi/v5"
)

// Options wires a router.
type Options struct {
	Engine *goIdentity.Engine
	Logger *slog.Logger
	// Cookies backs the session slot and the OAuth2 state. Without it,
	// clients carry the claim token returned by POST /session.
	Cookies    *credential.CookieJar
	TrustProxy bool
	Providers  oauth2login.Providers
	// Metrics is mounted on GET /metrics when set.
	Metrics http.Handler
	// LoginAsRoles gates POST /login-as at the HTTP layer. A caller naming
	// their own id always passes, since that ends an impersonation. The
	// engine enforces Impersonation.AllowedRoles regardless.
	LoginAsRoles []string
}

type handler struct {
	engine       *goIdentity.Engine
	logger       *slog.Logger
	cookies      *credential.CookieJar
	providers    oauth2login.Providers
	loginAsRoles []permission.Needle
}

// NewRouter registers the identity routes and middleware stack.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		engine:    opts.Engine,
		logger:    logger.With("module", "httpapi"),
		cookies:   opts.Cookies,
		providers: opts.Providers,
	}
	if len(opts.LoginAsRoles) > 0 {
		h.loginAsRoles = anyRole(opts.LoginAsRoles)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(opts.Engine, middleware.Options{
			Cookies:    opts.Cookies,
			TrustProxy: opts.TrustProxy,
		}))

		r.Post("/session", h.createOrRefresh)
		r.Get("/identity", h.identity)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.Post("/logout-as", h.logoutAs)
		r.Post("/reset", h.reset)

		r.Post("/login-as", h.loginAs)

		r.Get("/oauth2/{provider}/start", h.oauth2Start)
		r.Get("/oauth2/{provider}/callback", h.oauth2Callback)
	})

	return r
}
