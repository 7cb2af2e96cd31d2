package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credential"
)

type identityContextKey struct{}

// FromContext returns the Identity attached by [Identity].
func FromContext(ctx context.Context) (*goIdentity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*goIdentity.Identity)
	return id, ok && id != nil
}

// Options tunes how requests are mapped onto an Identity.
type Options struct {
	// Cookies backs the session slot. Without it only request credentials
	// (claim param, Basic, Bearer, key/token params) are read.
	Cookies *credential.CookieJar

	// TrustProxy honours X-Forwarded-Proto and X-Forwarded-For.
	TrustProxy bool
}

// Identity attaches a request-scoped *goIdentity.Identity to every request.
// The claim origin is the request scheme and host, and the client IP is
// attached for login throttling and audit.
func Identity(engine *goIdentity.Engine, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "identity unavailable", http.StatusInternalServerError)
				return
			}

			var slot credential.Slot
			if opts.Cookies != nil {
				slot = opts.Cookies.Slot(w, r)
			}

			id := engine.NewIdentity(credential.FromHTTP(r), slot).WithOrigin(origin(r, opts.TrustProxy))

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			if ip := clientIP(r, opts.TrustProxy); ip != "" {
				ctx = goIdentity.WithClientIP(ctx, ip)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func origin(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if trustProxy {
		if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
