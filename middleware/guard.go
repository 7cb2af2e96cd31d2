package middleware

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
)

// decide returns http.StatusOK to let a request through, or the status to
// reject it with.
type decide func(r *http.Request, id *goIdentity.Identity) int

func guard(d decide) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			status := http.StatusUnauthorized
			if id, ok := FromContext(r.Context()); ok {
				status = d(r, id)
			}
			if status != http.StatusOK {
				http.Error(w, http.StatusText(status), status)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin rejects requests without a logged-in user with 401.
// It must run behind [Identity].
func RequireLogin() func(http.Handler) http.Handler {
	return guard(func(r *http.Request, id *goIdentity.Identity) int {
		loggedIn, err := id.IsLoggedIn(r.Context(), false, false)
		switch {
		case err != nil:
			return http.StatusServiceUnavailable
		case !loggedIn:
			return http.StatusUnauthorized
		}
		return http.StatusOK
	})
}

// RequireRole lets a request through when the identity holds needles
// (all of them, or any of them when or is set). Anonymous callers get 401,
// logged-in callers lacking the roles get 403.
func RequireRole(needles []permission.Needle, or, inherit bool) func(http.Handler) http.Handler {
	return guard(func(r *http.Request, id *goIdentity.Identity) int {
		allowed, err := id.HasRole(r.Context(), needles, or, inherit)
		switch {
		case err != nil:
			return http.StatusServiceUnavailable
		case allowed:
			return http.StatusOK
		}
		if loggedIn, _ := id.IsLoggedIn(r.Context(), false, false); !loggedIn {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	})
}
