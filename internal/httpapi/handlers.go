package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/oauth2login"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/go-chi/chi/v5"
)

const oauth2StateSlot = "oauth2_state"

var gateCodes = map[int]string{
	http.StatusUnauthorized:       "UNAUTHORIZED",
	http.StatusForbidden:          "FORBIDDEN",
	http.StatusServiceUnavailable: "UNAVAILABLE",
}

type identityResponse struct {
	Snapshot *goIdentity.Snapshot `json:"snapshot"`
	ACLRoles []string             `json:"aclRoles"`
}

func anyRole(indices []string) []permission.Needle {
	return permission.Roles(indices...)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "operation", "healthz", "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) identityOrFail(w http.ResponseWriter, r *http.Request) (*goIdentity.Identity, bool) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "identity unavailable")
	}
	return id, ok
}

func (h *handler) createOrRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	refresh := r.URL.Query().Get("refresh") == "1"
	writeJSON(w, http.StatusOK, id.CreateOrRefresh(r.Context(), refresh))
}

func (h *handler) identity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	inherit := r.URL.Query().Get("inherit") != "0"

	snap, err := id.Snapshot(r.Context(), inherit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "snapshot failed", "operation", "identity", "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable")
		return
	}
	acl, err := id.ACLRoles(r.Context(), inherit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{Snapshot: snap, ACLRoles: acl})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	var p goIdentity.LoginParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, id.Login(r.Context(), p))
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, id.Logout(r.Context()))
}

func (h *handler) loginAs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	var p goIdentity.LoginAsParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if status := h.loginAsGate(r, id, p.UserID); status != http.StatusOK {
		writeError(w, status, gateCodes[status], strings.ToLower(http.StatusText(status)))
		return
	}
	writeJSON(w, http.StatusOK, id.LoginAs(r.Context(), p))
}

// loginAsGate applies LoginAsRoles. Targeting the current user is left to
// the engine, which treats it as LogoutAs.
func (h *handler) loginAsGate(r *http.Request, id *goIdentity.Identity, target string) int {
	if len(h.loginAsRoles) == 0 {
		return http.StatusOK
	}
	ctx := r.Context()
	current, err := id.UserID(ctx, false)
	if err != nil {
		return http.StatusServiceUnavailable
	}
	if current == "" {
		return http.StatusUnauthorized
	}
	if strings.TrimSpace(target) == current {
		return http.StatusOK
	}
	allowed, err := id.HasRole(ctx, h.loginAsRoles, true, true)
	switch {
	case err != nil:
		return http.StatusServiceUnavailable
	case !allowed:
		return http.StatusForbidden
	}
	return http.StatusOK
}

func (h *handler) logoutAs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, id.LogoutAs(r.Context()))
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}
	var p goIdentity.ResetParams
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, id.Reset(r.Context(), p))
}

func (h *handler) provider(w http.ResponseWriter, r *http.Request) (*oauth2login.Provider, bool) {
	if h.cookies == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "oauth2 login is not configured")
		return nil, false
	}
	p, err := h.providers.Lookup(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown provider")
		return nil, false
	}
	return p, true
}

func (h *handler) oauth2Start(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	state, err := internal.NewSessionToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	if err := h.cookies.Slot(w, r).Set(oauth2StateSlot, state); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// takeState reads the OAuth2 state from slot and removes it.
func (h *handler) takeState(ctx context.Context, slot credential.Slot) (string, bool) {
	state, found := slot.Get(oauth2StateSlot)
	if err := slot.Remove(oauth2StateSlot); err != nil {
		h.logger.WarnContext(ctx, "oauth2 state remove failed", "operation", "oauth2_callback", "error", err)
	}
	return state, found
}

func (h *handler) oauth2Callback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	id, ok := h.identityOrFail(w, r)
	if !ok {
		return
	}

	want, found := h.takeState(r.Context(), h.cookies.Slot(w, r))
	if !found || want == "" || r.URL.Query().Get("state") != want {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "oauth2 state mismatch")
		return
	}

	params, err := p.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		status, code := http.StatusBadGateway, "PROVIDER_ERROR"
		if errors.Is(err, oauth2login.ErrMissingCode) {
			status, code = http.StatusBadRequest, "BAD_REQUEST"
		}
		h.logger.WarnContext(r.Context(), "oauth2 exchange failed",
			"operation", "oauth2_callback",
			"provider", p.Name,
			"error", err,
		)
		writeError(w, status, code, "oauth2 login failed")
		return
	}
	writeJSON(w, http.StatusOK, id.OAuth2(r.Context(), params))
}
