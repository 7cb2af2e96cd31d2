package goIdentity

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/validation"
)

// LoginParams are the credentials of a password login. Email takes precedence
// over Username; either one is looked up against both columns.
type LoginParams struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginAsParams names the user to impersonate.
type LoginAsParams struct {
	UserID string `json:"userId"`
}

// OAuth2Params is the outcome of a provider callback.
type OAuth2Params struct {
	Provider    string         `json:"provider"`
	ProviderID  string         `json:"providerId"`
	AccessToken string         `json:"accessToken"`
	Meta        map[string]any `json:"meta"`
}

// Login authenticates a user by password and binds it to the session. A
// failed attempt detaches any user from the session.
func (i *Identity) Login(ctx context.Context, p LoginParams) AuthResult {
	e := i.engine
	msgs := validation.Messages{}

	sess, err := i.Session(ctx, false)
	if err != nil {
		e.unavailable(ctx, "login", err, &msgs)
		return i.authResult(ctx, false, msgs)
	}

	identifier := strings.TrimSpace(p.Email)
	if identifier == "" {
		identifier = strings.TrimSpace(p.Username)
	}
	validation.Presence(&msgs, map[string]string{"email": identifier, "password": p.Password}, "email", "password")
	if sess == nil {
		msgs.Append("session", validation.TypeSessionRequired, "A session is required")
	}
	if msgs.Len() > 0 {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, sess, msgs, nil)
		return i.authResult(ctx, false, msgs)
	}

	ip := ClientIP(ctx)
	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, identifier, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				msgs.Append("email", validation.TypeRateLimited, "Too many login attempts")
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, sess, msgs, nil)
				return i.authResult(ctx, false, msgs)
			}
			e.logger.WarnContext(ctx, "login throttle check failed", "operation", "login", "error", err)
		}
	}

	user, ok := i.authenticate(ctx, identifier, p.Password, &msgs)
	if !ok {
		return i.authResult(ctx, false, msgs)
	}

	next := sess.Clone()
	next.UserID = ""
	next.AsUserID = ""
	if user != nil {
		next.UserID = user.ID
	}
	saved := i.commitSession(ctx, "login", next, &msgs)

	if user != nil {
		if e.limiter != nil {
			if err := e.limiter.ResetLogin(ctx, identifier, ip); err != nil {
				e.logger.WarnContext(ctx, "login throttle reset failed", "operation", "login", "error", err)
			}
		}
		i.upgradePassword(ctx, user, p.Password)
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, saved, next, msgs, nil)
	} else {
		if e.limiter != nil {
			if err := e.limiter.IncrementLogin(ctx, identifier, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				e.logger.WarnContext(ctx, "login throttle increment failed", "operation", "login", "error", err)
			}
		}
		if msgs.Has(validation.TypeLoginForbidden) {
			e.metricInc(MetricLoginForbidden)
		} else {
			e.metricInc(MetricLoginFailure)
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, next, msgs, nil)
	}

	return i.authResult(ctx, saved, msgs)
}

// authenticate resolves the login identifier and checks the password. It
// returns (nil, true) with a LoginFailed or LoginForbidden message on a
// rejected attempt and ok=false when the user store could not be reached.
func (i *Identity) authenticate(ctx context.Context, identifier, pass string, msgs *validation.Messages) (*User, bool) {
	e := i.engine

	user, err := e.users.FindUserByLogin(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			msgs.Append("email", validation.TypeLoginFailed, "Login Failed")
			return nil, true
		}
		e.unavailable(ctx, "login", err, msgs)
		return nil, false
	}

	if !user.PasswordLoginEnabled() {
		msgs.Append("password", validation.TypeLoginFailed, "Password Login Disabled")
		return nil, true
	}

	match, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "password verify failed", "operation", "login", "outcome", "rejected", "error", err)
	}
	if err != nil || !match {
		msgs.Append("email", validation.TypeLoginFailed, "Login Failed")
		return nil, true
	}

	if user.Deleted {
		msgs.Append("password", validation.TypeLoginForbidden, "Login Forbidden")
		return nil, true
	}

	return user, true
}

// upgradePassword re-hashes a verified password stored under outdated
// parameters. Failures are logged and never affect the login.
func (i *Identity) upgradePassword(ctx context.Context, user *User, pass string) {
	e := i.engine
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		e.logger.WarnContext(ctx, "password upgrade skipped", "operation", "login", "error", err)
		return
	}
	upgraded := *user
	upgraded.PasswordHash = hash
	if err := e.users.SaveUser(ctx, &upgraded); err != nil {
		e.logger.WarnContext(ctx, "password upgrade failed", "operation", "login", "outcome", "unsaved", "error", err)
		return
	}
	user.PasswordHash = hash
	e.metricInc(MetricPasswordUpgraded)
	e.emitAudit(ctx, auditEventPasswordUpgraded, true, &session.Session{UserID: user.ID}, nil, nil)
}

// Logout detaches the user and any impersonation from the session.
func (i *Identity) Logout(ctx context.Context) AuthResult {
	e := i.engine
	msgs := validation.Messages{}

	sess, err := i.Session(ctx, false)
	if err != nil {
		e.unavailable(ctx, "logout", err, &msgs)
		return i.authResult(ctx, false, msgs)
	}
	if sess == nil {
		msgs.Append("session", validation.TypeSessionRequired, "A session is required")
		return i.authResult(ctx, false, msgs)
	}

	next := sess.Clone()
	next.UserID = ""
	next.AsUserID = ""
	saved := i.commitSession(ctx, "logout", next, &msgs)

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, saved, sess, msgs, nil)
	return i.authResult(ctx, saved, msgs)
}

// LoginAs starts impersonating p.UserID. The caller must hold one of the
// configured impersonation roles. Targeting the current user is a LogoutAs.
func (i *Identity) LoginAs(ctx context.Context, p LoginAsParams) AuthResult {
	e := i.engine
	msgs := validation.Messages{}

	sess, err := i.Session(ctx, false)
	if err != nil {
		e.unavailable(ctx, "login_as", err, &msgs)
		return i.authResult(ctx, false, msgs)
	}

	target := strings.TrimSpace(p.UserID)
	validation.Presence(&msgs, map[string]string{"userId": target}, "userId")
	if sess == nil {
		msgs.Append("session", validation.TypeSessionRequired, "A session is required")
	}
	if msgs.Len() > 0 {
		e.emitAudit(ctx, auditEventLoginAsFailure, false, sess, msgs, nil)
		return i.authResult(ctx, false, msgs)
	}

	if !sess.LoggedIn() {
		msgs.Append("userId", validation.TypeForbidden, "Forbidden")
		e.metricInc(MetricLoginAsDenied)
		e.emitAudit(ctx, auditEventLoginAsFailure, false, sess, msgs, nil)
		return i.authResult(ctx, false, msgs)
	}

	if target == sess.UserID {
		return i.LogoutAs(ctx)
	}

	if _, err := e.users.FindUserByID(ctx, target); err != nil {
		if isNotFound(err) {
			msgs.Append("userId", validation.TypeNotFound, "User Not Found")
		} else {
			e.unavailable(ctx, "login_as", err, &msgs)
		}
		e.emitAudit(ctx, auditEventLoginAsFailure, false, sess, msgs, nil)
		return i.authResult(ctx, false, msgs)
	}

	allowed, err := i.HasRole(ctx, permission.Roles(e.config.Impersonation.AllowedRoles...), true, true)
	if err != nil {
		e.unavailable(ctx, "login_as", err, &msgs)
		return i.authResult(ctx, false, msgs)
	}
	if !allowed {
		msgs.Append("userId", validation.TypeForbidden, "Forbidden")
		e.metricInc(MetricLoginAsDenied)
		e.emitAudit(ctx, auditEventLoginAsFailure, false, sess, msgs, func() map[string]string {
			return map[string]string{"target_user_id": target}
		})
		return i.authResult(ctx, false, msgs)
	}

	next := sess.Clone()
	next.AsUserID = sess.UserID
	next.UserID = target
	saved := i.commitSession(ctx, "login_as", next, &msgs)

	e.metricInc(MetricLoginAsSuccess)
	e.emitAudit(ctx, auditEventLoginAsSuccess, saved, next, msgs, nil)
	return i.authResult(ctx, saved, msgs)
}

// LogoutAs ends an impersonation, restoring the original user. Without an
// active impersonation the session is saved unchanged.
func (i *Identity) LogoutAs(ctx context.Context) AuthResult {
	e := i.engine
	msgs := validation.Messages{}

	sess, err := i.Session(ctx, false)
	if err != nil {
		e.unavailable(ctx, "logout_as", err, &msgs)
		return i.authResult(ctx, false, msgs)
	}
	if sess == nil {
		msgs.Append("session", validation.TypeSessionRequired, "A session is required")
		return i.authResult(ctx, false, msgs)
	}

	next := sess.Clone()
	if next.Impersonating() {
		next.UserID = next.AsUserID
		next.AsUserID = ""
	}
	saved := i.commitSession(ctx, "logout_as", next, &msgs)

	e.metricInc(MetricLogoutAs)
	e.emitAudit(ctx, auditEventLogoutAs, saved, next, msgs, nil)
	return i.authResult(ctx, saved, msgs)
}

// OAuth2 records a provider login and binds the linked user to the session.
// A link without a user is attached to the current session user first.
func (i *Identity) OAuth2(ctx context.Context, p OAuth2Params) AuthResult {
	e := i.engine
	msgs := validation.Messages{}

	provider := strings.TrimSpace(p.Provider)
	providerID := strings.TrimSpace(p.ProviderID)
	validation.Presence(&msgs, map[string]string{"provider": provider, "providerId": providerID}, "provider", "providerId")
	if msgs.Len() > 0 {
		return i.authResult(ctx, false, msgs)
	}

	sess, err := i.Session(ctx, false)
	if err != nil {
		e.unavailable(ctx, "oauth2", err, &msgs)
		return i.authResult(ctx, false, msgs)
	}

	now := e.now().UTC()
	link, err := e.users.FindOAuth2Link(ctx, provider, providerID)
	if err != nil {
		if !isNotFound(err) {
			e.unavailable(ctx, "oauth2", err, &msgs)
			return i.authResult(ctx, false, msgs)
		}
		link = &OAuth2Link{Provider: provider, ProviderID: providerID, CreatedAt: now}
	}

	link.AccessToken = p.AccessToken
	link.Meta = p.Meta
	link.Name = metaString(p.Meta, "name")
	link.FirstName = metaString(p.Meta, "first_name")
	link.LastName = metaString(p.Meta, "last_name")
	link.Email = metaString(p.Meta, "email")
	link.UpdatedAt = now

	if link.UserID == "" && sess.LoggedIn() {
		link.UserID = sess.UserID
	}

	saved := true
	if err := e.users.SaveOAuth2Link(ctx, link); err != nil {
		saved = false
		e.persistFailed(ctx, "oauth2", err, &msgs)
	}

	if sess == nil {
		msgs.Append("session", validation.TypeSessionRequired, "A session is required")
	}
	if link.UserID == "" {
		msgs.Append("userId", validation.TypeValidationFailed, "userId is required")
	}

	if saved && msgs.Len() == 0 {
		user, err := e.users.FindUserByID(ctx, link.UserID)
		switch {
		case err != nil && !isNotFound(err):
			e.unavailable(ctx, "oauth2", err, &msgs)
			return i.authResult(ctx, false, msgs)
		case err != nil:
			user = nil
			msgs.Append("id", validation.TypeLoginFailed, "Login Failed")
		case user.Deleted:
			user = nil
			msgs.Append("password", validation.TypeLoginForbidden, "Login Forbidden")
		}

		next := sess.Clone()
		next.UserID = ""
		next.AsUserID = ""
		if user != nil {
			next.UserID = user.ID
		}
		saved = i.commitSession(ctx, "oauth2", next, &msgs)
		sess = next
	}

	meta := func() map[string]string {
		return map[string]string{"provider": provider}
	}
	if saved && msgs.Len() == 0 {
		e.metricInc(MetricOAuth2Success)
		e.emitAudit(ctx, auditEventOAuth2Success, true, sess, msgs, meta)
	} else {
		e.metricInc(MetricOAuth2Failure)
		e.emitAudit(ctx, auditEventOAuth2Failure, false, sess, msgs, meta)
	}

	return i.authResult(ctx, saved, msgs)
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	v, _ := meta[key].(string)
	return v
}
