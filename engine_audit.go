package goIdentity

import (
	"context"
	"strings"

	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/validation"
)

const (
	auditEventSessionCreated       = "session_created"
	auditEventSessionRefreshed     = "session_refreshed"
	auditEventSessionFailure       = "session_failure"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventLogout               = "logout"
	auditEventLoginAsSuccess       = "login_as_success"
	auditEventLoginAsFailure       = "login_as_failure"
	auditEventLogoutAs             = "logout_as"
	auditEventOAuth2Success        = "oauth2_success"
	auditEventOAuth2Failure        = "oauth2_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventPasswordUpgraded     = "password_upgraded"
)

type clientIPKey struct{}

// WithClientIP returns ctx carrying the caller's address, used for per-IP
// login throttling and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address stored by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sess *session.Session,
	msgs validation.Messages,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		IP:        ClientIP(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if sess != nil {
		event.SessionKey = sess.Key
		event.UserID = sess.UserID
		event.AsUserID = sess.AsUserID
	}
	if code := auditErrorCode(msgs); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode renders the first message type in snake case.
func auditErrorCode(msgs validation.Messages) string {
	if len(msgs) == 0 {
		return ""
	}
	name := string(msgs[0].Type)
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
