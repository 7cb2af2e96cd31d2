package goIdentity

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/validation"
)

// ResetParams drive both halves of a password reset. Without Token a reset
// link is mailed; with Token the new password is set.
type ResetParams struct {
	Email           string `json:"email"`
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Reset requests or completes a password reset. An unknown email reports
// success so callers cannot tell which accounts exist.
func (i *Identity) Reset(ctx context.Context, p ResetParams) ResetResult {
	e := i.engine
	msgs := validation.Messages{}

	sess, err := i.Session(ctx, false)
	if err != nil {
		e.unavailable(ctx, "reset", err, &msgs)
		return ResetResult{Messages: msgs}
	}

	email := strings.TrimSpace(p.Email)
	validation.Presence(&msgs, map[string]string{"email": email}, "email")
	if sess == nil {
		msgs.Append("session", validation.TypeSessionRequired, "A session is required")
		return ResetResult{Messages: msgs}
	}
	if msgs.Len() > 0 {
		return ResetResult{Messages: msgs}
	}

	if p.Token == "" && e.limiter != nil {
		if err := e.limiter.CheckReset(ctx, email); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				msgs.Append("email", validation.TypeRateLimited, "Too many reset requests")
				e.metricInc(MetricPasswordResetRateLimited)
				return ResetResult{Messages: msgs}
			}
			e.logger.WarnContext(ctx, "reset throttle check failed", "operation", "reset", "error", err)
		}
	}

	user, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			if p.Token == "" {
				e.metricInc(MetricPasswordResetRequest)
			}
			return ResetResult{Saved: true, Sent: true, Messages: msgs}
		}
		e.unavailable(ctx, "reset", err, &msgs)
		return ResetResult{Messages: msgs}
	}

	if p.Token == "" {
		return i.requestReset(ctx, user, msgs)
	}
	return i.confirmReset(ctx, user, p, msgs)
}

func (i *Identity) requestReset(ctx context.Context, user *User, msgs validation.Messages) ResetResult {
	e := i.engine
	e.metricInc(MetricPasswordResetRequest)

	raw, hash, err := internal.NewResetToken()
	if err != nil {
		e.unavailable(ctx, "reset", err, &msgs)
		return ResetResult{Messages: msgs}
	}

	updated := *user
	updated.ResetTokenHash = hash
	if err := e.users.SaveUser(ctx, &updated); err != nil {
		e.persistFailed(ctx, "reset", err, &msgs)
		return ResetResult{Messages: msgs}
	}

	sent := false
	switch {
	case e.mailer == nil:
		e.logger.WarnContext(ctx, "reset email not sent", "operation", "reset", "outcome", "no_mailer")
	default:
		err := e.mailer.SendPasswordReset(ctx, ResetEmail{
			To:        user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			Link:      e.config.Reset.LinkBase + raw,
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "reset email not sent", "operation", "reset", "outcome", "mail_failed", "error", err)
			msgs.Append("email", validation.TypeUnavailable, "reset email could not be sent")
		} else {
			sent = true
		}
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, sent, &session.Session{UserID: user.ID}, msgs, nil)
	return ResetResult{Saved: true, Sent: sent, Messages: msgs}
}

func (i *Identity) confirmReset(ctx context.Context, user *User, p ResetParams, msgs validation.Messages) ResetResult {
	e := i.engine

	validation.Presence(&msgs, map[string]string{
		"password":        p.Password,
		"passwordConfirm": p.PasswordConfirm,
	}, "password", "passwordConfirm")
	if p.Password != p.PasswordConfirm {
		msgs.Append("password", validation.TypeConfirmation, "password does not match passwordConfirm")
	}

	if !internal.VerifyResetToken(user.ResetTokenHash, p.Token) {
		msgs.Append("token", validation.TypeNotValid, "invalid token")
	}

	saved := false
	if msgs.Len() == 0 {
		hash, err := e.hasher.Hash(p.Password)
		if err != nil {
			msgs.Append("password", validation.TypeValidationFailed, err.Error())
		} else {
			updated := *user
			updated.PasswordHash = hash
			updated.ResetTokenHash = ""
			if err := e.users.SaveUser(ctx, &updated); err != nil {
				e.persistFailed(ctx, "reset", err, &msgs)
			} else {
				saved = true
			}
		}
	}

	if saved {
		e.metricInc(MetricPasswordResetConfirmSuccess)
	} else {
		e.metricInc(MetricPasswordResetConfirmFailure)
	}
	e.emitAudit(ctx, auditEventPasswordResetConfirm, saved, &session.Session{UserID: user.ID}, msgs, nil)

	return ResetResult{Saved: saved, Messages: msgs}
}
