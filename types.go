package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/session"
)

// Role is a named permission. Index is the canonical key everywhere.
type Role struct {
	ID    string `json:"id"`
	Index string `json:"index"`
	Label string `json:"label,omitempty"`
}

// Group owns a set of roles.
type Group struct {
	ID    string `json:"id"`
	Index string `json:"index"`
	Label string `json:"label,omitempty"`
	Roles []Role `json:"roles,omitempty"`
}

// Type owns a set of groups.
type Type struct {
	ID     string  `json:"id"`
	Index  string  `json:"index"`
	Label  string  `json:"label,omitempty"`
	Groups []Group `json:"groups,omitempty"`
}

// User is an account together with its eager-loaded role graph.
//
// An empty PasswordHash disables password login for the account.
type User struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Username       string  `json:"username,omitempty"`
	FirstName      string  `json:"firstName,omitempty"`
	LastName       string  `json:"lastName,omitempty"`
	PasswordHash   string  `json:"-"`
	Deleted        bool    `json:"deleted"`
	Roles          []Role  `json:"roles,omitempty"`
	Groups         []Group `json:"groups,omitempty"`
	Types          []Type  `json:"types,omitempty"`
	ResetTokenHash string  `json:"-"`
}

// PasswordLoginEnabled reports whether the account has a password hash.
func (u *User) PasswordLoginEnabled() bool {
	return u != nil && u.PasswordHash != ""
}

// OAuth2Link binds a provider account to a local user.
type OAuth2Link struct {
	Provider    string         `json:"provider"`
	ProviderID  string         `json:"providerId"`
	UserID      string         `json:"userId,omitempty"`
	AccessToken string         `json:"-"`
	Meta        map[string]any `json:"meta,omitempty"`
	Name        string         `json:"name,omitempty"`
	FirstName   string         `json:"firstName,omitempty"`
	LastName    string         `json:"lastName,omitempty"`
	Email       string         `json:"email,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// SessionStore persists session rows. FindByKey returns session.ErrNotFound
// (or ErrNotFound) when no row exists; Save reports field problems as a
// *validation.Error.
type SessionStore interface {
	FindByKey(ctx context.Context, key string) (*session.Session, error)
	Save(ctx context.Context, sess *session.Session) error
}

// UserStore is the user/role/OAuth2 gateway. Finders return ErrNotFound when
// nothing matches; FindUserByID and FindUserByLogin load the full role graph.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByLogin(ctx context.Context, emailOrUsername string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	SaveUser(ctx context.Context, user *User) error
	FindRolesByIndex(ctx context.Context, indices []string) ([]Role, error)
	FindOAuth2Link(ctx context.Context, provider, providerID string) (*OAuth2Link, error)
	SaveOAuth2Link(ctx context.Context, link *OAuth2Link) error
}

// ResetEmail is the payload handed to a Mailer for a password reset request.
type ResetEmail struct {
	To        string
	FirstName string
	LastName  string
	Email     string
	Link      string
}

// Mailer delivers outbound identity emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email ResetEmail) error
}

// Snapshot is the derived identity of one resolution: who is logged in and
// which roles, groups and types they hold. It is never persisted.
type Snapshot struct {
	LoggedIn   bool             `json:"loggedIn"`
	LoggedInAs bool             `json:"loggedInAs"`
	User       *User            `json:"user,omitempty"`
	UserAs     *User            `json:"userAs,omitempty"`
	Roles      map[string]Role  `json:"roles"`
	Groups     map[string]Group `json:"groups"`
	Types      map[string]Type  `json:"types"`
}
