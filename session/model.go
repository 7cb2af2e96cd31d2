package session

// Session is one server-side session row.
//
// TokenHash is the SHA-256 digest of Key+rawToken; the raw token is never stored.
// An empty UserID means logged out. AsUserID is set while impersonating and
// holds the original (impersonating) user.
type Session struct {
	SchemaVersion uint8

	Key       string
	TokenHash [32]byte
	UserID    string
	AsUserID  string

	CreatedAt int64
	UpdatedAt int64
}

// LoggedIn reports whether a user is attached to the session.
func (s *Session) LoggedIn() bool {
	return s != nil && s.UserID != ""
}

// Impersonating reports whether the session is acting as another user.
func (s *Session) Impersonating() bool {
	return s != nil && s.UserID != "" && s.AsUserID != ""
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
