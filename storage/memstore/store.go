// Package memstore keeps users, roles, OAuth2 links and sessions in memory.
// It backs development servers and tests; nothing survives a restart.
package memstore

import (
	"context"
	"strconv"
	"strings"
	"sync"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/validation"
)

// Store implements goIdentity.UserStore. Values are copied on the way in and
// out, so callers never share memory with the store.
type Store struct {
	mu     sync.RWMutex
	users  map[string]goIdentity.User
	roles  map[string]goIdentity.Role
	links  map[string]goIdentity.OAuth2Link
	nextID int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users: make(map[string]goIdentity.User),
		roles: make(map[string]goIdentity.Role),
		links: make(map[string]goIdentity.OAuth2Link),
	}
}

// PutRole registers a role entity, used when expanding inherited roles.
func (s *Store) PutRole(roles ...goIdentity.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		s.roles[r.Index] = r
	}
}

// PutUser stores u, assigning a numeric id when u.ID is empty, and returns
// the stored copy. Roles found on u are registered as well.
func (s *Store) PutUser(u goIdentity.User) goIdentity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.allocID()
	}
	for _, r := range u.Roles {
		if _, ok := s.roles[r.Index]; !ok {
			s.roles[r.Index] = r
		}
	}
	s.users[u.ID] = cloneUser(u)
	return cloneUser(u)
}

func (s *Store) allocID() string {
	for {
		s.nextID++
		id := strconv.Itoa(s.nextID)
		if _, taken := s.users[id]; !taken {
			return id
		}
	}
}

func (s *Store) FindUserByID(_ context.Context, id string) (*goIdentity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *Store) FindUserByLogin(_ context.Context, emailOrUsername string) (*goIdentity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, emailOrUsername) || (u.Username != "" && u.Username == emailOrUsername) {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, goIdentity.ErrNotFound
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*goIdentity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, goIdentity.ErrNotFound
}

// SaveUser upserts user. Email and username must be unique.
func (s *Store) SaveUser(_ context.Context, user *goIdentity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs validation.Messages
	if strings.TrimSpace(user.Email) == "" {
		msgs.Append("email", validation.TypePresenceOf, "email is required")
	}
	for id, other := range s.users {
		if id == user.ID {
			continue
		}
		if user.Email != "" && strings.EqualFold(other.Email, user.Email) {
			msgs.Append("email", validation.TypeUniqueness, "email already exists")
		}
		if user.Username != "" && other.Username == user.Username {
			msgs.Append("username", validation.TypeUniqueness, "username already exists")
		}
	}
	if msgs.Len() > 0 {
		return &validation.Error{Messages: msgs}
	}

	if user.ID == "" {
		user.ID = s.allocID()
	}
	s.users[user.ID] = cloneUser(*user)
	return nil
}

// FindRolesByIndex returns the registered roles among indices; unknown
// indices are skipped.
func (s *Store) FindRolesByIndex(_ context.Context, indices []string) ([]goIdentity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]goIdentity.Role, 0, len(indices))
	for _, index := range indices {
		if r, ok := s.roles[index]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func linkKey(provider, providerID string) string {
	return provider + "\x00" + providerID
}

func (s *Store) FindOAuth2Link(_ context.Context, provider, providerID string) (*goIdentity.OAuth2Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[linkKey(provider, providerID)]
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	out := cloneLink(link)
	return &out, nil
}

func (s *Store) SaveOAuth2Link(_ context.Context, link *goIdentity.OAuth2Link) error {
	var msgs validation.Messages
	validation.Presence(&msgs, map[string]string{
		"provider":   link.Provider,
		"providerId": link.ProviderID,
	}, "provider", "providerId")
	if msgs.Len() > 0 {
		return &validation.Error{Messages: msgs}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[linkKey(link.Provider, link.ProviderID)] = cloneLink(*link)
	return nil
}

// Sessions implements goIdentity.SessionStore in memory.
type Sessions struct {
	mu   sync.RWMutex
	rows map[string]session.Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{rows: make(map[string]session.Session)}
}

func (s *Sessions) FindByKey(_ context.Context, key string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &row, nil
}

func (s *Sessions) Save(_ context.Context, sess *session.Session) error {
	if err := session.Validate(sess); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sess.Key] = *sess
	return nil
}

// Len returns the number of stored sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func cloneUser(u goIdentity.User) goIdentity.User {
	out := u
	out.Roles = append([]goIdentity.Role(nil), u.Roles...)
	out.Groups = cloneGroups(u.Groups)
	if u.Types != nil {
		out.Types = make([]goIdentity.Type, len(u.Types))
		for i, t := range u.Types {
			t.Groups = cloneGroups(t.Groups)
			out.Types[i] = t
		}
	}
	return out
}

func cloneGroups(in []goIdentity.Group) []goIdentity.Group {
	if in == nil {
		return nil
	}
	out := make([]goIdentity.Group, len(in))
	for i, g := range in {
		g.Roles = append([]goIdentity.Role(nil), g.Roles...)
		out[i] = g
	}
	return out
}

func cloneLink(l goIdentity.OAuth2Link) goIdentity.OAuth2Link {
	out := l
	if l.Meta != nil {
		out.Meta = make(map[string]any, len(l.Meta))
		for k, v := range l.Meta {
			out.Meta[k] = v
		}
	}
	return out
}
