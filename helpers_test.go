package goIdentity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/goIdentity/credential"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// fakeUsers is an in-memory UserStore with failure injection.
type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]User
	roles   map[string]Role
	links   map[string]OAuth2Link
	findErr error
	saveErr error

	saveCalls     int
	roleFetches   [][]string
	findByIDCalls int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users: make(map[string]User),
		roles: make(map[string]Role),
		links: make(map[string]OAuth2Link),
	}
}

func (f *fakeUsers) put(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUsers) get(id string) User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

func (f *fakeUsers) FindUserByID(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findByIDCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) FindUserByLogin(_ context.Context, login string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, login) || u.Username == login {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUsers) FindUserByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUsers) SaveUser(_ context.Context, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUsers) FindRolesByIndex(_ context.Context, indices []string) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleFetches = append(f.roleFetches, append([]string(nil), indices...))
	var out []Role
	for _, index := range indices {
		if r, ok := f.roles[index]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeUsers) FindOAuth2Link(_ context.Context, provider, providerID string) (*OAuth2Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[provider+"/"+providerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (f *fakeUsers) SaveOAuth2Link(_ context.Context, link *OAuth2Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.links[link.Provider+"/"+link.ProviderID] = *link
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []ResetEmail
	err  error
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email ResetEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *recordingMailer) last() (ResetEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ResetEmail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type testEnv struct {
	engine *Engine
	users  *fakeUsers
	mailer *recordingMailer
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

// testConfig is DefaultConfig with the cheapest argon2id parameters accepted.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutators ...func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWithSink(t, nil, mutators...)
}

func newTestEnvWithSink(t *testing.T, sink AuditSink, mutators ...func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	for _, mutate := range mutators {
		mutate(&cfg)
	}

	env := &testEnv{
		users:  newFakeUsers(),
		mailer: &recordingMailer{},
		mr:     mr,
		rdb:    rdb,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithMailer(env.mailer).
		WithAuditSink(sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) hash(t *testing.T, pass string) string {
	t.Helper()
	h, err := env.engine.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return h
}

// addUser stores a user with testPassword and the given role indices.
func (env *testEnv) addUser(t *testing.T, id, email string, roles ...string) User {
	t.Helper()
	u := User{ID: id, Email: email, PasswordHash: env.hash(t, testPassword)}
	for _, index := range roles {
		u.Roles = append(u.Roles, Role{ID: "r-" + index, Index: index})
	}
	env.users.put(u)
	return u
}

// newSession creates a persisted session in a fresh memory slot.
func (env *testEnv) newSession(t *testing.T) *credential.MemorySlot {
	t.Helper()
	slot := credential.NewMemorySlot()
	res := env.engine.NewIdentity(nil, slot).CreateOrRefresh(context.Background(), false)
	if !res.Saved {
		t.Fatalf("CreateOrRefresh failed: %+v", res.Messages)
	}
	return slot
}

// loggedIn returns a slot whose session is logged in as email.
func (env *testEnv) loggedIn(t *testing.T, email string) *credential.MemorySlot {
	t.Helper()
	slot := env.newSession(t)
	res := env.engine.NewIdentity(nil, slot).Login(context.Background(), LoginParams{Email: email, Password: testPassword})
	if !res.Saved || !res.LoggedIn {
		t.Fatalf("login as %s failed: %+v", email, res)
	}
	return slot
}

var errStoreDown = errors.New("store down")
