package goIdentity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/credential"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/validation"
	"github.com/google/uuid"
)

const (
	userSelf = 0
	userAs   = 1
)

// Identity is the resolution context of one request. It caches the resolved
// session, users and snapshots until a mutation or an explicit refresh.
//
// An Identity must not be shared between requests or goroutines.
type Identity struct {
	engine *Engine
	req    credential.Request
	slot   credential.Slot
	origin string

	presented *credential.KeyToken

	sess       *session.Session
	sessLoaded bool

	users       [2]*User
	usersLoaded [2]bool

	snapshots map[bool]*Snapshot
}

// WithOrigin sets the issuer/audience used for claim tokens, unless the
// configuration pins Token.Origin.
func (i *Identity) WithOrigin(origin string) *Identity {
	if i.engine.config.Token.Origin == "" {
		i.origin = origin
	}
	return i
}

// Origin returns the issuer/audience used for claim tokens.
func (i *Identity) Origin() string {
	return i.origin
}

// KeyToken returns the presented key/token pair and the channel it came from.
// After CreateOrRefresh succeeds, the new pair is returned.
func (i *Identity) KeyToken() (credential.KeyToken, credential.Channel) {
	if i.presented != nil {
		return *i.presented, credential.ChannelSlot
	}
	return i.engine.extractor.Extract(i.req, i.slot)
}

// Session returns the session matching the presented pair, or nil when no
// pair is presented, no row exists or the token does not verify. Store
// outages are returned as errors.
func (i *Identity) Session(ctx context.Context, refresh bool) (*session.Session, error) {
	if i.sessLoaded && !refresh {
		return i.sess, nil
	}

	e := i.engine
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricResolveLatency, time.Since(start))
		}
	}()

	kt, _ := i.KeyToken()
	if kt.Empty() {
		i.setSession(nil)
		return nil, nil
	}

	sess, err := e.sessions.FindByKey(ctx, kt.Key)
	if err != nil {
		if isNotFound(err) {
			e.metricInc(MetricSessionRejected)
			i.setSession(nil)
			return nil, nil
		}
		return nil, err
	}

	if !internal.VerifyKeyToken(sess.TokenHash, kt.Key, kt.Token) {
		e.metricInc(MetricSessionRejected)
		i.setSession(nil)
		return nil, nil
	}

	e.metricInc(MetricSessionResolved)
	i.setSession(sess)
	return sess, nil
}

func (i *Identity) setSession(sess *session.Session) {
	i.sess = sess
	i.sessLoaded = true
	i.invalidateUsers()
}

func (i *Identity) invalidateUsers() {
	i.usersLoaded = [2]bool{}
	i.users = [2]*User{}
	clear(i.snapshots)
}

// User returns the logged-in user, or with as=true the impersonating user.
// nil means nobody is logged in (in that role).
func (i *Identity) User(ctx context.Context, as, refresh bool) (*User, error) {
	slot := userSelf
	if as {
		slot = userAs
	}
	if refresh {
		i.usersLoaded[slot] = false
		clear(i.snapshots)
	}
	if i.usersLoaded[slot] {
		return i.users[slot], nil
	}

	sess, err := i.Session(ctx, false)
	if err != nil {
		return nil, err
	}

	var id string
	if sess != nil {
		id = sess.UserID
		if as {
			id = sess.AsUserID
		}
	}

	var user *User
	if id != "" {
		user, err = i.engine.users.FindUserByID(ctx, id)
		if err != nil {
			if !isNotFound(err) {
				return nil, err
			}
			user = nil
		}
	}

	i.users[slot] = user
	i.usersLoaded[slot] = true
	return user, nil
}

// UserAs returns the impersonating user.
func (i *Identity) UserAs(ctx context.Context) (*User, error) {
	return i.User(ctx, true, false)
}

// UserID returns the id of User(as), or "".
func (i *Identity) UserID(ctx context.Context, as bool) (string, error) {
	user, err := i.User(ctx, as, false)
	if err != nil || user == nil {
		return "", err
	}
	return user.ID, nil
}

// IsLoggedIn reports whether User(as, refresh) resolves.
func (i *Identity) IsLoggedIn(ctx context.Context, as, refresh bool) (bool, error) {
	user, err := i.User(ctx, as, refresh)
	return user != nil, err
}

// IsLoggedInAs reports whether the session is impersonating.
func (i *Identity) IsLoggedInAs(ctx context.Context, refresh bool) (bool, error) {
	return i.IsLoggedIn(ctx, true, refresh)
}

// FindUser looks a user up by id, falling back to email or username.
func (i *Identity) FindUser(ctx context.Context, idOrLogin string) (*User, error) {
	value := strings.TrimSpace(idOrLogin)
	if value == "" {
		return nil, ErrNotFound
	}

	users := i.engine.users
	if looksLikeID(value) {
		user, err := users.FindUserByID(ctx, value)
		if err == nil || !isNotFound(err) {
			return user, err
		}
	}
	return users.FindUserByLogin(ctx, value)
}

func looksLikeID(value string) bool {
	if _, err := strconv.ParseUint(value, 10, 64); err == nil {
		return true
	}
	_, err := uuid.Parse(value)
	return err == nil
}

// Get reads the pair stored in the session slot.
func (i *Identity) Get() (credential.KeyToken, bool) {
	if i.slot == nil {
		return credential.KeyToken{}, false
	}
	raw, ok := i.slot.Get(i.engine.config.SlotName)
	if !ok || raw == "" {
		return credential.KeyToken{}, false
	}
	return i.engine.decodeSlot(raw)
}

// Set writes kt into the session slot in the configured mode.
func (i *Identity) Set(kt credential.KeyToken) error {
	if i.slot == nil {
		return errors.New("identity has no session slot")
	}
	raw, err := i.engine.encodeSlot(i.origin, kt)
	if err != nil {
		return err
	}
	return i.slot.Set(i.engine.config.SlotName, raw)
}

func (i *Identity) removeSlot() {
	if i.slot == nil {
		return
	}
	if err := i.slot.Remove(i.engine.config.SlotName); err != nil {
		i.engine.logger.Warn("session slot remove failed", "operation", "create_or_refresh", "error", err)
	}
}

func (i *Identity) slotStored() bool {
	if i.slot == nil {
		return false
	}
	_, ok := i.slot.Get(i.engine.config.SlotName)
	return ok
}

// CreateOrRefresh ensures the caller holds a persisted session. A presented
// pair that resolves is kept (with a new token when refresh is set); anything
// else gets a fresh key and token. On success the pair is written to the
// slot, on failure the slot is cleared.
func (i *Identity) CreateOrRefresh(ctx context.Context, refresh bool) RefreshResult {
	e := i.engine
	msgs := validation.Messages{}

	kt, _ := i.KeyToken()
	var current *session.Session
	if !kt.Empty() {
		sess, err := i.Session(ctx, true)
		if err != nil {
			e.unavailable(ctx, "create_or_refresh", err, &msgs)
			return RefreshResult{Stored: i.slotStored(), Messages: msgs}
		}
		current = sess
	}

	now := e.now()
	var next *session.Session
	if current != nil {
		next = current.Clone()
		if refresh {
			token, err := internal.NewSessionToken()
			if err != nil {
				e.unavailable(ctx, "create_or_refresh", err, &msgs)
				return RefreshResult{Stored: i.slotStored(), Messages: msgs}
			}
			kt.Token = token
		}
	} else {
		token, err := internal.NewSessionToken()
		if err != nil {
			e.unavailable(ctx, "create_or_refresh", err, &msgs)
			return RefreshResult{Stored: i.slotStored(), Messages: msgs}
		}
		kt = credential.KeyToken{Key: internal.NewSessionKey(), Token: token}
		next = &session.Session{Key: kt.Key, CreatedAt: now.Unix()}
	}

	next.TokenHash = internal.HashKeyToken(kt.Key, kt.Token)
	next.UpdatedAt = now.Unix()

	saved := true
	if err := e.sessions.Save(ctx, next); err != nil {
		saved = false
		e.persistFailed(ctx, "create_or_refresh", err, &msgs)
	}

	result := RefreshResult{
		Saved:     saved,
		Refreshed: saved && refresh,
		Validated: internal.VerifyKeyToken(next.TokenHash, kt.Key, kt.Token),
	}

	if saved {
		i.presented = &kt
		i.setSession(next)
		if err := i.Set(kt); err != nil && i.slot != nil {
			e.logger.WarnContext(ctx, "session slot write failed", "operation", "create_or_refresh", "error", err)
		}
		token, err := e.codec.Encode(i.origin, e.config.SlotName, kt.Map())
		if err != nil {
			e.logger.ErrorContext(ctx, "claim token encode failed", "operation", "create_or_refresh", "error", err)
		}
		result.Token = token

		if current == nil {
			e.metricInc(MetricSessionCreated)
			e.emitAudit(ctx, auditEventSessionCreated, true, next, nil, nil)
		} else if refresh {
			e.metricInc(MetricSessionRefreshed)
			e.emitAudit(ctx, auditEventSessionRefreshed, true, next, nil, nil)
		}
	} else {
		i.removeSlot()
		e.metricInc(MetricSessionSaveFailure)
		e.emitAudit(ctx, auditEventSessionFailure, false, next, msgs, nil)
	}

	result.Stored = i.slotStored()
	result.Messages = msgs
	return result
}

// commitSession saves next and, on success, makes it the cached session.
func (i *Identity) commitSession(ctx context.Context, operation string, next *session.Session, msgs *validation.Messages) bool {
	next.UpdatedAt = i.engine.now().Unix()
	if err := i.engine.sessions.Save(ctx, next); err != nil {
		i.engine.persistFailed(ctx, operation, err, msgs)
		return false
	}
	i.setSession(next)
	return true
}

func (i *Identity) authResult(ctx context.Context, saved bool, msgs validation.Messages) AuthResult {
	loggedIn, err := i.IsLoggedIn(ctx, false, true)
	if err != nil {
		i.engine.logger.WarnContext(ctx, "identity refresh failed", "operation", "auth_result", "error", err)
	}
	loggedInAs, err := i.IsLoggedIn(ctx, true, true)
	if err != nil {
		i.engine.logger.WarnContext(ctx, "identity refresh failed", "operation", "auth_result", "error", err)
	}
	return AuthResult{
		Saved:      saved,
		LoggedIn:   loggedIn,
		LoggedInAs: loggedInAs,
		Messages:   msgs,
	}
}
