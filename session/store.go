package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/validation"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session row exists for a key.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable is returned when the backing redis call fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store persists sessions in Redis, one string value per key.
//
// Save is a single SET, so concurrent writers to the same key resolve as
// last-writer-wins.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore returns a Store writing under prefix. A zero ttl keeps rows until
// they are overwritten.
func NewStore(redis redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "ais"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(sessionKey string) string {
	return s.prefix + ":" + sessionKey
}

// FindByKey loads the session stored under key.
func (s *Store) FindByKey(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, ErrNotFound
	}

	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if sess.Key != key {
		return nil, errors.New("session key mismatch")
	}

	if sess.SchemaVersion != schemaCurrent {
		if err := s.Save(ctx, sess); err != nil {
			return nil, err
		}
		sess.SchemaVersion = schemaCurrent
	}

	return sess, nil
}

// Save writes sess. Field problems are reported as a *validation.Error.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if err := Validate(sess); err != nil {
		return err
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sess.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks redis reachability and reports the round-trip time.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// Validate reports field problems of sess as a *validation.Error.
func Validate(sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}

	var msgs validation.Messages
	switch {
	case strings.TrimSpace(sess.Key) == "":
		msgs.Append("key", validation.TypePresenceOf, "key is required")
	case len(sess.Key) > maxFieldLen:
		msgs.Append("key", validation.TypeValidationFailed, "key is too long")
	}
	if sess.TokenHash == ([32]byte{}) {
		msgs.Append("token", validation.TypePresenceOf, "token is required")
	}
	if len(sess.UserID) > maxFieldLen {
		msgs.Append("userId", validation.TypeValidationFailed, "userId is too long")
	}
	if len(sess.AsUserID) > maxFieldLen {
		msgs.Append("asUserId", validation.TypeValidationFailed, "asUserId is too long")
	}
	if sess.AsUserID != "" && sess.UserID == "" {
		msgs.Append("asUserId", validation.TypeValidationFailed, "asUserId requires userId")
	}

	if msgs.Len() > 0 {
		return &validation.Error{Messages: msgs}
	}
	return nil
}
