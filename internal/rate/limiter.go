package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports a spent attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter store failures.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)

// hit increments a counter and starts its window on the first increment,
// in one round trip.
var hit = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Config holds limiter budgets.
type Config struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxResetRequests      int
	ResetCooldownDuration time.Duration
}

// window is one fixed-window budget under a key prefix.
type window struct {
	prefix string
	max    int
	ttl    time.Duration
}

func (w window) key(subject string) string {
	return w.prefix + subject
}

// Limiter keeps failed-login and reset-request budgets in Redis counters.
type Limiter struct {
	redis    redis.UniversalClient
	config   Config
	loginID  window
	loginIP  window
	resetReq window
}

// New returns a Limiter over redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:    redisClient,
		config:   cfg,
		loginID:  window{prefix: "il:", max: cfg.MaxLoginAttempts, ttl: cfg.LoginCooldownDuration},
		loginIP:  window{prefix: "ili:", max: cfg.MaxLoginAttempts, ttl: cfg.LoginCooldownDuration},
		resetReq: window{prefix: "ir:", max: cfg.MaxResetRequests, ttl: cfg.ResetCooldownDuration},
	}
}

// loginWindows returns the windows a login for ip is counted against.
func (l *Limiter) loginWindows(identifier, ip string) map[window]string {
	out := map[window]string{l.loginID: normalize(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		out[l.loginIP] = ip
	}
	return out
}

// CheckLogin returns ErrRateLimited when the identifier, or the IP when
// per-IP throttling is on, has no failed attempts left.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableLoginThrottle {
		return nil
	}
	for w, subject := range l.loginWindows(identifier, ip) {
		count, err := l.count(ctx, w.key(subject))
		if err != nil {
			return err
		}
		if count >= w.max {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records a failed attempt. It returns ErrRateLimited when
// this attempt spent the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableLoginThrottle {
		return nil
	}
	var limited bool
	for w, subject := range l.loginWindows(identifier, ip) {
		count, err := l.hit(ctx, w, subject)
		if err != nil {
			return err
		}
		if count > w.max {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableLoginThrottle {
		return nil
	}
	var keys []string
	for w, subject := range l.loginWindows(identifier, ip) {
		keys = append(keys, w.key(subject))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckReset counts a reset request for email and returns ErrRateLimited
// past the budget. Known and unknown emails are counted alike.
func (l *Limiter) CheckReset(ctx context.Context, email string) error {
	if l.resetReq.max <= 0 {
		return nil
	}
	count, err := l.hit(ctx, l.resetReq, normalize(email))
	if err != nil {
		return err
	}
	if count > l.resetReq.max {
		return ErrRateLimited
	}
	return nil
}

// LoginAttempts returns the failed attempts counted for identifier in the
// current window.
func (l *Limiter) LoginAttempts(ctx context.Context, identifier string) (int, error) {
	return l.count(ctx, l.loginID.key(normalize(identifier)))
}

func (l *Limiter) count(ctx context.Context, key string) (int, error) {
	n, err := l.redis.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return max(n, 0), nil
}

func (l *Limiter) hit(ctx context.Context, w window, subject string) (int, error) {
	n, err := hit.Run(ctx, l.redis, []string{w.key(subject)}, w.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
