package goIdentity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goIdentity/credential"
	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/validation"
)

type healthPinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Engine holds the process-wide identity collaborators. It is safe for
// concurrent use; per-request state lives in the [Identity] values it creates.
type Engine struct {
	config      Config
	sessions    SessionStore
	pinger      healthPinger
	users       UserStore
	mailer      Mailer
	inheritance *permission.Inheritance
	codec       *jwt.Codec
	extractor   *credential.Extractor
	hasher      password.Hasher
	limiter     *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	closed      atomic.Bool
}

// Close flushes pending audit events. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Codec returns the claim token codec, for callers that verify tokens
// against an origin themselves.
func (e *Engine) Codec() *jwt.Codec {
	return e.codec
}

// Inheritance returns the frozen role inheritance table.
func (e *Engine) Inheritance() *permission.Inheritance {
	return e.inheritance
}

// Hasher returns the password hasher, for seeding and admin tooling.
func (e *Engine) Hasher() password.Hasher {
	return e.hasher
}

// Health reports whether the engine is open and its session store reachable.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil || e.closed.Load() {
		return ErrEngineClosed
	}
	if e.pinger == nil {
		return nil
	}
	_, err := e.pinger.Ping(ctx)
	return err
}

// NewIdentity returns the resolution context for one request. req and slot
// may be nil.
func (e *Engine) NewIdentity(req credential.Request, slot credential.Slot) *Identity {
	return &Identity{
		engine:    e,
		req:       req,
		slot:      slot,
		origin:    e.config.Token.Origin,
		snapshots: make(map[bool]*Snapshot, 2),
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func newExtractor(e *Engine) *credential.Extractor {
	return &credential.Extractor{
		Claims:     e.codec,
		ClaimName:  e.config.SlotName,
		DecodeSlot: e.decodeSlot,
	}
}

// encodeSlot renders kt as the slot value for the configured mode.
func (e *Engine) encodeSlot(origin string, kt credential.KeyToken) (string, error) {
	switch e.config.Mode {
	case ModeJWT:
		return e.codec.Encode(origin, e.config.SlotName, kt.Map())
	case ModeString:
		data, err := json.Marshal(kt)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, e.config.Mode)
	}
}

func (e *Engine) decodeSlot(raw string) (credential.KeyToken, bool) {
	switch e.config.Mode {
	case ModeJWT:
		v, err := e.codec.Unwrap(raw, e.config.SlotName)
		if err != nil {
			return credential.KeyToken{}, false
		}
		return credential.KeyTokenFromValue(v)
	case ModeString:
		var kt credential.KeyToken
		if err := json.Unmarshal([]byte(raw), &kt); err != nil {
			return credential.KeyToken{}, false
		}
		return kt, !kt.Empty()
	default:
		return credential.KeyToken{}, false
	}
}

// persistFailed records a store error in msgs. Validation errors are merged
// field by field; anything else becomes one Unavailable message.
func (e *Engine) persistFailed(ctx context.Context, operation string, err error, msgs *validation.Messages) {
	if fieldMsgs, ok := validation.FromError(err); ok {
		msgs.Merge(fieldMsgs)
		return
	}
	e.unavailable(ctx, operation, err, msgs)
}

func (e *Engine) unavailable(ctx context.Context, operation string, err error, msgs *validation.Messages) {
	e.metricInc(MetricStoreUnavailable)
	e.logger.ErrorContext(ctx, "identity store call failed",
		"operation", operation,
		"outcome", "unavailable",
		"error", err,
	)
	msgs.Append("store", validation.TypeUnavailable, "service unavailable")
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, session.ErrNotFound)
}
