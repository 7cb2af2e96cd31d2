package goIdentity

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/redis/go-redis/v9"
)

// Builder collects an Engine's collaborators. A Builder is used once;
// configure it during initialization and call [Builder.Build].
type Builder struct {
	config Config
	redis  redis.UniversalClient

	roles map[string][]string

	sessions  SessionStore
	users     UserStore
	mailer    Mailer
	auditSink AuditSink
	hasher    password.Hasher
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for the default session store and throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRoles adds role inheritance entries on top of Config.Permissions.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithSessionStore overrides the redis session store.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHasher overrides the default argon2id+bcrypt hasher.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the structured logger. The Engine adds a module attribute.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock sets the time source for session stamps and claim tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled turns the engine counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records session resolution latency when metrics are on.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, ErrUserStoreRequired
	}
	if b.sessions == nil && b.redis == nil {
		return nil, ErrSessionStoreRequired
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "goidentity")

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- ROLE INHERITANCE --------
	inheritance := permission.NewInheritance()
	for index, rc := range cfg.Permissions.Roles {
		if err := inheritance.Register(index, rc.Inherit...); err != nil {
			return nil, err
		}
	}
	for index, inherits := range b.roles {
		if err := inheritance.Register(index, inherits...); err != nil {
			return nil, err
		}
	}
	inheritance.Freeze()

	// -------- SESSION STORE --------
	sessions := b.sessions
	if sessions == nil {
		sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL)
	}
	pinger, _ := sessions.(healthPinger)

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		TTL:               cfg.Token.TTL,
		NotBefore:         cfg.Token.NotBefore,
		Leeway:            cfg.Token.Leeway,
		PrivateKey:        pemBytes(cfg.Token.PrivateKeyPEM),
		PublicKey:         pemBytes(cfg.Token.PublicKeyPEM),
		KeyID:             cfg.Token.KeyID,
		VerifySignature:   cfg.Token.VerifySignature,
		AllowEphemeralKey: cfg.Token.AllowEphemeralKey,
	})
	if err != nil {
		return nil, err
	}
	codec = codec.WithClock(now)
	if !cfg.Token.VerifySignature {
		logger.Warn("claim token signature verification disabled", "operation", "build")
	}

	// -------- PASSWORD --------
	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = password.NewMulti(argon, password.NewBcrypt(0))
	}

	engine := &Engine{
		config:      cfg,
		sessions:    sessions,
		pinger:      pinger,
		users:       b.users,
		mailer:      b.mailer,
		inheritance: inheritance,
		codec:       codec,
		hasher:      hasher,
		logger:      logger,
		now:         now,
		metrics:     NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	engine.extractor = newExtractor(engine)

	// -------- THROTTLING --------
	throttled := cfg.Security.EnableLoginThrottle || cfg.Security.MaxResetRequests > 0
	switch {
	case throttled && b.redis != nil:
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableLoginThrottle:   cfg.Security.EnableLoginThrottle,
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			MaxResetRequests:      cfg.Security.MaxResetRequests,
			ResetCooldownDuration: cfg.Security.ResetCooldownDuration,
		})
	case throttled:
		logger.Warn("throttling disabled without redis client", "operation", "build")
	}

	b.built = true

	return engine, nil
}

func pemBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
