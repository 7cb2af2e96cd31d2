package goIdentity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/permission"
)

// Mode selects how the key/token pair is kept in the session slot.
type Mode string

const (
	// ModeString stores the pair as a JSON object.
	ModeString Mode = "string"
	// ModeJWT stores the pair wrapped in a signed claim token.
	ModeJWT Mode = "jwt"
)

// Config is the complete identity engine configuration.
//
// Config values are copied by [Builder.WithConfig]; later mutation of the
// caller's value has no effect on a built Engine.
type Config struct {
	Mode          Mode                `yaml:"mode" env:"MODE"`
	SlotName      string              `yaml:"slot_name" env:"SLOT_NAME"`
	Token         TokenConfig         `yaml:"token" envPrefix:"TOKEN_"`
	Session       SessionConfig       `yaml:"session" envPrefix:"SESSION_"`
	Password      PasswordConfig      `yaml:"password" envPrefix:"PASSWORD_"`
	Permissions   permission.Config   `yaml:"permissions"`
	Impersonation ImpersonationConfig `yaml:"impersonation" envPrefix:"IMPERSONATION_"`
	Reset         ResetConfig         `yaml:"reset" envPrefix:"RESET_"`
	Security      SecurityConfig      `yaml:"security" envPrefix:"SECURITY_"`
	Audit         AuditConfig         `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics       MetricsConfig       `yaml:"metrics" envPrefix:"METRICS_"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the claim token codec. Keys are PEM encoded P-521
// keys; the *File fields are read by LoadConfig.
type TokenConfig struct {
	Origin            string        `yaml:"origin" env:"ORIGIN"`
	TTL               time.Duration `yaml:"ttl" env:"TTL"`
	NotBefore         time.Duration `yaml:"not_before" env:"NOT_BEFORE"`
	Leeway            time.Duration `yaml:"leeway" env:"LEEWAY"`
	PrivateKeyPEM     string        `yaml:"private_key_pem" env:"PRIVATE_KEY_PEM"`
	PublicKeyPEM      string        `yaml:"public_key_pem" env:"PUBLIC_KEY_PEM"`
	PrivateKeyFile    string        `yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	PublicKeyFile     string        `yaml:"public_key_file" env:"PUBLIC_KEY_FILE"`
	KeyID             string        `yaml:"key_id" env:"KEY_ID"`
	VerifySignature   bool          `yaml:"verify_signature" env:"VERIFY_SIGNATURE"`
	AllowEphemeralKey bool          `yaml:"allow_ephemeral_key" env:"ALLOW_EPHEMERAL_KEY"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the redis session store.
type SessionConfig struct {
	RedisPrefix string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	TTL         time.Duration `yaml:"ttl" env:"TTL"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters. Legacy bcrypt hashes are always
// accepted for verification.
type PasswordConfig struct {
	Memory         uint32 `yaml:"memory" env:"MEMORY"` // in KB
	Time           uint32 `yaml:"time" env:"TIME"`
	Parallelism    uint8  `yaml:"parallelism" env:"PARALLELISM"`
	SaltLength     uint32 `yaml:"salt_length" env:"SALT_LENGTH"`
	KeyLength      uint32 `yaml:"key_length" env:"KEY_LENGTH"`
	UpgradeOnLogin bool   `yaml:"upgrade_on_login" env:"UPGRADE_ON_LOGIN"`
}

/*
====================================
IMPERSONATION / RESET CONFIG
====================================
*/

// ImpersonationConfig lists the roles, any one of which allows loginAs.
type ImpersonationConfig struct {
	AllowedRoles []string `yaml:"allowed_roles" env:"ALLOWED_ROLES" envSeparator:","`
}

// ResetConfig configures password reset emails.
type ResetConfig struct {
	LinkBase string `yaml:"link_base" env:"LINK_BASE"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures login and reset throttling. Throttling needs a
// redis client on the Builder.
type SecurityConfig struct {
	EnableLoginThrottle   bool          `yaml:"enable_login_throttle" env:"ENABLE_LOGIN_THROTTLE"`
	EnableIPThrottle      bool          `yaml:"enable_ip_throttle" env:"ENABLE_IP_THROTTLE"`
	MaxLoginAttempts      int           `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS"`
	LoginCooldownDuration time.Duration `yaml:"login_cooldown" env:"LOGIN_COOLDOWN"`
	MaxResetRequests      int           `yaml:"max_reset_requests" env:"MAX_RESET_REQUESTS"`
	ResetCooldownDuration time.Duration `yaml:"reset_cooldown" env:"RESET_COOLDOWN"`
}

// AuditConfig configures async audit dispatch.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeString,
		SlotName: "identity",
		Token: TokenConfig{
			TTL:               time.Hour,
			NotBefore:         time.Minute,
			Leeway:            time.Minute,
			VerifySignature:   true,
			AllowEphemeralKey: true,
		},
		Session: SessionConfig{
			RedisPrefix: "ais",
			TTL:         30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Impersonation: ImpersonationConfig{
			AllowedRoles: []string{"admin", "dev"},
		},
		Reset: ResetConfig{
			LinkBase: "/reset-password/",
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			MaxResetRequests:      5,
			ResetCooldownDuration: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Impersonation.AllowedRoles = append([]string(nil), cfg.Impersonation.AllowedRoles...)
	if cfg.Permissions.Roles != nil {
		out.Permissions.Roles = make(map[string]permission.RoleConfig, len(cfg.Permissions.Roles))
		for index, rc := range cfg.Permissions.Roles {
			out.Permissions.Roles[index] = permission.RoleConfig{Inherit: append([]string(nil), rc.Inherit...)}
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeString, ModeJWT:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, c.Mode)
	}

	if strings.TrimSpace(c.SlotName) == "" {
		return errors.New("SlotName is required")
	}

	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.NotBefore < 0 || c.Token.NotBefore >= c.Token.TTL {
		return errors.New("Token NotBefore must be >= 0 and < TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 5*time.Minute {
		return errors.New("Token Leeway must be between 0 and 5m")
	}
	if c.Token.PrivateKeyPEM == "" && !c.Token.AllowEphemeralKey {
		return errors.New("Token PrivateKeyPEM is required unless AllowEphemeralKey is set")
	}

	// Session
	if c.Session.TTL < 0 {
		return errors.New("Session TTL must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Impersonation
	if len(c.Impersonation.AllowedRoles) == 0 {
		return errors.New("Impersonation AllowedRoles must not be empty")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0")
		}
	}
	if c.Security.MaxResetRequests > 0 && c.Security.ResetCooldownDuration <= 0 {
		return errors.New("ResetCooldownDuration must be > 0 when MaxResetRequests is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
