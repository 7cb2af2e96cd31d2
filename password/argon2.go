package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 10
	argon2Prefix          = "$argon2id$"

	// DefaultMaxPasswordBytes bounds hashing work when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordTooShort is returned by Hash for passwords under 10 bytes.
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash wraps every PHC parsing failure.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// Argon2 hashes and verifies argon2id PHC strings. It is immutable and safe
// for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Password bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	h.key = h.derive(password, a.config.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash in constant time.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	computed := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(computed, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is weaker than the configured
// costs or derived to a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := h.memory < a.config.Memory ||
		h.time < a.config.Time ||
		h.parallelism < a.config.Parallelism
	return weaker || uint32(len(h.key)) != a.config.KeyLength, nil
}

// Handles reports whether encodedHash is an argon2id PHC string.
func (a *Argon2) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, argon2Prefix)
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		h.memory, h.time, h.parallelism,
		base64.StdEncoding.EncodeToString(h.salt),
		base64.StdEncoding.EncodeToString(h.key),
	)
}

func parsePHC(encodedHash string) (phc, error) {
	malformed := func(reason string) (phc, error) {
		return phc{}, fmt.Errorf("%w: %s", ErrMalformedHash, reason)
	}

	rest, ok := strings.CutPrefix(encodedHash, argon2Prefix)
	if !ok {
		return malformed("not an argon2id PHC string")
	}
	parts := strings.Split(rest, "$")
	if len(parts) != 4 {
		return malformed("expected version, params, salt and key")
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil {
		return malformed("bad version")
	}
	if version != argon2.Version {
		return malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var h phc
	var parallelism uint32
	if n, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &h.memory, &h.time, &parallelism); err != nil || n != 3 {
		return malformed("bad parameters")
	}
	if parts[1] != fmt.Sprintf("m=%d,t=%d,p=%d", h.memory, h.time, parallelism) {
		return malformed("bad parameters")
	}
	if h.memory < minMemoryKB || h.time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return malformed("parameters out of range")
	}
	h.parallelism = uint8(parallelism)

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(parts[2]); err != nil || len(h.salt) < int(minSaltLength) {
		return malformed("bad salt")
	}
	if h.key, err = base64.StdEncoding.DecodeString(parts[3]); err != nil || len(h.key) == 0 {
		return malformed("bad key")
	}
	return h, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MaxPasswordBytes < 0 || (cfg.MaxPasswordBytes > 0 && cfg.MaxPasswordBytes < minPassBytes):
		return errors.New("password max bytes must be >= 10")
	}
	return nil
}
