package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned when no configured hasher recognises a stored hash.
var ErrUnsupportedHash = errors.New("unsupported password hash")

// Hasher hashes new passwords and verifies stored ones.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

type recogniser interface {
	Handles(encodedHash string) bool
}

// Bcrypt verifies (and, if asked, produces) bcrypt hashes.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A non-positive cost selects bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}

func (b *Bcrypt) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// Multi hashes with its primary hasher and verifies with whichever hasher
// recognises the stored hash. Hashes not owned by the primary always need an
// upgrade.
type Multi struct {
	primary Hasher
	legacy  []Hasher
}

// NewMulti returns a Multi hashing with primary and also accepting legacy hashes.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	return &Multi{primary: primary, legacy: legacy}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	h, err := m.pick(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := m.pick(encodedHash)
	if err != nil {
		return false, err
	}
	if h != m.primary {
		return true, nil
	}
	return h.NeedsUpgrade(encodedHash)
}

func (m *Multi) pick(encodedHash string) (Hasher, error) {
	if r, ok := m.primary.(recogniser); !ok || r.Handles(encodedHash) {
		return m.primary, nil
	}
	for _, h := range m.legacy {
		if r, ok := h.(recogniser); ok && r.Handles(encodedHash) {
			return h, nil
		}
	}
	return nil, ErrUnsupportedHash
}
