package credential

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// Slot is a per-client key/value session mechanism.
type Slot interface {
	Get(name string) (string, bool)
	Set(name, value string) error
	Remove(name string) error
}

// MemorySlot keeps values in a map.
type MemorySlot struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: make(map[string]string)}
}

func (m *MemorySlot) Get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *MemorySlot) Set(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *MemorySlot) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	return nil
}

// CookieOptions configures the cookies written by a CookieJar.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// CookieJar signs and encrypts slot values into cookies.
type CookieJar struct {
	codec   *securecookie.SecureCookie
	options CookieOptions
}

// NewCookieJar builds a jar from a 32 or 64 byte hash key and an optional
// 16/24/32 byte AES block key.
func NewCookieJar(hashKey, blockKey []byte, opts CookieOptions) (*CookieJar, error) {
	if len(hashKey) < 32 {
		return nil, errors.New("cookie hash key must be at least 32 bytes")
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	codec := securecookie.New(hashKey, blockKey)
	if opts.MaxAge > 0 {
		codec.MaxAge(int(opts.MaxAge / time.Second))
	}
	return &CookieJar{codec: codec, options: opts}, nil
}

// GenerateKeys returns a fresh hash key and block key.
func GenerateKeys() (hashKey, blockKey []byte) {
	return securecookie.GenerateRandomKey(64), securecookie.GenerateRandomKey(32)
}

// Slot binds the jar to one request/response pair.
func (j *CookieJar) Slot(w http.ResponseWriter, r *http.Request) *CookieSlot {
	return &CookieSlot{jar: j, w: w, r: r, pending: make(map[string]*string)}
}

// CookieSlot is a Slot backed by signed cookies. Writes made during the
// request are visible to later reads in the same request.
type CookieSlot struct {
	jar     *CookieJar
	w       http.ResponseWriter
	r       *http.Request
	pending map[string]*string
}

func (s *CookieSlot) Get(name string) (string, bool) {
	if v, ok := s.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	c, err := s.r.Cookie(name)
	if err != nil {
		return "", false
	}
	var value string
	if err := s.jar.codec.Decode(name, c.Value, &value); err != nil {
		return "", false
	}
	return value, true
}

func (s *CookieSlot) Set(name, value string) error {
	encoded, err := s.jar.codec.Encode(name, value)
	if err != nil {
		return err
	}
	http.SetCookie(s.w, s.cookie(name, encoded, int(s.jar.options.MaxAge/time.Second)))
	s.pending[name] = &value
	return nil
}

func (s *CookieSlot) Remove(name string) error {
	http.SetCookie(s.w, s.cookie(name, "", -1))
	s.pending[name] = nil
	return nil
}

func (s *CookieSlot) cookie(name, value string, maxAge int) *http.Cookie {
	opts := s.jar.options
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: opts.SameSite,
	}
}
