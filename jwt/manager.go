package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when a token string cannot be parsed.
	ErrMalformedToken = errors.New("malformed token")
	// ErrTokenInvalid is returned when a well-formed token fails verification.
	ErrTokenInvalid = errors.New("token invalid")
)

const (
	defaultTTL       = time.Hour
	defaultNotBefore = time.Minute
	defaultLeeway    = time.Minute
)

var reservedClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "jti": {}, "iat": {}, "nbf": {}, "exp": {}, "sub": {},
}

// Claims is the decoded claim set of a token.
type Claims = jwt.MapClaims

// Config defines the codec's key material and time bounds.
//
// PrivateKey and PublicKey are PEM encoded P-521 keys. When PrivateKey is empty
// and AllowEphemeralKey is set, a process-local key pair is generated.
type Config struct {
	TTL               time.Duration
	NotBefore         time.Duration
	Leeway            time.Duration
	PrivateKey        []byte
	PublicKey         []byte
	KeyID             string
	VerifySignature   bool
	AllowEphemeralKey bool
}

// Codec encodes and decodes ES512-signed claim tokens.
//
// Codec instances are immutable after construction and safe for concurrent use.
type Codec struct {
	config  Config
	private *ecdsa.PrivateKey
	public  *ecdsa.PublicKey
	now     func() time.Time
}

// NewCodec validates cfg and parses its key material.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.NotBefore == 0 {
		cfg.NotBefore = defaultNotBefore
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = defaultLeeway
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.NotBefore < 0 || cfg.NotBefore >= cfg.TTL {
		return nil, errors.New("invalid not-before configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 5*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{config: cfg, now: time.Now}

	switch {
	case len(cfg.PrivateKey) > 0:
		key, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.private = key
		c.public = &key.PublicKey
	case cfg.AllowEphemeralKey:
		key, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		c.private = key
		c.public = &key.PublicKey
	default:
		return nil, errors.New("es512 requires private key")
	}

	if len(cfg.PublicKey) > 0 {
		pub, err := parsePublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		if !pub.Equal(c.public) {
			return nil, errors.New("public key does not match private key")
		}
		c.public = pub
	}

	return c, nil
}

// WithClock returns a copy of c that reads the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Encode signs payload under claimName. Issuer and audience are set to origin;
// the token id is claimName and is also carried in the header.
func (c *Codec) Encode(origin, claimName string, payload any) (string, error) {
	claimName = strings.TrimSpace(claimName)
	if claimName == "" {
		return "", errors.New("claim name cannot be empty")
	}
	if _, reserved := reservedClaims[claimName]; reserved {
		return "", fmt.Errorf("claim name %q is reserved", claimName)
	}

	now := c.now()
	claims := jwt.MapClaims{
		"iss":     origin,
		"aud":     origin,
		"jti":     claimName,
		"iat":     jwt.NewNumericDate(now),
		"nbf":     jwt.NewNumericDate(now.Add(c.config.NotBefore)),
		"exp":     jwt.NewNumericDate(now.Add(c.config.TTL)),
		claimName: payload,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES512, claims)
	token.Header["jti"] = claimName
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}

	return token.SignedString(c.private)
}

// Decode returns the claim set of tokenStr. Signature and time bounds are
// checked only when VerifySignature is configured.
func (c *Codec) Decode(tokenStr string) (Claims, error) {
	if c.config.VerifySignature {
		return c.Verify(tokenStr, "")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// Claim decodes tokenStr and returns the value stored under claimName, or nil.
func (c *Codec) Claim(tokenStr, claimName string) (any, error) {
	claims, err := c.Decode(tokenStr)
	if err != nil {
		return nil, err
	}
	return claims[claimName], nil
}

// Unwrap returns the value under claimName. The signature is checked when
// VerifySignature is configured; time bounds are not.
func (c *Codec) Unwrap(tokenStr, claimName string) (any, error) {
	claims := jwt.MapClaims{}
	if !c.config.VerifySignature {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return claims[claimName], nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err := c.parse(parser, tokenStr, claims); err != nil {
		return nil, err
	}
	return claims[claimName], nil
}

// Verify checks the signature and time bounds of tokenStr. When origin is not
// empty, issuer and audience must equal it.
func (c *Codec) Verify(tokenStr, origin string) (Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES512.Alg()}),
		jwt.WithLeeway(c.config.Leeway),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if origin != "" {
		options = append(options, jwt.WithIssuer(origin), jwt.WithAudience(origin))
	}

	claims := jwt.MapClaims{}
	if err := c.parse(jwt.NewParser(options...), tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) parse(parser *jwt.Parser, tokenStr string, claims jwt.MapClaims) error {
	_, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodES512.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if c.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != c.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return c.public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return nil
}

// PublicKeyPEM returns the verification key in PKIX PEM form.
func (c *Codec) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(c.public)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// GenerateKeyPair returns a new P-521 key pair as PEM blocks.
func GenerateKeyPair() (privatePEM, publicPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}

func parsePrivateKey(key []byte) (*ecdsa.PrivateKey, error) {
	parsed, err := jwt.ParseECPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ecdsa private key")
	}
	if parsed.Curve.Params().BitSize != 521 {
		return nil, errors.New("es512 requires a P-521 private key")
	}
	return parsed, nil
}

func parsePublicKey(key []byte) (*ecdsa.PublicKey, error) {
	parsed, err := jwt.ParseECPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ecdsa public key")
	}
	if parsed.Curve.Params().BitSize != 521 {
		return nil, errors.New("es512 requires a P-521 public key")
	}
	return parsed, nil
}
