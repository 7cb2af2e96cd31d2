package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

const testOrigin = "https://identity.test"

func newTestCodec(t *testing.T, verify bool) *Codec {
	t.Helper()
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	c, err := NewCodec(Config{PrivateKey: priv, PublicKey: pub, VerifySignature: verify})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return c
}

func TestEncodeSetsRegisteredClaims(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, false).WithClock(func() time.Time { return fixed })

	token, err := c.Encode(testOrigin, "identity", map[string]string{"key": "k1", "token": "t1"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	parsed, _, err := gjwt.NewParser().ParseUnverified(token, gjwt.MapClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified failed: %v", err)
	}
	if parsed.Header["alg"] != "ES512" {
		t.Fatalf("expected ES512, got %v", parsed.Header["alg"])
	}
	if parsed.Header["jti"] != "identity" {
		t.Fatalf("expected jti header, got %v", parsed.Header["jti"])
	}

	claims, err := c.Decode(token)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if claims["iss"] != testOrigin || claims["aud"] != testOrigin || claims["jti"] != "identity" {
		t.Fatalf("unexpected registered claims: %v", claims)
	}
	if claims["iat"].(float64) != float64(fixed.Unix()) {
		t.Fatalf("unexpected iat: %v", claims["iat"])
	}
	if claims["nbf"].(float64) != float64(fixed.Add(time.Minute).Unix()) {
		t.Fatalf("unexpected nbf: %v", claims["nbf"])
	}
	if claims["exp"].(float64) != float64(fixed.Add(time.Hour).Unix()) {
		t.Fatalf("unexpected exp: %v", claims["exp"])
	}

	payload, ok := claims["identity"].(map[string]interface{})
	if !ok || payload["key"] != "k1" || payload["token"] != "t1" {
		t.Fatalf("unexpected payload: %v", claims["identity"])
	}
}

func TestClaimReturnsNilForUnknownName(t *testing.T) {
	c := newTestCodec(t, true)
	token, err := c.Encode(testOrigin, "identity", "value")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	v, err := c.Claim(token, "identity")
	if err != nil || v != "value" {
		t.Fatalf("expected value, got %v (%v)", v, err)
	}
	v, err = c.Claim(token, "other")
	if err != nil || v != nil {
		t.Fatalf("expected nil for missing claim, got %v (%v)", v, err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, verify := range []bool{false, true} {
		c := newTestCodec(t, verify)
		if _, err := c.Decode("not-a-token"); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("verify=%v: expected ErrMalformedToken, got %v", verify, err)
		}
	}
}

func TestVerifyUsableImmediately(t *testing.T) {
	c := newTestCodec(t, true)
	token, err := c.Encode(testOrigin, "identity", "v")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Verify(token, testOrigin); err != nil {
		t.Fatalf("expected fresh token to verify within leeway: %v", err)
	}
	if _, err := c.Verify(token, "https://other.test"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	base := time.Now()
	c := newTestCodec(t, true)
	issuer := c.WithClock(func() time.Time { return base.Add(-2 * time.Hour) })

	token, err := issuer.Encode(testOrigin, "identity", "v")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Decode(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	c := newTestCodec(t, true)
	other := newTestCodec(t, true)

	token, err := other.Encode(testOrigin, "identity", "v")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Decode(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected foreign signature to fail, got %v", err)
	}

	// Without verification the same token decodes.
	lax := &Codec{config: c.config, private: c.private, public: c.public, now: time.Now}
	lax.config.VerifySignature = false
	if _, err := lax.Decode(token); err != nil {
		t.Fatalf("expected unverified decode to succeed: %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	c := newTestCodec(t, true)

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := c.Decode(signed); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec(Config{}); err == nil {
		t.Fatal("expected missing key to fail")
	}

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ephemeral, err := NewCodec(Config{AllowEphemeralKey: true})
	if err != nil {
		t.Fatalf("ephemeral codec failed: %v", err)
	}
	if ephemeral.public.Equal(&p256.PublicKey) {
		t.Fatal("unexpected key equality")
	}

	if _, err := NewCodec(Config{AllowEphemeralKey: true, NotBefore: 2 * time.Hour, TTL: time.Hour}); err == nil {
		t.Fatal("expected not-before beyond TTL to fail")
	}
	if _, err := NewCodec(Config{AllowEphemeralKey: true, PrivateKey: []byte("garbage")}); err == nil {
		t.Fatal("expected invalid PEM to fail")
	}
}

func TestEncodeRejectsReservedClaim(t *testing.T) {
	c := newTestCodec(t, false)
	if _, err := c.Encode(testOrigin, "exp", "v"); err == nil {
		t.Fatal("expected reserved claim name to be rejected")
	}
}

func TestUnwrapIgnoresTimeBoundsButNotSignature(t *testing.T) {
	c := newTestCodec(t, true)
	issuer := c.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) })

	token, err := issuer.Encode(testOrigin, "identity", "v")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Verify(token, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token to fail Verify, got %v", err)
	}
	got, err := c.Unwrap(token, "identity")
	if err != nil || got != "v" {
		t.Fatalf("expected expired token to unwrap, got %v err=%v", got, err)
	}

	foreign, err := newTestCodec(t, true).Encode(testOrigin, "identity", "v")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Unwrap(foreign, "identity"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected foreign signature to fail Unwrap, got %v", err)
	}
	if _, err := c.Unwrap("not-a-token", "identity"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected malformed token error, got %v", err)
	}
}
