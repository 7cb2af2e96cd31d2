package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

const (
	sessionTokenSize = 64
	resetTokenSize   = 32
)

// NewSessionKey returns a fresh public session key.
func NewSessionKey() string {
	return uuid.NewString()
}

// NewSessionToken returns 512 bits of randomness, hex encoded.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashKeyToken returns the stored digest of key+token.
func HashKeyToken(key, token string) [32]byte {
	return sha256.Sum256([]byte(key + token))
}

// VerifyKeyToken compares the digest of key+token against stored in constant time.
func VerifyKeyToken(stored [32]byte, key, token string) bool {
	computed := HashKeyToken(key, token)
	return subtle.ConstantTimeCompare(stored[:], computed[:]) == 1
}

// NewResetToken returns a raw single-use reset token and the hex digest to store.
func NewResetToken() (string, string, error) {
	var raw [resetTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw[:])
	return token, HashResetToken(token), nil
}

// HashResetToken returns the hex digest stored for a raw reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyResetToken reports whether token matches storedHash in constant time.
func VerifyResetToken(storedHash, token string) bool {
	if storedHash == "" || token == "" {
		return false
	}
	computed := HashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}
