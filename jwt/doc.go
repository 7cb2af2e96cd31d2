// Package jwt is the token codec: it wraps a named claim in an ES512-signed,
// time-bounded token and decodes it back, optionally verifying signature,
// issuer, audience, and time bounds.
package jwt
