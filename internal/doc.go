// Package internal contains helpers that are private to goIdentity: session key
// and token generation, key+token digests, and reset-token helpers.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate - Redis-backed fixed-window limiter for login and reset attempts
//   - httpapi: chi router exposing the identity operations over JSON
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Log or persist raw tokens.
package internal
