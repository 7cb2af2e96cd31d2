// Package session provides the Redis-backed session store gateway and the compact
// binary session encoding.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary blob (schema v1–v2). Rows written in an
// older schema are rewritten in the current one on read.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// interpret tokens, evaluate roles, or decide login policy; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goIdentity, jwt, or permission (no upward imports).
//   - Store raw session tokens; only the key+token digest is persisted.
package session
