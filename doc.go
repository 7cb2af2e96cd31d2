// Package goIdentity resolves "who is calling" from a request's credentials and
// answers authorization questions about that caller.
//
// A caller presents a session key and its raw token through one of several
// channels (claim token parameter, HTTP Basic, bearer claim token, session
// slot, plain parameters). The key selects a server-side session row whose
// stored hash must match key+token. The row carries the logged-in user and,
// while impersonating, the original user.
//
// The [Engine] is built once through [Builder.Build] and is safe for
// concurrent use. Each request gets its own [Identity] from
// [Engine.NewIdentity]; an Identity caches the resolved session, users and
// role snapshots and must not be shared.
//
// # Architecture boundaries
//
// goIdentity is the public surface: [Engine], [Builder], [Config], [Identity],
// the entity types and the result envelopes. Storage is reached only through
// [SessionStore] and [UserStore]; email only through [Mailer].
//
// # Result envelopes
//
// Mutations (Login, Logout, LoginAs, LogoutAs, OAuth2, Reset, CreateOrRefresh)
// never return errors. Failures are reported as validation messages carrying
// a type and status code. Only Build returns construction errors.
//
// # What this package must NOT do
//
//   - Keep per-request state on the Engine.
//   - Log raw tokens, passwords or reset tokens.
//   - Import any sub-package that re-imports goIdentity (no import cycles).
package goIdentity
