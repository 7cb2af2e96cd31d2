// Package rate provides the Redis-backed limiter used to throttle failed logins
// and password reset requests.
//
// # Window semantics
//
// Fixed windows: one Lua script increments a counter and starts its expiry
// on the first hit. Key prefixes:
//   - "il:" failed logins per identifier
//   - "ili:" failed logins per IP
//   - "ir:" reset requests per email
//
// # What this package must NOT do
//
//   - Decide what to do when a budget is spent; callers append the message.
//   - Be imported outside the goIdentity module.
package rate
