// Package middleware adapts net/http requests to goIdentity.
//
// [Identity] builds one *goIdentity.Identity per request from the request
// credentials and an optional cookie slot, and stores it in the request
// context for [FromContext]. [RequireLogin] and [RequireRole] gate handlers
// on the resolved identity.
//
// Authentication decisions stay in the engine; this package only maps the
// outcome onto HTTP status codes.
package middleware
