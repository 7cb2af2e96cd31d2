// Package permission provides the authorization predicate engine and the static
// role inheritance table.
//
// # Predicates
//
// A [Needle] is either a scalar role index or a nested group. [Has] evaluates a
// needle list against a [Set]: the top level is AND (or OR when requested) and
// every nesting level flips the mode.
//
// # Inheritance
//
// [Inheritance] is loaded from the `permissions.roles.<index>.inherit` tree and
// frozen before use. [Inheritance.Expand] is a worklist walk with a processed set,
// reporting newly discovered indices once per iteration so that callers can
// batch-fetch role entities.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goIdentity, jwt, or session.
package permission
