// Package validation defines the uniform message envelope used by every mutating
// identity operation, and the field-level error type returned by store Save calls.
//
// # Architecture boundaries
//
// This package is a leaf: stores, the root engine, and HTTP adapters all import it,
// and it imports nothing from the module.
package validation
