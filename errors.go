package goIdentity

import (
	"errors"

	"github.com/MrEthical07/goIdentity/jwt"
)

var (
	// ErrUnsupportedMode is returned by Build for an unknown identity mode.
	ErrUnsupportedMode = errors.New("unsupported identity mode")
	// ErrMalformedToken is returned when a claim token cannot be decoded.
	ErrMalformedToken = jwt.ErrMalformedToken
	// ErrNotFound is returned by store gateways when no record matches.
	ErrNotFound = errors.New("not found")
	// ErrSessionStoreRequired is returned by Build without redis or a session store.
	ErrSessionStoreRequired = errors.New("session store required")
	// ErrUserStoreRequired is returned by Build without a user store.
	ErrUserStoreRequired = errors.New("user store required")
	// ErrEngineClosed is returned by Engine.Health after Close.
	ErrEngineClosed = errors.New("engine closed")
)
