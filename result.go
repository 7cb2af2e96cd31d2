package goIdentity

import "github.com/MrEthical07/goIdentity/validation"

// AuthResult is returned by login, logout, loginAs, logoutAs and oauth2.
type AuthResult struct {
	Saved      bool                `json:"saved"`
	LoggedIn   bool                `json:"loggedIn"`
	LoggedInAs bool                `json:"loggedInAs"`
	Messages   validation.Messages `json:"messages"`
}

// ResetResult is returned by Reset.
type ResetResult struct {
	Saved    bool                `json:"saved"`
	Sent     bool                `json:"sent"`
	Messages validation.Messages `json:"messages"`
}

// RefreshResult is returned by CreateOrRefresh. Token wraps the key/token
// pair under the slot claim.
type RefreshResult struct {
	Saved     bool                `json:"saved"`
	Stored    bool                `json:"stored"`
	Refreshed bool                `json:"refreshed"`
	Validated bool                `json:"validated"`
	Messages  validation.Messages `json:"messages"`
	Token     string              `json:"jwt,omitempty"`
}
