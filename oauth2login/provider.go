// Package oauth2login runs the authorization-code leg of a provider login and
// turns the provider's userinfo document into goIdentity.OAuth2Params.
package oauth2login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth2 provider")
	ErrMissingCode     = errors.New("authorization code is required")
	ErrNoProviderID    = errors.New("userinfo carries no account id")
)

const maxUserInfoBytes = 1 << 20

// Provider is one configured OAuth2 identity provider.
type Provider struct {
	Name   string
	Config *oauth2.Config
	// UserInfoURL is fetched with the exchanged access token.
	UserInfoURL string
	// IDField names the userinfo member holding the account id. Empty tries
	// "id" and then "sub".
	IDField string
	// HTTPClient is used for the token exchange and userinfo fetch.
	HTTPClient *http.Client
}

// AuthCodeURL returns the provider consent URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for a token and reads the account's userinfo.
func (p *Provider) Exchange(ctx context.Context, code string) (goIdentity.OAuth2Params, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return goIdentity.OAuth2Params{}, ErrMissingCode
	}
	if p.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}

	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return goIdentity.OAuth2Params{}, fmt.Errorf("exchange code with %s: %w", p.Name, err)
	}

	meta, err := p.userInfo(ctx, tok)
	if err != nil {
		return goIdentity.OAuth2Params{}, err
	}

	id := accountID(meta, p.IDField)
	if id == "" {
		return goIdentity.OAuth2Params{}, ErrNoProviderID
	}
	normalizeNames(meta)

	return goIdentity.OAuth2Params{
		Provider:    p.Name,
		ProviderID:  id,
		AccessToken: tok.AccessToken,
		Meta:        meta,
	}, nil
}

func (p *Provider) userInfo(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo from %s: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch userinfo from %s: status %d", p.Name, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes))
	dec.UseNumber()
	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode userinfo from %s: %w", p.Name, err)
	}
	return meta, nil
}

func accountID(meta map[string]any, field string) string {
	fields := []string{"id", "sub"}
	if field != "" {
		fields = []string{field}
	}
	for _, f := range fields {
		switch v := meta[f].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// normalizeNames fills first_name and last_name from the OpenID Connect
// given_name and family_name claims.
func normalizeNames(meta map[string]any) {
	alias := map[string]string{"first_name": "given_name", "last_name": "family_name"}
	for want, oidc := range alias {
		if _, ok := meta[want].(string); ok {
			continue
		}
		if v, ok := meta[oidc].(string); ok {
			meta[want] = v
		}
	}
}

// Providers indexes providers by name.
type Providers map[string]*Provider

// NewProviders indexes ps by their Name.
func NewProviders(ps ...*Provider) Providers {
	out := make(Providers, len(ps))
	for _, p := range ps {
		out[p.Name] = p
	}
	return out
}

// Lookup returns the named provider or ErrUnknownProvider.
func (ps Providers) Lookup(name string) (*Provider, error) {
	p, ok := ps[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}
