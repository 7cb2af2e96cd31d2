package credential

import (
	"net/http"
	"strings"
)

// KeyToken is a session key paired with its raw secret.
type KeyToken struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// Empty reports whether either half is missing.
func (kt KeyToken) Empty() bool {
	return kt.Key == "" || kt.Token == ""
}

// Map returns the pair in the shape embedded in claim tokens.
func (kt KeyToken) Map() map[string]string {
	return map[string]string{"key": kt.Key, "token": kt.Token}
}

// KeyTokenFromValue reads a pair out of a decoded claim value.
func KeyTokenFromValue(v any) (KeyToken, bool) {
	switch m := v.(type) {
	case KeyToken:
		return m, !m.Empty()
	case map[string]string:
		kt := KeyToken{Key: m["key"], Token: m["token"]}
		return kt, !kt.Empty()
	case map[string]any:
		key, _ := m["key"].(string)
		token, _ := m["token"].(string)
		kt := KeyToken{Key: key, Token: token}
		return kt, !kt.Empty()
	default:
		return KeyToken{}, false
	}
}

// Channel names the credential source a pair was taken from.
type Channel string

const (
	ChannelNone   Channel = ""
	ChannelClaim  Channel = "claim"
	ChannelBasic  Channel = "basic"
	ChannelBearer Channel = "bearer"
	ChannelSlot   Channel = "slot"
	ChannelParams Channel = "params"
)

// Request is the part of an inbound request the extractor reads.
type Request interface {
	Param(name string) string
	BasicAuth() (username, password string, ok bool)
	Header(name string) string
}

// ClaimDecoder returns the value stored under claimName in a signed token.
type ClaimDecoder interface {
	Claim(token, claimName string) (any, error)
}

// Extractor derives a key/token pair from a request.
//
// Channels are tried in order and the first one present wins, even when its
// content does not decode: the claim parameter, HTTP Basic (username=key,
// password=token), an `Authorization: Bearer` claim token, the session slot,
// and finally plain key/token parameters.
type Extractor struct {
	Claims     ClaimDecoder
	ClaimName  string
	ClaimParam string
	KeyParam   string
	TokenParam string
	// DecodeSlot turns the raw slot value into a pair.
	DecodeSlot func(raw string) (KeyToken, bool)
}

// Extract returns the pair and the channel it came from. An empty pair with
// ChannelNone means anonymous.
func (e *Extractor) Extract(req Request, slot Slot) (KeyToken, Channel) {
	if req != nil {
		if raw := req.Param(e.claimParam()); raw != "" {
			kt, _ := e.fromClaim(raw)
			return kt, ChannelClaim
		}

		if user, pass, ok := req.BasicAuth(); ok && (user != "" || pass != "") {
			return KeyToken{Key: user, Token: pass}, ChannelBasic
		}

		if raw, ok := bearerToken(req.Header("Authorization")); ok {
			kt, _ := e.fromClaim(raw)
			return kt, ChannelBearer
		}
	}

	if slot != nil {
		if raw, ok := slot.Get(e.ClaimName); ok && raw != "" {
			var kt KeyToken
			if e.DecodeSlot != nil {
				kt, _ = e.DecodeSlot(raw)
			}
			return kt, ChannelSlot
		}
	}

	if req != nil {
		kt := KeyToken{Key: req.Param(e.keyParam()), Token: req.Param(e.tokenParam())}
		if !kt.Empty() {
			return kt, ChannelParams
		}
	}

	return KeyToken{}, ChannelNone
}

func (e *Extractor) fromClaim(raw string) (KeyToken, bool) {
	if e.Claims == nil {
		return KeyToken{}, false
	}
	v, err := e.Claims.Claim(raw, e.ClaimName)
	if err != nil {
		return KeyToken{}, false
	}
	return KeyTokenFromValue(v)
}

func (e *Extractor) claimParam() string {
	if e.ClaimParam == "" {
		return "jwt"
	}
	return e.ClaimParam
}

func (e *Extractor) keyParam() string {
	if e.KeyParam == "" {
		return "key"
	}
	return e.KeyParam
}

func (e *Extractor) tokenParam() string {
	if e.TokenParam == "" {
		return "token"
	}
	return e.TokenParam
}

func bearerToken(value string) (string, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		return "", false
	}
	return fields[1], true
}

type httpRequest struct {
	r *http.Request
}

// FromHTTP adapts an *http.Request. Params are read from the query string and,
// for form posts, the parsed form.
func FromHTTP(r *http.Request) Request {
	return httpRequest{r: r}
}

func (h httpRequest) Param(name string) string {
	if v := h.r.URL.Query().Get(name); v != "" {
		return v
	}
	ct := h.r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return h.r.FormValue(name)
	}
	return ""
}

func (h httpRequest) BasicAuth() (string, string, bool) {
	return h.r.BasicAuth()
}

func (h httpRequest) Header(name string) string {
	return h.r.Header.Get(name)
}

// Static is a fixed Request, for non-HTTP callers and tests.
type Static struct {
	Params   map[string]string
	Username string
	Password string
	HasBasic bool
	Headers  map[string]string
}

func (s Static) Param(name string) string { return s.Params[name] }

func (s Static) BasicAuth() (string, string, bool) {
	return s.Username, s.Password, s.HasBasic
}

func (s Static) Header(name string) string {
	return http.Header(canonical(s.Headers)).Get(name)
}

func canonical(in map[string]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[http.CanonicalHeaderKey(k)] = []string{v}
	}
	return out
}
