package validation

import (
	"errors"
	"net/http"
	"strings"
)

// Type classifies a message. Each type carries a fixed status code.
type Type string

const (
	TypeSessionRequired  Type = "SessionRequired"
	TypeValidationFailed Type = "ValidationFailed"
	TypePresenceOf       Type = "PresenceOf"
	TypeConfirmation     Type = "Confirmation"
	TypeUniqueness       Type = "Uniqueness"
	TypeLoginFailed      Type = "LoginFailed"
	TypeLoginForbidden   Type = "LoginForbidden"
	TypeForbidden        Type = "Forbidden"
	TypeNotFound         Type = "NotFound"
	TypeNotValid         Type = "NotValid"
	TypeRateLimited      Type = "RateLimited"
	TypeUnavailable      Type = "Unavailable"
)

// Code returns the HTTP-style status code reported alongside messages of type t.
func (t Type) Code() int {
	switch t {
	case TypeSessionRequired, TypeLoginForbidden, TypeForbidden:
		return http.StatusForbidden
	case TypeLoginFailed:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// Message is one field-scoped entry of a result envelope.
type Message struct {
	Field string `json:"field"`
	Type  Type   `json:"type"`
	Text  string `json:"text"`
	Code  int    `json:"code"`
}

// New builds a Message whose code is derived from its type.
func New(field string, typ Type, text string) Message {
	return Message{Field: field, Type: typ, Text: text, Code: typ.Code()}
}

// Messages is an ordered list of messages.
type Messages []Message

// Append adds a message built from field, type and text.
func (m *Messages) Append(field string, typ Type, text string) {
	*m = append(*m, New(field, typ, text))
}

// Merge appends every message of other.
func (m *Messages) Merge(other Messages) {
	*m = append(*m, other...)
}

func (m Messages) Len() int {
	return len(m)
}

// Has reports whether any message has the given type.
func (m Messages) Has(typ Type) bool {
	for _, msg := range m {
		if msg.Type == typ {
			return true
		}
	}
	return false
}

// ForField returns the messages scoped to field.
func (m Messages) ForField(field string) Messages {
	var out Messages
	for _, msg := range m {
		if msg.Field == field {
			out = append(out, msg)
		}
	}
	return out
}

// Error carries field-level validation failures out of a store Save call.
type Error struct {
	Messages Messages
}

func (e *Error) Error() string {
	if e == nil || len(e.Messages) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		parts = append(parts, msg.Field+": "+msg.Text)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewError returns an *Error holding msgs.
func NewError(msgs ...Message) *Error {
	return &Error{Messages: Messages(msgs)}
}

// FromError extracts validation messages from err, if it wraps an *Error.
func FromError(err error) (Messages, bool) {
	var verr *Error
	if errors.As(err, &verr) && verr != nil {
		return verr.Messages, true
	}
	return nil, false
}

// Presence appends a PresenceOf message for every field whose value is blank.
func Presence(msgs *Messages, fields map[string]string, order ...string) {
	for _, field := range order {
		if strings.TrimSpace(fields[field]) == "" {
			msgs.Append(field, TypePresenceOf, field+" is required")
		}
	}
}
