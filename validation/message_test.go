package validation

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestTypeCodes(t *testing.T) {
	cases := []struct {
		typ  Type
		code int
	}{
		{TypeSessionRequired, http.StatusForbidden},
		{TypeValidationFailed, http.StatusBadRequest},
		{TypePresenceOf, http.StatusBadRequest},
		{TypeLoginFailed, http.StatusUnauthorized},
		{TypeLoginForbidden, http.StatusForbidden},
		{TypeForbidden, http.StatusForbidden},
		{TypeNotFound, http.StatusNotFound},
		{TypeNotValid, http.StatusBadRequest},
		{TypeRateLimited, http.StatusTooManyRequests},
		{TypeUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := tc.typ.Code(); got != tc.code {
			t.Fatalf("%s: expected code %d, got %d", tc.typ, tc.code, got)
		}
	}
}

func TestPresenceAppendsInOrder(t *testing.T) {
	var msgs Messages
	Presence(&msgs, map[string]string{"email": " ", "password": "x"}, "email", "password")
	if msgs.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", msgs.Len())
	}
	if msgs[0].Field != "email" || msgs[0].Type != TypePresenceOf || msgs[0].Code != http.StatusBadRequest {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
}

func TestFromErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("save session: %w", NewError(New("key", TypeUniqueness, "key already used")))

	msgs, ok := FromError(err)
	if !ok {
		t.Fatal("expected validation error to be detected")
	}
	if !msgs.Has(TypeUniqueness) || len(msgs.ForField("key")) != 1 {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	if _, ok := FromError(errors.New("boom")); ok {
		t.Fatal("plain errors must not be treated as validation errors")
	}
}
