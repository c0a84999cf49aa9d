package caserr

import (
	"errors"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Unauthorized("x"), 401},
		{Forbidden("x"), 403},
		{NotFound("x"), 404},
		{Gone("x"), 410},
		{Conflict("x"), 409},
		{QuotaExceeded("x"), 400},
		{InvalidRequest("x"), 400},
		{Internal("x", nil), 500},
	}
	for _, c := range cases {
		if got := c.err.HTTPStatus(); got != c.want {
			t.Errorf("kind %s: expected status %d, got %d", c.err.Kind, c.want, got)
		}
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(NotFound("missing")) {
		t.Fatal("expected IsNotFound to match")
	}
	if IsNotFound(Forbidden("nope")) {
		t.Fatal("expected IsNotFound not to match a forbidden error")
	}
	if !IsForbidden(Forbidden("nope")) {
		t.Fatal("expected IsForbidden to match")
	}
	if !IsConflict(Conflict("busy")) {
		t.Fatal("expected IsConflict to match")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	wrapped := Internal("wrapping it", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to see through Unwrap to the cause")
	}
}

func TestAsHashMismatchWrapsHashMismatch(t *testing.T) {
	err := AsHashMismatch("sha256:aaa", "sha256:bbb")
	if err.Kind != KindHashMismatch {
		t.Fatalf("expected hash_mismatch kind, got %s", err.Kind)
	}
	var mismatch *HashMismatch
	if !errors.As(err, &mismatch) {
		t.Fatal("expected errors.As to find the wrapped HashMismatch")
	}
	if mismatch.Expected != "sha256:aaa" || mismatch.Actual != "sha256:bbb" {
		t.Fatalf("unexpected hash mismatch fields: %+v", mismatch)
	}
}

func TestMissingNodesErrorMessage(t *testing.T) {
	m := &MissingNodes{Missing: []string{"sha256:a", "sha256:b"}}
	if m.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
