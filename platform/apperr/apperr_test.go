package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{SchedulingConflict("overlap"), http.StatusConflict},
		{InvalidState("terminal"), http.StatusConflict},
		{Persistence("store", errors.New("conn refused")), http.StatusInternalServerError},
		{New(KindUnknown, "?"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.err.Kind, tc.want, got)
		}
	}
}

func TestPersistenceHidesCause(t *testing.T) {
	err := Persistence("failed to save appointment", errors.New("pq: password authentication failed"))
	if got := err.PublicMessage(); got != "internal server error" {
		t.Fatalf("expected generic message, got %q", got)
	}
}

func TestGetKindFollowsWrappedChain(t *testing.T) {
	inner := InvalidState("appointment is cancelled")
	wrapped := fmt.Errorf("confirm: %w", inner)

	if !Is(wrapped, KindInvalidState) {
		t.Fatalf("expected invalid state kind through wrap, got %s", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("expected unknown kind for untyped error")
	}
}
