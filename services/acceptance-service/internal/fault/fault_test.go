package fault

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotAuthorized("only the commissioning party may start"), http.StatusForbidden},
		{InvalidState("acceptance already finalized"), http.StatusConflict},
		{Validation("quality must be between 1 and 5"), http.StatusUnprocessableEntity},
		{NotFound("acceptance %s not found", "a-1"), http.StatusNotFound},
		{Dependency(errors.New("dial tcp: refused"), "work item directory unavailable"), http.StatusServiceUnavailable},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestTransitionNamesBothStatuses(t *testing.T) {
	err := Transition("complete", "PENDING", "IN_PROGRESS")
	if !strings.Contains(err.Error(), "PENDING") || !strings.Contains(err.Error(), "IN_PROGRESS") {
		t.Fatalf("transition error must name current and required status, got %q", err.Error())
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("transition error must map to 409, got %d", HTTPStatus(err))
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("engine: %w", InvalidState("appointment is locked"))
	if !errors.Is(err, InvalidState("")) {
		t.Fatal("wrapped InvalidState should match InvalidState kind")
	}
	if errors.Is(err, NotFound("")) {
		t.Fatal("InvalidState should not match NotFound kind")
	}
}

func TestDependencyUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Dependency(cause, "directory check failed")
	if !errors.Is(err, cause) {
		t.Fatal("dependency fault should unwrap to its cause")
	}
}
