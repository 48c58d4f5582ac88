package party

import (
	"errors"
	"testing"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
)

const (
	commissioning = "11111111-1111-1111-1111-111111111111"
	performing    = "22222222-2222-2222-2222-222222222222"
	outsider      = "33333333-3333-3333-3333-333333333333"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		actor Actor
		want  Role
	}{
		{Actor{ID: commissioning}, RoleCommissioning},
		{Actor{ID: performing}, RolePerforming},
		{Actor{ID: outsider}, RoleNone},
		{Actor{ID: outsider, Admin: true}, RoleAdmin},
		{Actor{ID: commissioning, Admin: true}, RoleAdmin},
	}
	for _, c := range cases {
		if got := Resolve(c.actor, commissioning, performing); got != c.want {
			t.Errorf("Resolve(%+v) = %s, want %s", c.actor, got, c.want)
		}
	}
}

func TestRequireCommissioning(t *testing.T) {
	if err := RequireCommissioning(Actor{ID: commissioning}, commissioning, performing, "start"); err != nil {
		t.Fatalf("commissioning party rejected: %v", err)
	}
	if err := RequireCommissioning(Actor{ID: outsider, Admin: true}, commissioning, performing, "start"); err != nil {
		t.Fatalf("admin override rejected: %v", err)
	}
	err := RequireCommissioning(Actor{ID: performing}, commissioning, performing, "start")
	if err == nil {
		t.Fatal("performing party must not pass a commissioning check")
	}
	if !errors.Is(err, fault.NotAuthorized("")) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
}

func TestRequirePerforming(t *testing.T) {
	if err := RequirePerforming(Actor{ID: performing}, commissioning, performing, "resolve defect"); err != nil {
		t.Fatalf("performing party rejected: %v", err)
	}
	if err := RequirePerforming(Actor{ID: commissioning}, commissioning, performing, "resolve defect"); err == nil {
		t.Fatal("commissioning party must not pass a performing check")
	}
}

func TestRequireParticipant(t *testing.T) {
	if err := RequireParticipant(Actor{ID: performing}, commissioning, performing, "view"); err != nil {
		t.Fatalf("participant rejected: %v", err)
	}
	if err := RequireParticipant(Actor{ID: outsider}, commissioning, performing, "view"); err == nil {
		t.Fatal("outsider must not pass a participant check")
	}
}
