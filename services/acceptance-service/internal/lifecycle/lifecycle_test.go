package lifecycle

import (
	"errors"
	"strings"
	"testing"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
)

var statuses = []string{
	model.StatusPending,
	model.StatusInProgress,
	model.StatusAccepted,
	model.StatusRejected,
	model.StatusRequiresRevision,
}

func TestTransitionMatrix(t *testing.T) {
	legal := map[[2]string]bool{
		{model.StatusPending, model.StatusInProgress}:          true,
		{model.StatusInProgress, model.StatusAccepted}:         true,
		{model.StatusInProgress, model.StatusRejected}:         true,
		{model.StatusInProgress, model.StatusRequiresRevision}: true,
		{model.StatusRequiresRevision, model.StatusAccepted}:   true,
		{model.StatusRequiresRevision, model.StatusRejected}:   true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[[2]string{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesAdmitNothing(t *testing.T) {
	for _, terminal := range []string{model.StatusAccepted, model.StatusRejected} {
		for _, to := range statuses {
			if CanTransition(terminal, to) {
				t.Errorf("terminal status %s must not transition to %s", terminal, to)
			}
		}
	}
}

func TestGuardNamesStatuses(t *testing.T) {
	err := Guard("start", model.StatusAccepted, model.StatusInProgress)
	if err == nil {
		t.Fatal("expected guard error")
	}
	if !errors.Is(err, fault.InvalidState("")) {
		t.Fatalf("guard error should be InvalidState, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, model.StatusAccepted) || !strings.Contains(msg, model.StatusPending) {
		t.Fatalf("guard error should name current and required status, got %q", msg)
	}

	if err := Guard("start", model.StatusPending, model.StatusInProgress); err != nil {
		t.Fatalf("legal transition rejected: %v", err)
	}
}

func TestGuardOpPinsStartingStatus(t *testing.T) {
	cases := []struct {
		name     string
		op       string
		from     string
		to       string
		required string
		ok       bool
	}{
		{"start from pending", "start", model.StatusPending, model.StatusInProgress, "", true},
		{"start from in_progress", "start", model.StatusInProgress, model.StatusInProgress, model.StatusPending, false},
		{"complete from in_progress", "complete", model.StatusInProgress, model.StatusAccepted, "", true},
		{"complete with defects", "complete", model.StatusInProgress, model.StatusRequiresRevision, "", true},
		{"complete from requires_revision", "complete", model.StatusRequiresRevision, model.StatusAccepted, model.StatusInProgress, false},
		{"complete from pending", "complete", model.StatusPending, model.StatusAccepted, model.StatusInProgress, false},
		{"complete twice", "complete", model.StatusAccepted, model.StatusAccepted, model.StatusInProgress, false},
		{"finalize from requires_revision", "finalize", model.StatusRequiresRevision, model.StatusAccepted, "", true},
		{"finalize rejection", "finalize", model.StatusRequiresRevision, model.StatusRejected, "", true},
		{"finalize from in_progress", "finalize", model.StatusInProgress, model.StatusAccepted, model.StatusRequiresRevision, false},
		{"finalize from pending", "finalize", model.StatusPending, model.StatusRejected, model.StatusRequiresRevision, false},
	}
	for _, c := range cases {
		err := GuardOp(c.op, c.from, c.to)
		if c.ok {
			if err != nil {
				t.Errorf("%s: GuardOp = %v, want nil", c.name, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s: GuardOp = nil, want InvalidState", c.name)
			continue
		}
		msg := err.Error()
		if !strings.Contains(msg, c.from) || !strings.Contains(msg, c.required) {
			t.Errorf("%s: error should name %s and %s, got %q", c.name, c.from, c.required, msg)
		}
	}
}

// An accepted verdict with no defects on a revision-loop record must not
// slip through complete; that record can only leave via finalize.
func TestGuardOpCompleteRejectsRevisionRecord(t *testing.T) {
	err := GuardOp("complete", model.StatusRequiresRevision, CompletionOutcome(true, 0))
	if err == nil {
		t.Fatal("complete allowed on a requires_revision acceptance")
	}
	if !errors.Is(err, fault.InvalidState("")) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestCompletionOutcome(t *testing.T) {
	cases := []struct {
		accepted    bool
		defectCount int
		want        string
	}{
		{true, 0, model.StatusAccepted},
		{false, 0, model.StatusRejected},
		{true, 1, model.StatusRequiresRevision},
		{false, 3, model.StatusRequiresRevision},
	}
	for _, c := range cases {
		if got := CompletionOutcome(c.accepted, c.defectCount); got != c.want {
			t.Errorf("CompletionOutcome(%v, %d) = %s, want %s", c.accepted, c.defectCount, got, c.want)
		}
	}
}

func TestWorkItemStatusFor(t *testing.T) {
	cases := map[string]string{
		model.StatusInProgress:       model.WorkUnderReview,
		model.StatusRequiresRevision: model.WorkRevisionRequested,
		model.StatusAccepted:         model.WorkCompleted,
		model.StatusRejected:         model.WorkRejected,
	}
	for status, want := range cases {
		if got := WorkItemStatusFor(status); got != want {
			t.Errorf("WorkItemStatusFor(%s) = %s, want %s", status, got, want)
		}
	}
}
