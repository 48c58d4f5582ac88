package render

import (
	"strings"
	"testing"
)

func TestRenderAppointmentProposed(t *testing.T) {
	msg, ok := Render("appointment.proposed.v1", map[string]any{
		"work_item_title": "Electrical installation",
		"proposed_date":   "2025-04-01T10:00:00Z",
	})
	if !ok {
		t.Fatal("expected a message")
	}
	if !strings.Contains(msg.Body, "Electrical installation") {
		t.Errorf("body missing work item title: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "01 Apr 2025") {
		t.Errorf("body missing formatted date: %q", msg.Body)
	}
}

func TestRenderRespondedStatuses(t *testing.T) {
	for _, status := range []string{"accepted", "declined", "counter_proposed"} {
		msg, ok := Render("appointment.responded.v1", map[string]any{
			"status":       status,
			"counter_date": "2025-04-02T09:00:00Z",
		})
		if !ok {
			t.Fatalf("status %s: expected a message", status)
		}
		if msg.Subject == "" || msg.Body == "" {
			t.Errorf("status %s: empty message", status)
		}
	}

	if _, ok := Render("appointment.responded.v1", map[string]any{"status": "proposed"}); ok {
		t.Error("status proposed should not notify")
	}
}

func TestRenderRevisionRequestedCountsDefects(t *testing.T) {
	msg, ok := Render("acceptance.revision_requested.v1", map[string]any{
		"defect_count": float64(3),
	})
	if !ok {
		t.Fatal("expected a message")
	}
	if !strings.Contains(msg.Body, "3 defect(s)") {
		t.Errorf("body missing defect count: %q", msg.Body)
	}
}

func TestRenderFinalizedVerdicts(t *testing.T) {
	msg, ok := Render("acceptance.finalized.v1", map[string]any{
		"accepted":            true,
		"warranty_start_date": "2025-04-10",
	})
	if !ok {
		t.Fatal("expected a message")
	}
	if !strings.Contains(msg.Body, "2025-04-10") {
		t.Errorf("accepted body missing warranty start: %q", msg.Body)
	}

	msg, ok = Render("acceptance.finalized.v1", map[string]any{"accepted": false})
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Subject != "Acceptance rejected" {
		t.Errorf("rejected subject = %q", msg.Subject)
	}
}

func TestRenderUnknownEventType(t *testing.T) {
	if _, ok := Render("rating.recorded.v1", nil); ok {
		t.Error("rating events should not notify")
	}
}
