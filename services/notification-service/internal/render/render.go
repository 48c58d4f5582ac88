// Package render turns lifecycle events into notification subjects and
// bodies. Templates are deliberately plain text; formatting for rich
// channels happens at the provider.
package render

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Body    string
}

func str(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return strings.TrimSpace(v)
}

func num(payload map[string]any, key string) int {
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return 0
}

func date(payload map[string]any, key string) string {
	raw := str(payload, key)
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
}

// Render maps an event type to a message. ok is false for event types
// the notification service does not announce.
func Render(eventType string, payload map[string]any) (Message, bool) {
	switch eventType {
	case "appointment.proposed.v1":
		title := str(payload, "work_item_title")
		if title == "" {
			title = str(payload, "work_item_id")
		}
		return Message{
			Subject: "Acceptance appointment proposed",
			Body: fmt.Sprintf("An acceptance appointment for %q has been proposed for %s. Please accept, decline or propose another date.",
				title, date(payload, "proposed_date")),
		}, true

	case "appointment.responded.v1":
		switch str(payload, "status") {
		case "accepted":
			return Message{
				Subject: "Appointment confirmed",
				Body:    "Your proposed acceptance appointment has been confirmed.",
			}, true
		case "declined":
			return Message{
				Subject: "Appointment declined",
				Body:    "Your proposed acceptance appointment was declined. Please propose a new date.",
			}, true
		case "counter_proposed":
			return Message{
				Subject: "New appointment date proposed",
				Body: fmt.Sprintf("A different appointment date has been proposed: %s. Please accept or decline.",
					date(payload, "counter_date")),
			}, true
		}
		return Message{}, false

	case "acceptance.revision_requested.v1":
		n := num(payload, "defect_count")
		return Message{
			Subject: "Defects recorded, revision required",
			Body:    fmt.Sprintf("The acceptance walkthrough recorded %d defect(s). Please resolve them and submit the resolution.", n),
		}, true

	case "acceptance.resolution_submitted.v1":
		return Message{
			Subject: "Defect resolution submitted",
			Body:    "All recorded defects have been reported as resolved. Please verify and finalize the acceptance.",
		}, true

	case "acceptance.finalized.v1":
		if accepted, _ := payload["accepted"].(bool); accepted {
			body := "The work has been accepted."
			if ws := str(payload, "warranty_start_date"); ws != "" {
				body = fmt.Sprintf("The work has been accepted. The warranty period starts on %s.", ws)
			}
			return Message{Subject: "Work accepted", Body: body}, true
		}
		return Message{
			Subject: "Acceptance rejected",
			Body:    "The acceptance has been finalized as rejected.",
		}, true

	case "task.overdue.v1":
		title := str(payload, "title")
		return Message{
			Subject: "Follow-up task overdue",
			Body:    fmt.Sprintf("The follow-up task %q was due on %s and is still open.", title, date(payload, "due_at")),
		}, true
	}
	return Message{}, false
}
