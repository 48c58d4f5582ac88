package engine

import (
	"testing"
	"time"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/party"
)

func proposedAppointment() model.Appointment {
	return model.Appointment{
		ID:         "appt-1",
		ProposerID: "commissioning-1",
		InviteeID:  "performing-1",
		Status:     model.AppointmentProposed,
	}
}

func TestRespondTransitionInviteeAccepts(t *testing.T) {
	status, _, err := respondTransition(proposedAppointment(), party.Actor{ID: "performing-1"}, RespondInput{Accepted: true})
	if err != nil {
		t.Fatalf("respondTransition: %v", err)
	}
	if status != model.AppointmentAccepted {
		t.Errorf("status = %s, want %s", status, model.AppointmentAccepted)
	}
}

func TestRespondTransitionInviteeDeclines(t *testing.T) {
	status, _, err := respondTransition(proposedAppointment(), party.Actor{ID: "performing-1"}, RespondInput{})
	if err != nil {
		t.Fatalf("respondTransition: %v", err)
	}
	if status != model.AppointmentDeclined {
		t.Errorf("status = %s, want %s", status, model.AppointmentDeclined)
	}
}

func TestRespondTransitionCounterFlow(t *testing.T) {
	counter := time.Now().Add(48 * time.Hour)
	status, date, err := respondTransition(proposedAppointment(), party.Actor{ID: "performing-1"}, RespondInput{CounterDate: &counter})
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if status != model.AppointmentCounterProposed {
		t.Errorf("status = %s, want %s", status, model.AppointmentCounterProposed)
	}
	if date == nil || !date.Equal(counter) {
		t.Errorf("counter date = %v, want %v", date, counter)
	}

	// The proposer now has the turn; only accept or decline remain.
	countered := proposedAppointment()
	countered.Status = model.AppointmentCounterProposed
	countered.CounterDate = &counter

	if _, _, err := respondTransition(countered, party.Actor{ID: "performing-1"}, RespondInput{Accepted: true}); err == nil {
		t.Error("invitee responded to its own counter-proposal")
	}

	status, date, err = respondTransition(countered, party.Actor{ID: "commissioning-1"}, RespondInput{Accepted: true})
	if err != nil {
		t.Fatalf("proposer accept: %v", err)
	}
	if status != model.AppointmentAccepted {
		t.Errorf("status = %s, want %s", status, model.AppointmentAccepted)
	}
	if date == nil || !date.Equal(counter) {
		t.Errorf("accepted counter date = %v, want %v", date, counter)
	}

	second := time.Now().Add(96 * time.Hour)
	_, _, err = respondTransition(countered, party.Actor{ID: "commissioning-1"}, RespondInput{CounterDate: &second})
	if err == nil {
		t.Fatal("second counter round allowed")
	}
	if fault.HTTPStatus(err) != 422 {
		t.Errorf("HTTPStatus = %d, want 422", fault.HTTPStatus(err))
	}
}

func TestRespondTransitionWrongTurn(t *testing.T) {
	_, _, err := respondTransition(proposedAppointment(), party.Actor{ID: "commissioning-1"}, RespondInput{Accepted: true})
	if err == nil {
		t.Fatal("proposer responded to its own proposal")
	}
	if fault.HTTPStatus(err) != 403 {
		t.Errorf("HTTPStatus = %d, want 403", fault.HTTPStatus(err))
	}

	// Admin override may respond on either turn.
	if _, _, err := respondTransition(proposedAppointment(), party.Actor{ID: "ops", Admin: true}, RespondInput{Accepted: true}); err != nil {
		t.Errorf("admin response rejected: %v", err)
	}
}

func TestRespondTransitionSettledAppointment(t *testing.T) {
	settled := proposedAppointment()
	settled.Status = model.AppointmentAccepted
	_, _, err := respondTransition(settled, party.Actor{ID: "performing-1"}, RespondInput{Accepted: true})
	if err == nil {
		t.Fatal("response to a settled appointment allowed")
	}
	if fault.HTTPStatus(err) != 409 {
		t.Errorf("HTTPStatus = %d, want 409", fault.HTTPStatus(err))
	}
}

func TestRequireInvitee(t *testing.T) {
	item := model.WorkItem{
		ID:                   "wi-1",
		CommissioningPartyID: "commissioning-1",
		PerformingPartyID:    "performing-1",
	}
	if err := requireInvitee("performing-1", item); err != nil {
		t.Fatalf("performing party rejected as invitee: %v", err)
	}

	err := requireInvitee("outsider-9", item)
	if err == nil {
		t.Fatal("outsider accepted as invitee")
	}
	if fault.HTTPStatus(err) != 403 {
		t.Errorf("HTTPStatus = %d, want 403", fault.HTTPStatus(err))
	}
}

func TestRespondTransitionPastCounterDate(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	_, _, err := respondTransition(proposedAppointment(), party.Actor{ID: "performing-1"}, RespondInput{CounterDate: &past})
	if err == nil {
		t.Fatal("past counter date accepted")
	}
}
