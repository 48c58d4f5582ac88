package engine

import (
	"context"
	"time"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/outbox"
	"github.com/gewerk/handover/services/acceptance-service/internal/party"
	"github.com/gewerk/handover/services/acceptance-service/internal/storage"
)

type ProposeInput struct {
	WorkItemID   string
	InviteeID    string
	ProposedDate time.Time
	Notes        string
}

// Propose opens an appointment negotiation for a work item. Only the
// commissioning party (or an admin) proposes, and the invitee must be the
// work item's performing party.
func (e *Engine) Propose(ctx context.Context, actor party.Actor, in ProposeInput) (model.Appointment, error) {
	if in.ProposedDate.IsZero() {
		return model.Appointment{}, fault.Validation("proposed_date is required")
	}
	if !in.ProposedDate.After(time.Now()) {
		return model.Appointment{}, fault.Validation("proposed_date must be in the future")
	}

	tx, err := e.appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := e.workItems.GetForUpdate(ctx, tx, in.WorkItemID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, fault.NotFound("work item %s not found", in.WorkItemID)
		}
		return model.Appointment{}, err
	}

	if err := party.RequireCommissioning(actor, item.CommissioningPartyID, item.PerformingPartyID, "propose appointment"); err != nil {
		return model.Appointment{}, err
	}
	if err := requireInvitee(in.InviteeID, item); err != nil {
		return model.Appointment{}, err
	}

	if active, ok, err := e.appointments.ActiveByWorkItem(ctx, tx, in.WorkItemID); err != nil {
		return model.Appointment{}, err
	} else if ok {
		return model.Appointment{}, fault.InvalidState("work item %s already has an active appointment %s in status %s", item.ID, active.ID, active.Status)
	}

	if err := e.appointments.SupersedeDeclined(ctx, tx, in.WorkItemID); err != nil {
		return model.Appointment{}, err
	}

	appt := &model.Appointment{
		WorkItemID:   in.WorkItemID,
		ProposerID:   actor.ID,
		InviteeID:    in.InviteeID,
		ProposedDate: in.ProposedDate,
		Notes:        in.Notes,
	}
	id, err := e.appointments.Insert(ctx, tx, appt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.Appointment{}, fault.InvalidState("work item %s already has an active appointment", item.ID)
		}
		return model.Appointment{}, err
	}

	if err := e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.TopicAppointmentProposed,
		Payload: mustJSON(map[string]any{
			"appointment_id":  id,
			"work_item_id":    in.WorkItemID,
			"work_item_title": item.Title,
			"proposer_id":     actor.ID,
			"invitee_id":      in.InviteeID,
			"proposed_date":   rfc3339(in.ProposedDate),
			"notes":           in.Notes,
		}),
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	result, err := e.appointments.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	return result, nil
}

type RespondInput struct {
	AppointmentID string
	Accepted      bool
	CounterDate   *time.Time
	Message       string
}

// Respond answers the live proposal. While the appointment is proposed
// only the invitee may answer; after a counter-proposal the ball is back
// with the original proposer. Accept settles the date, a counter date
// swaps the turn, anything else declines.
// requireInvitee pins the invitee to the party assigned to perform the
// work; anyone else is out of scope for the negotiation.
func requireInvitee(inviteeID string, item model.WorkItem) error {
	if inviteeID != item.PerformingPartyID {
		return fault.NotAuthorized("invitee %s is not the performing party of work item %s", inviteeID, item.ID)
	}
	return nil
}

// respondTransition decides the next appointment status for a response.
// Turn-taking: the invitee answers a proposal, the proposer answers a
// counter-proposal, and at most one counter round is allowed.
func respondTransition(appt model.Appointment, actor party.Actor, in RespondInput) (string, *time.Time, error) {
	var mayRespond string
	switch appt.Status {
	case model.AppointmentProposed:
		mayRespond = appt.InviteeID
	case model.AppointmentCounterProposed:
		mayRespond = appt.ProposerID
	default:
		return "", nil, fault.Transition("respond", appt.Status, model.AppointmentProposed+" or "+model.AppointmentCounterProposed)
	}
	if actor.ID != mayRespond && !actor.Admin {
		return "", nil, fault.NotAuthorized("appointment %s awaits a response from %s, not %s", appt.ID, mayRespond, actor.ID)
	}

	switch {
	case in.Accepted:
		return model.AppointmentAccepted, appt.CounterDate, nil
	case in.CounterDate != nil:
		if appt.Status == model.AppointmentCounterProposed {
			return "", nil, fault.Validation("appointment %s was already counter-proposed once, accept or decline", appt.ID)
		}
		if !in.CounterDate.After(time.Now()) {
			return "", nil, fault.Validation("counter_date must be in the future")
		}
		return model.AppointmentCounterProposed, in.CounterDate, nil
	default:
		return model.AppointmentDeclined, appt.CounterDate, nil
	}
}

func (e *Engine) Respond(ctx context.Context, actor party.Actor, in RespondInput) (model.Appointment, error) {
	tx, err := e.appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := e.appointments.GetForUpdate(ctx, tx, in.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, fault.NotFound("appointment %s not found", in.AppointmentID)
		}
		return model.Appointment{}, err
	}

	if appt.Locked {
		return model.Appointment{}, fault.InvalidState("appointment %s is locked by a started acceptance", appt.ID)
	}

	status, counterDate, err := respondTransition(appt, actor, in)
	if err != nil {
		return model.Appointment{}, err
	}

	respondedAt, err := e.appointments.SetResponse(ctx, tx, appt.ID, status, counterDate, in.Message)
	if err != nil {
		return model.Appointment{}, err
	}

	notify := appt.InviteeID
	if actor.ID == appt.InviteeID {
		notify = appt.ProposerID
	}
	if err := e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentResponded,
		Payload: mustJSON(map[string]any{
			"appointment_id":  appt.ID,
			"work_item_id":    appt.WorkItemID,
			"responder_id":    actor.ID,
			"notify_party_id": notify,
			"status":          status,
			"counter_date":    rfc3339Ptr(counterDate),
			"message":         in.Message,
			"responded_at":    rfc3339(respondedAt),
		}),
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	result, err := e.appointments.Get(ctx, appt.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	return result, nil
}
