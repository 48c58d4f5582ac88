package engine

import (
	"context"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/party"
	"github.com/gewerk/handover/services/acceptance-service/internal/storage"
)

// AcceptanceDetail is an acceptance with its defect list.
type AcceptanceDetail struct {
	Acceptance model.Acceptance
	Defects    []model.Defect
}

func (e *Engine) GetAcceptance(ctx context.Context, actor party.Actor, id string) (AcceptanceDetail, error) {
	a, err := e.acceptances.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return AcceptanceDetail{}, fault.NotFound("acceptance %s not found", id)
		}
		return AcceptanceDetail{}, err
	}
	if err := party.RequireParticipant(actor, a.CommissioningPartyID, a.PerformingPartyID, "view acceptance"); err != nil {
		return AcceptanceDetail{}, err
	}
	defects, err := e.defects.ListByAcceptance(ctx, id)
	if err != nil {
		return AcceptanceDetail{}, err
	}
	return AcceptanceDetail{Acceptance: a, Defects: defects}, nil
}

// ListAcceptances returns the actor's acceptances, newest first.
func (e *Engine) ListAcceptances(ctx context.Context, actor party.Actor, limit int) ([]model.Acceptance, error) {
	return e.acceptances.ListByActor(ctx, actor.ID, limit)
}

func (e *Engine) AcceptanceSummary(ctx context.Context, actor party.Actor) (storage.Summary, error) {
	return e.acceptances.SummaryByActor(ctx, actor.ID)
}

func (e *Engine) GetAppointment(ctx context.Context, actor party.Actor, id string) (model.Appointment, error) {
	appt, err := e.appointments.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, fault.NotFound("appointment %s not found", id)
		}
		return model.Appointment{}, err
	}
	if err := party.RequireParticipant(actor, appt.ProposerID, appt.InviteeID, "view appointment"); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// RatingSummary is public profile data and needs no participant check.
func (e *Engine) RatingSummary(ctx context.Context, performingPartyID string) (storage.PartySummary, error) {
	if performingPartyID == "" {
		return storage.PartySummary{}, fault.Validation("performing_party_id is required")
	}
	return e.ratings.SummaryByPerformingParty(ctx, performingPartyID)
}
