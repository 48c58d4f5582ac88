package engine

import (
	"context"
	"time"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/lifecycle"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/outbox"
	"github.com/gewerk/handover/services/acceptance-service/internal/party"
	"github.com/gewerk/handover/services/acceptance-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

type CreateInput struct {
	WorkItemID    string
	AppointmentID string
	ScheduledDate *time.Time
	Notes         string
}

// Create opens a PENDING acceptance for a work item whose completion has
// been requested. Referencing an accepted appointment adopts its agreed
// date as the scheduled date.
func (e *Engine) Create(ctx context.Context, actor party.Actor, in CreateInput) (model.Acceptance, error) {
	tx, err := e.acceptances.Begin(ctx)
	if err != nil {
		return model.Acceptance{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := e.workItems.GetForUpdate(ctx, tx, in.WorkItemID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Acceptance{}, fault.NotFound("work item %s not found", in.WorkItemID)
		}
		return model.Acceptance{}, err
	}
	if err := party.RequireCommissioning(actor, item.CommissioningPartyID, item.PerformingPartyID, "create acceptance"); err != nil {
		return model.Acceptance{}, err
	}
	if item.CompletionStatus != model.WorkCompletionRequested {
		return model.Acceptance{}, fault.Transition("create acceptance", item.CompletionStatus, model.WorkCompletionRequested)
	}

	scheduled := in.ScheduledDate
	if in.AppointmentID != "" {
		appt, err := e.appointments.GetForUpdate(ctx, tx, in.AppointmentID)
		if err != nil {
			if storage.IsNotFound(err) {
				return model.Acceptance{}, fault.NotFound("appointment %s not found", in.AppointmentID)
			}
			return model.Acceptance{}, err
		}
		if appt.WorkItemID != in.WorkItemID {
			return model.Acceptance{}, fault.Validation("appointment %s belongs to work item %s, not %s", appt.ID, appt.WorkItemID, in.WorkItemID)
		}
		if appt.Status != model.AppointmentAccepted {
			return model.Acceptance{}, fault.Transition("create acceptance from appointment", appt.Status, model.AppointmentAccepted)
		}
		if scheduled == nil {
			agreed := appt.ProposedDate
			if appt.CounterDate != nil {
				agreed = *appt.CounterDate
			}
			scheduled = &agreed
		}
	}

	acceptance := &model.Acceptance{
		WorkItemID:           in.WorkItemID,
		AppointmentID:        in.AppointmentID,
		CommissioningPartyID: item.CommissioningPartyID,
		PerformingPartyID:    item.PerformingPartyID,
		CreatedBy:            actor.ID,
		ScheduledDate:        scheduled,
		Notes:                in.Notes,
	}
	id, err := e.acceptances.Insert(ctx, tx, acceptance)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.Acceptance{}, fault.InvalidState("work item %s already has an open acceptance", in.WorkItemID)
		}
		return model.Acceptance{}, err
	}

	if err := e.workItems.SetCompletionStatus(ctx, tx, item.ID, model.WorkUnderReview); err != nil {
		return model.Acceptance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Acceptance{}, err
	}
	return e.acceptances.Get(ctx, id)
}

type StartInput struct {
	AcceptanceID string
}

// Start moves PENDING to IN_PROGRESS and locks the referenced
// appointment for the duration of the walkthrough.
func (e *Engine) Start(ctx context.Context, actor party.Actor, in StartInput) (model.Acceptance, error) {
	tx, err := e.acceptances.Begin(ctx)
	if err != nil {
		return model.Acceptance{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.acceptances.GetForUpdate(ctx, tx, in.AcceptanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Acceptance{}, fault.NotFound("acceptance %s not found", in.AcceptanceID)
		}
		return model.Acceptance{}, err
	}
	if err := party.RequireCommissioning(actor, a.CommissioningPartyID, a.PerformingPartyID, "start acceptance"); err != nil {
		return model.Acceptance{}, err
	}
	if err := lifecycle.GuardOp("start", a.Status, model.StatusInProgress); err != nil {
		return model.Acceptance{}, err
	}

	startedAt, err := e.acceptances.Start(ctx, tx, a.ID)
	if err != nil {
		return model.Acceptance{}, err
	}
	if a.AppointmentID != "" {
		if err := e.appointments.Lock(ctx, tx, a.AppointmentID); err != nil {
			return model.Acceptance{}, err
		}
	}

	if err := e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "acceptance",
		AggregateID:   a.ID,
		EventType:     outbox.TopicAcceptanceStarted,
		Payload: mustJSON(map[string]any{
			"acceptance_id":          a.ID,
			"work_item_id":           a.WorkItemID,
			"commissioning_party_id": a.CommissioningPartyID,
			"performing_party_id":    a.PerformingPartyID,
			"started_at":             rfc3339(startedAt),
		}),
	}); err != nil {
		return model.Acceptance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Acceptance{}, err
	}
	return e.acceptances.Get(ctx, a.ID)
}

type CompleteInput struct {
	AcceptanceID string
	Accepted     bool
	Notes        string
	Rating       *RatingInput
	Defects      []DefectInput
}

// Complete ends the walkthrough. Defects force REQUIRES_REVISION
// regardless of the verdict; otherwise the verdict decides the terminal
// status. A racing second caller blocks on the row lock and then fails
// the status check.
func (e *Engine) Complete(ctx context.Context, actor party.Actor, in CompleteInput) (model.Acceptance, error) {
	if in.Rating != nil {
		if err := in.Rating.validate(); err != nil {
			return model.Acceptance{}, err
		}
	}
	for _, d := range in.Defects {
		if err := d.validate(); err != nil {
			return model.Acceptance{}, err
		}
	}

	tx, err := e.acceptances.Begin(ctx)
	if err != nil {
		return model.Acceptance{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.acceptances.GetForUpdate(ctx, tx, in.AcceptanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Acceptance{}, fault.NotFound("acceptance %s not found", in.AcceptanceID)
		}
		return model.Acceptance{}, err
	}
	if err := party.RequireCommissioning(actor, a.CommissioningPartyID, a.PerformingPartyID, "complete acceptance"); err != nil {
		return model.Acceptance{}, err
	}

	outcome := lifecycle.CompletionOutcome(in.Accepted, len(in.Defects))
	if err := lifecycle.GuardOp("complete", a.Status, outcome); err != nil {
		return model.Acceptance{}, err
	}

	if outcome == model.StatusRequiresRevision {
		completedAt, err := e.acceptances.MarkRevision(ctx, tx, a.ID, in.Notes)
		if err != nil {
			return model.Acceptance{}, err
		}
		for i := range in.Defects {
			if _, err := e.recordDefect(ctx, tx, a, &in.Defects[i]); err != nil {
				return model.Acceptance{}, err
			}
		}
		if err := e.workItems.SetCompletionStatus(ctx, tx, a.WorkItemID, model.WorkRevisionRequested); err != nil {
			return model.Acceptance{}, err
		}
		if err := e.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "acceptance",
			AggregateID:   a.ID,
			EventType:     outbox.TopicRevisionRequested,
			Payload: mustJSON(map[string]any{
				"acceptance_id":          a.ID,
				"work_item_id":           a.WorkItemID,
				"commissioning_party_id": a.CommissioningPartyID,
				"performing_party_id":    a.PerformingPartyID,
				"defect_count":           len(in.Defects),
				"completed_at":           rfc3339(completedAt),
			}),
		}); err != nil {
			return model.Acceptance{}, err
		}
	} else {
		if err := e.close(ctx, tx, a, outcome, in.Accepted, in.Notes, in.Rating, false); err != nil {
			return model.Acceptance{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Acceptance{}, err
	}
	return e.acceptances.Get(ctx, a.ID)
}

type FinalizeInput struct {
	AcceptanceID string
	Accepted     bool
	Notes        string
	Rating       *RatingInput
}

// Finalize ends the revision loop with a terminal verdict. Accepting
// requires every recorded defect to be resolved and a rating.
func (e *Engine) Finalize(ctx context.Context, actor party.Actor, in FinalizeInput) (model.Acceptance, error) {
	if in.Accepted && in.Rating == nil {
		return model.Acceptance{}, fault.Validation("finalizing as accepted requires a rating")
	}
	if in.Rating != nil {
		if err := in.Rating.validate(); err != nil {
			return model.Acceptance{}, err
		}
	}

	tx, err := e.acceptances.Begin(ctx)
	if err != nil {
		return model.Acceptance{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.acceptances.GetForUpdate(ctx, tx, in.AcceptanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Acceptance{}, fault.NotFound("acceptance %s not found", in.AcceptanceID)
		}
		return model.Acceptance{}, err
	}
	if err := party.RequireCommissioning(actor, a.CommissioningPartyID, a.PerformingPartyID, "finalize acceptance"); err != nil {
		return model.Acceptance{}, err
	}

	outcome := lifecycle.FinalizeOutcome(in.Accepted)
	if err := lifecycle.GuardOp("finalize", a.Status, outcome); err != nil {
		return model.Acceptance{}, err
	}

	if in.Accepted {
		counts, err := e.defects.CountByAcceptanceTx(ctx, tx, a.ID)
		if err != nil {
			return model.Acceptance{}, err
		}
		if counts.Pending() > 0 {
			return model.Acceptance{}, fault.Validation("cannot finalize as accepted: %d of %d defects unresolved", counts.Pending(), counts.Total)
		}
	}

	if err := e.close(ctx, tx, a, outcome, in.Accepted, in.Notes, in.Rating, true); err != nil {
		return model.Acceptance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Acceptance{}, err
	}
	return e.acceptances.Get(ctx, a.ID)
}

// close writes the terminal status, the optional rating (in the same
// transaction) and the finalized/rating outbox events.
func (e *Engine) close(ctx context.Context, tx pgx.Tx, a model.Acceptance, outcome string, accepted bool, notes string, rating *RatingInput, final bool) error {
	closure := storage.Closure{
		Status:             outcome,
		Accepted:           accepted,
		CommissioningNotes: notes,
		Final:              final,
	}
	if rating != nil {
		quality := rating.Quality
		timeliness := rating.Timeliness
		overall := rating.OverallInt()
		closure.QualityRating = &quality
		closure.TimelinessRating = &timeliness
		closure.OverallRating = &overall
	}

	closedAt, err := e.acceptances.Close(ctx, tx, a.ID, closure)
	if err != nil {
		return err
	}

	if err := e.workItems.SetCompletionStatus(ctx, tx, a.WorkItemID, lifecycle.WorkItemStatusFor(outcome)); err != nil {
		return err
	}

	if rating != nil {
		ratingID, err := e.ratings.Upsert(ctx, tx, &model.Rating{
			CommissioningPartyID: a.CommissioningPartyID,
			PerformingPartyID:    a.PerformingPartyID,
			WorkItemID:           a.WorkItemID,
			Quality:              rating.Quality,
			Timeliness:           rating.Timeliness,
			Communication:        rating.Communication,
			Value:                rating.Value,
			Overall:              rating.Overall(),
			Comment:              rating.Comment,
			Public:               rating.Public,
		})
		if err != nil {
			return err
		}
		if err := e.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "rating",
			AggregateID:   ratingID,
			EventType:     outbox.TopicRatingRecorded,
			Payload: mustJSON(map[string]any{
				"rating_id":              ratingID,
				"commissioning_party_id": a.CommissioningPartyID,
				"performing_party_id":    a.PerformingPartyID,
				"work_item_id":           a.WorkItemID,
				"quality":                rating.Quality,
				"timeliness":             rating.Timeliness,
				"communication":          rating.Communication,
				"value":                  rating.Value,
				"overall":                rating.Overall(),
				"public":                 rating.Public,
				"recorded_at":            rfc3339(closedAt),
			}),
		}); err != nil {
			return err
		}
	}

	payload := map[string]any{
		"acceptance_id":          a.ID,
		"work_item_id":           a.WorkItemID,
		"commissioning_party_id": a.CommissioningPartyID,
		"performing_party_id":    a.PerformingPartyID,
		"status":                 outcome,
		"accepted":               accepted,
		"closed_at":              rfc3339(closedAt),
	}
	if outcome == model.StatusAccepted {
		payload["warranty_start_date"] = closedAt.UTC().Format("2006-01-02")
		payload["warranty_period_months"] = a.WarrantyPeriodMonths
	}
	return e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "acceptance",
		AggregateID:   a.ID,
		EventType:     outbox.TopicAcceptanceFinalized,
		Payload:       mustJSON(payload),
	})
}
