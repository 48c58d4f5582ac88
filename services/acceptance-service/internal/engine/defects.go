package engine

import (
	"context"
	"time"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/outbox"
	"github.com/gewerk/handover/services/acceptance-service/internal/party"
	"github.com/gewerk/handover/services/acceptance-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// recordDefect inserts one defect and its recorded event inside the
// caller's transaction.
func (e *Engine) recordDefect(ctx context.Context, tx pgx.Tx, a model.Acceptance, in *DefectInput) (string, error) {
	id, err := e.defects.Insert(ctx, tx, &model.Defect{
		AcceptanceID: a.ID,
		Title:        in.Title,
		Description:  in.Description,
		Severity:     in.Severity,
		Location:     in.Location,
		Room:         in.Room,
		Photos:       in.Photos,
		Deadline:     in.Deadline,
	})
	if err != nil {
		return "", err
	}
	return id, e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "defect",
		AggregateID:   id,
		EventType:     outbox.TopicDefectRecorded,
		Payload: mustJSON(map[string]any{
			"defect_id":              id,
			"acceptance_id":          a.ID,
			"work_item_id":           a.WorkItemID,
			"commissioning_party_id": a.CommissioningPartyID,
			"performing_party_id":    a.PerformingPartyID,
			"title":                  in.Title,
			"severity":               in.Severity,
			"location":               in.Location,
			"room":                   in.Room,
			"deadline":               rfc3339Ptr(in.Deadline),
		}),
	})
}

type LogDefectInput struct {
	AcceptanceID string
	Defect       DefectInput
}

// LogDefect records a defect outside the Complete flow: during a
// running walkthrough, during revision, or within the grace window
// after closure. Late defects never reopen the acceptance.
func (e *Engine) LogDefect(ctx context.Context, actor party.Actor, in LogDefectInput) (model.Defect, error) {
	if err := in.Defect.validate(); err != nil {
		return model.Defect{}, err
	}

	tx, err := e.acceptances.Begin(ctx)
	if err != nil {
		return model.Defect{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.acceptances.GetForUpdate(ctx, tx, in.AcceptanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Defect{}, fault.NotFound("acceptance %s not found", in.AcceptanceID)
		}
		return model.Defect{}, err
	}
	if err := party.RequireCommissioning(actor, a.CommissioningPartyID, a.PerformingPartyID, "log defect"); err != nil {
		return model.Defect{}, err
	}

	switch a.Status {
	case model.StatusInProgress, model.StatusRequiresRevision:
	case model.StatusAccepted, model.StatusRejected:
		closedAt := a.FinalizedAt
		if closedAt == nil {
			closedAt = a.CompletedAt
		}
		if closedAt == nil || time.Since(*closedAt) > e.graceWindow {
			return model.Defect{}, fault.InvalidState("acceptance %s closed more than %s ago, defects can no longer be logged", a.ID, e.graceWindow)
		}
	default:
		return model.Defect{}, fault.Transition("log defect", a.Status, model.StatusInProgress)
	}

	id, err := e.recordDefect(ctx, tx, a, &in.Defect)
	if err != nil {
		return model.Defect{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Defect{}, err
	}
	return e.defects.Get(ctx, id)
}

type ResolveDefectInput struct {
	DefectID string
	Notes    string
}

// ResolveDefect marks one defect fixed. The acceptance row is locked
// before the defect row so concurrent resolvers and batch submitters
// serialize in the same order.
func (e *Engine) ResolveDefect(ctx context.Context, actor party.Actor, in ResolveDefectInput) (model.Defect, error) {
	tx, err := e.acceptances.Begin(ctx)
	if err != nil {
		return model.Defect{}, fault.Dependency(err, "database unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acceptanceID, err := e.defects.AcceptanceID(ctx, tx, in.DefectID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Defect{}, fault.NotFound("defect %s not found", in.DefectID)
		}
		return model.Defect{}, err
	}
	a, err := e.acceptances.GetForUpdate(ctx, tx, acceptanceID)
	if err != nil {
		return model.Defect{}, err
	}
	if err := party.RequirePerforming(actor, a.CommissioningPartyID, a.PerformingPartyID, "resolve defect"); err != nil {
		return model.Defect{}, err
	}

	d, err := e.defects.GetForUpdate(ctx, tx, in.DefectID)
	if err != nil {
		return model.Defect{}, err
	}
	if d.Resolved {
		// Re-resolving is a no-op: return the record as it stands.
		return d, nil
	}

	resolvedAt, err := e.defects.Resolve(ctx, tx, d.ID, actor.ID, in.Notes)
	if err != nil {
		return model.Defect{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Defect{}, err
	}

	d.Resolved = true
	d.ResolvedAt = &resolvedAt
	d.ResolvedBy = actor.ID
	d.ResolutionNotes = in.Notes
	return d, nil
}

type SubmitResolutionInput struct {
	AcceptanceID string
	Message      string
}

// SubmitResolutionBatch declares every defect fixed and hands the
// acceptance back for finalization. Submitting again after the work
// item already moved to defects_resolved is a no-op success.
func (e *Engine) SubmitResolutionBatch(ctx context.Context, actor party.Actor, in SubmitResolutionInput) (model.Acceptance, error) {
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
	if err := party.RequirePerforming(actor, a.CommissioningPartyID, a.PerformingPartyID, "submit resolution"); err != nil {
		return model.Acceptance{}, err
	}
	if a.Status != model.StatusRequiresRevision {
		return model.Acceptance{}, fault.Transition("submit resolution", a.Status, model.StatusRequiresRevision)
	}

	item, err := e.workItems.GetForUpdate(ctx, tx, a.WorkItemID)
	if err != nil {
		return model.Acceptance{}, err
	}
	if item.CompletionStatus == model.WorkDefectsResolved {
		return a, nil
	}

	counts, err := e.defects.CountByAcceptanceTx(ctx, tx, a.ID)
	if err != nil {
		return model.Acceptance{}, err
	}
	if counts.Pending() > 0 {
		return model.Acceptance{}, fault.Validation("cannot submit resolution: %d of %d defects unresolved", counts.Pending(), counts.Total)
	}

	if in.Message != "" {
		if err := e.acceptances.SetPerformingNotes(ctx, tx, a.ID, in.Message); err != nil {
			return model.Acceptance{}, err
		}
	}
	if err := e.workItems.SetCompletionStatus(ctx, tx, item.ID, model.WorkDefectsResolved); err != nil {
		return model.Acceptance{}, err
	}

	if err := e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "acceptance",
		AggregateID:   a.ID,
		EventType:     outbox.TopicResolutionSubmitted,
		Payload: mustJSON(map[string]any{
			"acceptance_id":          a.ID,
			"work_item_id":           a.WorkItemID,
			"commissioning_party_id": a.CommissioningPartyID,
			"performing_party_id":    a.PerformingPartyID,
			"resolved_defects":       counts.Resolved,
			"message":                in.Message,
		}),
	}); err != nil {
		return model.Acceptance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Acceptance{}, err
	}
	return e.acceptances.Get(ctx, a.ID)
}

// ResolutionStatus is the live defect projection for one acceptance.
type ResolutionStatus struct {
	AcceptanceID string
	Status       string
	Total        int
	Resolved     int
	Pending      int
	Defects      []model.Defect
}

func (e *Engine) GetResolutionStatus(ctx context.Context, actor party.Actor, acceptanceID string) (ResolutionStatus, error) {
	a, err := e.acceptances.Get(ctx, acceptanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return ResolutionStatus{}, fault.NotFound("acceptance %s not found", acceptanceID)
		}
		return ResolutionStatus{}, err
	}
	if err := party.RequireParticipant(actor, a.CommissioningPartyID, a.PerformingPartyID, "view resolution status"); err != nil {
		return ResolutionStatus{}, err
	}

	defects, err := e.defects.ListByAcceptance(ctx, acceptanceID)
	if err != nil {
		return ResolutionStatus{}, err
	}
	counts := storage.Counts{Total: len(defects)}
	for _, d := range defects {
		if d.Resolved {
			counts.Resolved++
		}
	}
	return ResolutionStatus{
		AcceptanceID: acceptanceID,
		Status:       a.Status,
		Total:        counts.Total,
		Resolved:     counts.Resolved,
		Pending:      counts.Pending(),
		Defects:      defects,
	}, nil
}
