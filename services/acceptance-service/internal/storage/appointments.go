package storage

import (
	"context"
	"time"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id, work_item_id, proposer_id, invitee_id, proposed_date, status,
	counter_date, notes, response_message, responded_at, superseded, locked,
	created_at, updated_at
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.WorkItemID,
		&appt.ProposerID,
		&appt.InviteeID,
		&appt.ProposedDate,
		&appt.Status,
		&appt.CounterDate,
		&appt.Notes,
		&appt.ResponseMessage,
		&appt.RespondedAt,
		&appt.Superseded,
		&appt.Locked,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Insert relies on the appointments_one_active partial unique index: a
// second live proposal for the same work item fails with a unique
// violation, which the engine maps to InvalidState.
func (r *AppointmentRepository) Insert(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments (work_item_id, proposer_id, invitee_id, proposed_date, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, appt.WorkItemID, appt.ProposerID, appt.InviteeID, appt.ProposedDate, appt.Notes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

// SetResponse records the invitee's (or proposer's) answer to the current
// proposal and moves the negotiation status.
func (r *AppointmentRepository) SetResponse(ctx context.Context, tx pgx.Tx, id, status string, counterDate *time.Time, message string) (time.Time, error) {
	var respondedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			counter_date = $3,
			response_message = $4,
			responded_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING responded_at
	`, id, status, counterDate, message).Scan(&respondedAt)
	return respondedAt, err
}

// Lock marks the appointment immutable once a referencing acceptance has
// started its walkthrough.
func (r *AppointmentRepository) Lock(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET locked = true,
			updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// SupersedeDeclined retires declined proposals for a work item so the
// negotiation history shows which rounds a fresh proposal replaced.
func (r *AppointmentRepository) SupersedeDeclined(ctx context.Context, tx pgx.Tx, workItemID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET superseded = true,
			updated_at = now()
		WHERE work_item_id = $1 AND status = 'declined' AND NOT superseded
	`, workItemID)
	return err
}

// ActiveByWorkItem returns the live appointment for a work item, if any.
func (r *AppointmentRepository) ActiveByWorkItem(ctx context.Context, tx pgx.Tx, workItemID string) (model.Appointment, bool, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE work_item_id = $1 AND status <> 'declined' AND NOT superseded
		FOR UPDATE
	`, workItemID))
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}
