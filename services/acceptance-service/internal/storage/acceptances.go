package storage

import (
	"context"
	"time"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type AcceptanceRepository struct {
	pool *db.Pool
}

func NewAcceptanceRepository(pool *db.Pool) *AcceptanceRepository {
	return &AcceptanceRepository{pool: pool}
}

func (r *AcceptanceRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const acceptanceColumns = `
	id, work_item_id, COALESCE(appointment_id::text, ''), commissioning_party_id,
	performing_party_id, created_by, status, accepted, scheduled_date, started_at,
	completed_at, finalized_at, notes, commissioning_notes, performing_notes,
	quality_rating, timeliness_rating, overall_rating, warranty_start_date,
	warranty_period_months, created_at, updated_at
`

func scanAcceptance(row pgx.Row) (model.Acceptance, error) {
	var a model.Acceptance
	err := row.Scan(
		&a.ID,
		&a.WorkItemID,
		&a.AppointmentID,
		&a.CommissioningPartyID,
		&a.PerformingPartyID,
		&a.CreatedBy,
		&a.Status,
		&a.Accepted,
		&a.ScheduledDate,
		&a.StartedAt,
		&a.CompletedAt,
		&a.FinalizedAt,
		&a.Notes,
		&a.CommissioningNotes,
		&a.PerformingNotes,
		&a.QualityRating,
		&a.TimelinessRating,
		&a.OverallRating,
		&a.WarrantyStartDate,
		&a.WarrantyPeriodMonths,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Acceptance{}, err
	}
	return a, nil
}

// Insert relies on the acceptances_one_open partial unique index: a second
// non-terminal acceptance for the same work item fails with a unique
// violation.
func (r *AcceptanceRepository) Insert(ctx context.Context, tx pgx.Tx, a *model.Acceptance) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO acceptances
			(work_item_id, appointment_id, commissioning_party_id, performing_party_id, created_by, scheduled_date, notes)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7)
		RETURNING id
	`, a.WorkItemID, a.AppointmentID, a.CommissioningPartyID, a.PerformingPartyID,
		a.CreatedBy, a.ScheduledDate, a.Notes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *AcceptanceRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Acceptance, error) {
	return scanAcceptance(tx.QueryRow(ctx, `
		SELECT`+acceptanceColumns+`
		FROM acceptances
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *AcceptanceRepository) Get(ctx context.Context, id string) (model.Acceptance, error) {
	return scanAcceptance(r.pool.QueryRow(ctx, `
		SELECT`+acceptanceColumns+`
		FROM acceptances
		WHERE id = $1
	`, id))
}

func (r *AcceptanceRepository) Start(ctx context.Context, tx pgx.Tx, id string) (time.Time, error) {
	var startedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE acceptances
		SET status = 'IN_PROGRESS',
			started_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING started_at
	`, id).Scan(&startedAt)
	return startedAt, err
}

// MarkRevision records the walkthrough outcome when defects were found:
// the record stays open and waits for Finalize.
func (r *AcceptanceRepository) MarkRevision(ctx context.Context, tx pgx.Tx, id, commissioningNotes string) (time.Time, error) {
	var completedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE acceptances
		SET status = 'REQUIRES_REVISION',
			completed_at = now(),
			commissioning_notes = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING completed_at
	`, id, commissioningNotes).Scan(&completedAt)
	return completedAt, err
}

// Closure carries the terminal write of Complete or Finalize.
type Closure struct {
	Status             string
	Accepted           bool
	CommissioningNotes string
	QualityRating      *int
	TimelinessRating   *int
	OverallRating      *int
	// Final marks the Finalize path (stamps finalized_at instead of completed_at).
	Final bool
}

func (r *AcceptanceRepository) Close(ctx context.Context, tx pgx.Tx, id string, c Closure) (time.Time, error) {
	var closedAt time.Time
	var err error
	if c.Final {
		err = tx.QueryRow(ctx, `
			UPDATE acceptances
			SET status = $2,
				accepted = $3,
				commissioning_notes = $4,
				quality_rating = COALESCE($5, quality_rating),
				timeliness_rating = COALESCE($6, timeliness_rating),
				overall_rating = COALESCE($7, overall_rating),
				warranty_start_date = CASE WHEN $2 = 'ACCEPTED' THEN now() END,
				finalized_at = now(),
				updated_at = now()
			WHERE id = $1
			RETURNING finalized_at
		`, id, c.Status, c.Accepted, c.CommissioningNotes,
			c.QualityRating, c.TimelinessRating, c.OverallRating).Scan(&closedAt)
	} else {
		err = tx.QueryRow(ctx, `
			UPDATE acceptances
			SET status = $2,
				accepted = $3,
				commissioning_notes = $4,
				quality_rating = COALESCE($5, quality_rating),
				timeliness_rating = COALESCE($6, timeliness_rating),
				overall_rating = COALESCE($7, overall_rating),
				warranty_start_date = CASE WHEN $2 = 'ACCEPTED' THEN now() END,
				completed_at = now(),
				finalized_at = now(),
				updated_at = now()
			WHERE id = $1
			RETURNING completed_at
		`, id, c.Status, c.Accepted, c.CommissioningNotes,
			c.QualityRating, c.TimelinessRating, c.OverallRating).Scan(&closedAt)
	}
	return closedAt, err
}

// SetPerformingNotes lets the performing party attach their view of the
// walkthrough to an open acceptance.
func (r *AcceptanceRepository) SetPerformingNotes(ctx context.Context, tx pgx.Tx, id, notes string) error {
	_, err := tx.Exec(ctx, `
		UPDATE acceptances
		SET performing_notes = $2,
			updated_at = now()
		WHERE id = $1
	`, id, notes)
	return err
}

func (r *AcceptanceRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]model.Acceptance, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+acceptanceColumns+`
		FROM acceptances
		WHERE commissioning_party_id = $1 OR performing_party_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Acceptance
	for rows.Next() {
		a, err := scanAcceptance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Summary is the dashboard projection for one actor.
type Summary struct {
	Total            int
	Pending          int
	InProgress       int
	RequiresRevision int
	Accepted         int
	Rejected         int
	OpenDefects      int
	AvgOverallRating float64
}

func (r *AcceptanceRepository) SummaryByActor(ctx context.Context, actorID string) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'IN_PROGRESS'),
			COUNT(*) FILTER (WHERE status = 'REQUIRES_REVISION'),
			COUNT(*) FILTER (WHERE status = 'ACCEPTED'),
			COUNT(*) FILTER (WHERE status = 'REJECTED'),
			COALESCE((
				SELECT COUNT(*)
				FROM defects d
				JOIN acceptances a2 ON a2.id = d.acceptance_id
				WHERE NOT d.resolved
					AND (a2.commissioning_party_id = $1 OR a2.performing_party_id = $1)
			), 0),
			COALESCE(AVG(overall_rating), 0)
		FROM acceptances
		WHERE commissioning_party_id = $1 OR performing_party_id = $1
	`, actorID).Scan(
		&s.Total,
		&s.Pending,
		&s.InProgress,
		&s.RequiresRevision,
		&s.Accepted,
		&s.Rejected,
		&s.OpenDefects,
		&s.AvgOverallRating,
	)
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}
