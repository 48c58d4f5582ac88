package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type DefectRepository struct {
	pool *db.Pool
}

func NewDefectRepository(pool *db.Pool) *DefectRepository {
	return &DefectRepository{pool: pool}
}

const defectColumns = `
	id, acceptance_id, title, description, severity, location, room, photos,
	resolved, resolution_notes, resolved_at, COALESCE(resolved_by::text, ''),
	deadline, COALESCE(task_id::text, ''), created_at, updated_at
`

func scanDefect(row pgx.Row) (model.Defect, error) {
	var d model.Defect
	var photos []byte
	err := row.Scan(
		&d.ID,
		&d.AcceptanceID,
		&d.Title,
		&d.Description,
		&d.Severity,
		&d.Location,
		&d.Room,
		&photos,
		&d.Resolved,
		&d.ResolutionNotes,
		&d.ResolvedAt,
		&d.ResolvedBy,
		&d.Deadline,
		&d.TaskID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return model.Defect{}, err
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &d.Photos); err != nil {
			return model.Defect{}, err
		}
	}
	return d, nil
}

func (r *DefectRepository) Insert(ctx context.Context, tx pgx.Tx, d *model.Defect) (string, error) {
	photos := d.Photos
	if photos == nil {
		photos = []string{}
	}
	raw, err := json.Marshal(photos)
	if err != nil {
		return "", err
	}
	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO defects (acceptance_id, title, description, severity, location, room, photos, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, d.AcceptanceID, d.Title, d.Description, d.Severity, d.Location, d.Room, raw, d.Deadline).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *DefectRepository) Get(ctx context.Context, id string) (model.Defect, error) {
	return scanDefect(r.pool.QueryRow(ctx, `
		SELECT`+defectColumns+`
		FROM defects
		WHERE id = $1
	`, id))
}

// AcceptanceID reads the parent without taking the defect row lock, so
// callers can lock the acceptance first and the defect second.
func (r *DefectRepository) AcceptanceID(ctx context.Context, tx pgx.Tx, defectID string) (string, error) {
	var acceptanceID string
	err := tx.QueryRow(ctx, `
		SELECT acceptance_id FROM defects WHERE id = $1
	`, defectID).Scan(&acceptanceID)
	return acceptanceID, err
}

func (r *DefectRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Defect, error) {
	return scanDefect(tx.QueryRow(ctx, `
		SELECT`+defectColumns+`
		FROM defects
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *DefectRepository) Resolve(ctx context.Context, tx pgx.Tx, id, resolvedBy, notes string) (time.Time, error) {
	var resolvedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE defects
		SET resolved = true,
			resolved_at = now(),
			resolved_by = $2,
			resolution_notes = $3,
			updated_at = now()
		WHERE id = $1
		RETURNING resolved_at
	`, id, resolvedBy, notes).Scan(&resolvedAt)
	return resolvedAt, err
}

func (r *DefectRepository) SetTaskID(ctx context.Context, defectID, taskID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE defects
		SET task_id = $2,
			updated_at = now()
		WHERE id = $1 AND task_id IS NULL
	`, defectID, taskID)
	return err
}

func (r *DefectRepository) ListByAcceptance(ctx context.Context, acceptanceID string) ([]model.Defect, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+defectColumns+`
		FROM defects
		WHERE acceptance_id = $1
		ORDER BY created_at
	`, acceptanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Defect
	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Counts is the live resolution projection: computed per request, never
// cached.
type Counts struct {
	Total    int
	Resolved int
}

func (c Counts) Pending() int {
	return c.Total - c.Resolved
}

func (r *DefectRepository) CountByAcceptance(ctx context.Context, acceptanceID string) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE resolved)
		FROM defects
		WHERE acceptance_id = $1
	`, acceptanceID).Scan(&c.Total, &c.Resolved)
	if err != nil {
		return Counts{}, err
	}
	return c, nil
}

// CountByAcceptanceTx runs the same projection inside a transaction that
// already holds the acceptance row lock (the batch-submission gate).
func (r *DefectRepository) CountByAcceptanceTx(ctx context.Context, tx pgx.Tx, acceptanceID string) (Counts, error) {
	var c Counts
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE resolved)
		FROM defects
		WHERE acceptance_id = $1
	`, acceptanceID).Scan(&c.Total, &c.Resolved)
	if err != nil {
		return Counts{}, err
	}
	return c, nil
}
