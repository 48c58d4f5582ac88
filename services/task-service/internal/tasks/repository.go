package tasks

import (
	"context"
	"time"

	"github.com/gewerk/handover/libs/db"
	"github.com/jackc/pgx/v5"
)

type Task struct {
	ID           string
	DefectID     string
	AcceptanceID string
	WorkItemID   string
	AssigneeID   string
	Title        string
	Severity     string
	Status       string
	DueAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Insert is idempotent per defect: a replayed defect event hits the
// unique defect_id and returns ok=false.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, t Task) (string, bool, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO follow_up_tasks (defect_id, acceptance_id, work_item_id, assignee_id, title, severity, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (defect_id) DO NOTHING
		RETURNING id
	`, t.DefectID, t.AcceptanceID, t.WorkItemID, t.AssigneeID, t.Title, t.Severity, t.DueAt).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// MarkDoneByAcceptance closes every open task of an acceptance and
// returns the affected task ids.
func (r *Repository) MarkDoneByAcceptance(ctx context.Context, tx pgx.Tx, acceptanceID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		UPDATE follow_up_tasks
		SET status = 'done',
			updated_at = now()
		WHERE acceptance_id = $1 AND status <> 'done'
		RETURNING id
	`, acceptanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FetchOverdue locks open tasks past their due time for the sweep worker.
func (r *Repository) FetchOverdue(ctx context.Context, tx pgx.Tx, limit int) ([]Task, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, defect_id, acceptance_id, work_item_id, assignee_id, title, severity, status, due_at, created_at, updated_at
		FROM follow_up_tasks
		WHERE status = 'open' AND due_at <= now()
		ORDER BY due_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.DefectID, &t.AcceptanceID, &t.WorkItemID, &t.AssigneeID,
			&t.Title, &t.Severity, &t.Status, &t.DueAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) MarkOverdue(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE follow_up_tasks
		SET status = 'overdue',
			updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) ListByAcceptance(ctx context.Context, acceptanceID string) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, defect_id, acceptance_id, work_item_id, assignee_id, title, severity, status, due_at, created_at, updated_at
		FROM follow_up_tasks
		WHERE acceptance_id = $1
		ORDER BY due_at
	`, acceptanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.DefectID, &t.AcceptanceID, &t.WorkItemID, &t.AssigneeID,
			&t.Title, &t.Severity, &t.Status, &t.DueAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
