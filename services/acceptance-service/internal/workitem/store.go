// Package workitem is the engine's projection of the work-item directory.
// Party membership and completion status live here; the engine locks the
// row alongside every lifecycle transition so capability checks and
// status flips stay consistent.
package workitem

import (
	"context"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, id string) (model.WorkItem, error) {
	return s.get(ctx, s.pool, id, false)
}

// GetForUpdate locks the work item row for the duration of tx.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.WorkItem, error) {
	return s.get(ctx, tx, id, true)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) get(ctx context.Context, q querier, id string, forUpdate bool) (model.WorkItem, error) {
	query := `
		SELECT id, title, commissioning_party_id, performing_party_id, completion_status, created_at, updated_at
		FROM work_items
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var item model.WorkItem
	err := q.QueryRow(ctx, query, id).Scan(
		&item.ID,
		&item.Title,
		&item.CommissioningPartyID,
		&item.PerformingPartyID,
		&item.CompletionStatus,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return model.WorkItem{}, err
	}
	return item, nil
}

func (s *Store) SetCompletionStatus(ctx context.Context, tx pgx.Tx, id string, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE work_items
		SET completion_status = $2,
			updated_at = now()
		WHERE id = $1
	`, id, status)
	return err
}

func (s *Store) Create(ctx context.Context, item model.WorkItem) (string, error) {
	status := item.CompletionStatus
	if status == "" {
		status = model.WorkCompletionRequested
	}
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO work_items (title, commissioning_party_id, performing_party_id, completion_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, item.Title, item.CommissioningPartyID, item.PerformingPartyID, status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
