package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/gewerk/handover/libs/db"
)

type Notification struct {
	Category    string
	SubjectID   string
	WorkItemID  string
	RecipientID string
	Channel     string
	Recipient   string
	Payload     map[string]any
	Status      string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) (string, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (id, category, subject_id, work_item_id, recipient_id, channel, recipient, payload, status)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9)
	`, id, n.Category, n.SubjectID, n.WorkItemID, n.RecipientID, n.Channel, n.Recipient, payload, n.Status)
	if err != nil {
		return "", err
	}
	return id, nil
}
