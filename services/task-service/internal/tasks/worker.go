package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/task-service/internal/outbox"
)

// Worker sweeps open tasks past their due time, flips them to overdue
// and emits one event per task.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweepBatch(ctx); err != nil {
				w.logger.Error("overdue sweep failed", "err", err)
			}
		}
	}
}

func (w *Worker) sweepBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	overdue, err := w.repo.FetchOverdue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		return tx.Commit(ctx)
	}

	var ids []string
	for _, t := range overdue {
		payload, err := json.Marshal(map[string]any{
			"task_id":       t.ID,
			"defect_id":     t.DefectID,
			"acceptance_id": t.AcceptanceID,
			"work_item_id":  t.WorkItemID,
			"assignee_id":   t.AssigneeID,
			"title":         t.Title,
			"severity":      t.Severity,
			"due_at":        t.DueAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := w.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "follow_up_task",
			AggregateID:   t.ID,
			EventType:     outbox.TopicTaskOverdue,
			Payload:       payload,
		}); err != nil {
			return err
		}
		ids = append(ids, t.ID)
	}

	if err := w.repo.MarkOverdue(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
