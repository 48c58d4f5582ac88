package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gewerk/handover/libs/config"
	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/libs/httpx"
	"github.com/gewerk/handover/libs/kafkax"
	otelx "github.com/gewerk/handover/libs/otel"
	"github.com/gewerk/handover/libs/runtime"
	"github.com/gewerk/handover/services/task-service/internal/consumer"
	"github.com/gewerk/handover/services/task-service/internal/inbox"
	"github.com/gewerk/handover/services/task-service/internal/outbox"
	"github.com/gewerk/handover/services/task-service/internal/tasks"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "task-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")

	inboxRepo := inbox.NewRepository(pool)
	taskRepo := tasks.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	sweepWorker := tasks.NewWorker(pool, taskRepo, outboxRepo, logger, tasks.WorkerConfig{
		Interval:  config.Duration("OVERDUE_SWEEP_INTERVAL", 1*time.Minute),
		BatchSize: config.Int("OVERDUE_SWEEP_BATCH", 100),
	})
	go sweepWorker.Run(ctx)

	type defectRecorded struct {
		DefectID          string `json:"defect_id"`
		AcceptanceID      string `json:"acceptance_id"`
		WorkItemID        string `json:"work_item_id"`
		PerformingPartyID string `json:"performing_party_id"`
		Title             string `json:"title"`
		Severity          string `json:"severity"`
		Deadline          string `json:"deadline"`
	}

	defectConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: service,
		Topic:   "acceptance.defect.recorded.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload defectRecorded
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid defect payload", "err", err)
			return nil
		}
		if payload.DefectID == "" || payload.AcceptanceID == "" || payload.PerformingPartyID == "" {
			logger.Error("missing defect fields", "defect_id", payload.DefectID)
			return nil
		}

		var deadline *time.Time
		if payload.Deadline != "" {
			parsed, err := time.Parse(time.RFC3339, payload.Deadline)
			if err != nil {
				logger.Error("invalid defect deadline", "err", err)
			} else {
				deadline = &parsed
			}
		}
		dueAt := tasks.DueAt(payload.Severity, time.Now(), deadline)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		taskID, created, err := taskRepo.Insert(ctx, tx, tasks.Task{
			DefectID:     payload.DefectID,
			AcceptanceID: payload.AcceptanceID,
			WorkItemID:   payload.WorkItemID,
			AssigneeID:   payload.PerformingPartyID,
			Title:        payload.Title,
			Severity:     payload.Severity,
			DueAt:        dueAt,
		})
		if err != nil {
			return err
		}
		if !created {
			return tx.Commit(ctx)
		}

		eventPayload, err := json.Marshal(map[string]any{
			"task_id":       taskID,
			"defect_id":     payload.DefectID,
			"acceptance_id": payload.AcceptanceID,
			"work_item_id":  payload.WorkItemID,
			"assignee_id":   payload.PerformingPartyID,
			"severity":      payload.Severity,
			"due_at":        dueAt.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "follow_up_task",
			AggregateID:   taskID,
			EventType:     outbox.TopicTaskCreated,
			Payload:       eventPayload,
		}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	go defectConsumer.Run(ctx)

	resolutionConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: service,
		Topic:   "acceptance.resolution_submitted.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AcceptanceID string `json:"acceptance_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid resolution payload", "err", err)
			return nil
		}
		if payload.AcceptanceID == "" {
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		ids, err := taskRepo.MarkDoneByAcceptance(ctx, tx, payload.AcceptanceID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			donePayload, err := json.Marshal(map[string]any{
				"task_id":       id,
				"acceptance_id": payload.AcceptanceID,
			})
			if err != nil {
				return err
			}
			if err := outboxRepo.Insert(ctx, tx, outbox.Event{
				AggregateType: "follow_up_task",
				AggregateID:   id,
				EventType:     outbox.TopicTaskDone,
				Payload:       donePayload,
			}); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
	go resolutionConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "task")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
