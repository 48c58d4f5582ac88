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
	"github.com/gewerk/handover/services/analytics-service/internal/consumer"
	"github.com/gewerk/handover/services/analytics-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")
	inboxRepo := inbox.NewRepository(pool)

	ratingConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "rating.recorded.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			RatingID             string  `json:"rating_id"`
			CommissioningPartyID string  `json:"commissioning_party_id"`
			PerformingPartyID    string  `json:"performing_party_id"`
			WorkItemID           string  `json:"work_item_id"`
			Quality              int     `json:"quality"`
			Timeliness           int     `json:"timeliness"`
			Communication        int     `json:"communication"`
			Value                int     `json:"value"`
			Overall              float64 `json:"overall"`
			Public               bool    `json:"public"`
			RecordedAt           string  `json:"recorded_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid rating payload", "err", err)
			return nil
		}
		if payload.RatingID == "" || payload.PerformingPartyID == "" {
			logger.Error("missing rating fields")
			return nil
		}
		recordedAt, err := time.Parse(time.RFC3339, payload.RecordedAt)
		if err != nil {
			logger.Error("invalid recorded_at", "err", err)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// A re-closed acceptance re-emits the rating with new scores, so
		// the fact row is replaced rather than skipped.
		if _, err := tx.Exec(ctx, `
			INSERT INTO rating_facts
				(rating_id, commissioning_party_id, performing_party_id, work_item_id,
				 quality, timeliness, communication, value, overall, public, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (rating_id)
			DO UPDATE SET quality = EXCLUDED.quality,
				timeliness = EXCLUDED.timeliness,
				communication = EXCLUDED.communication,
				value = EXCLUDED.value,
				overall = EXCLUDED.overall,
				public = EXCLUDED.public,
				recorded_at = EXCLUDED.recorded_at
		`, payload.RatingID, payload.CommissioningPartyID, payload.PerformingPartyID, payload.WorkItemID,
			payload.Quality, payload.Timeliness, payload.Communication, payload.Value,
			payload.Overall, payload.Public, recordedAt.UTC()); err != nil {
			logger.Error("failed to write rating fact", "err", err)
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO rating_aggregates
				(performing_party_id, total_ratings, avg_quality, avg_timeliness, avg_communication, avg_value, avg_overall)
			SELECT performing_party_id, COUNT(*),
				ROUND(AVG(quality), 2), ROUND(AVG(timeliness), 2),
				ROUND(AVG(communication), 2), ROUND(AVG(value), 2), ROUND(AVG(overall), 2)
			FROM rating_facts
			WHERE performing_party_id = $1 AND public
			GROUP BY performing_party_id
			ON CONFLICT (performing_party_id)
			DO UPDATE SET total_ratings = EXCLUDED.total_ratings,
				avg_quality = EXCLUDED.avg_quality,
				avg_timeliness = EXCLUDED.avg_timeliness,
				avg_communication = EXCLUDED.avg_communication,
				avg_value = EXCLUDED.avg_value,
				avg_overall = EXCLUDED.avg_overall,
				updated_at = now()
		`, payload.PerformingPartyID); err != nil {
			logger.Error("failed to recompute rating aggregate", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("rating fact recorded", "rating_id", payload.RatingID, "performing_party_id", payload.PerformingPartyID)
		return nil
	})
	go ratingConsumer.Run(ctx)

	finalizedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "acceptance.finalized.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AcceptanceID         string `json:"acceptance_id"`
			CommissioningPartyID string `json:"commissioning_party_id"`
			Accepted             bool   `json:"accepted"`
			ClosedAt             string `json:"closed_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid finalized payload", "err", err)
			return nil
		}
		if payload.AcceptanceID == "" || payload.CommissioningPartyID == "" {
			logger.Error("missing finalized fields")
			return nil
		}
		closedAt, err := time.Parse(time.RFC3339, payload.ClosedAt)
		if err != nil {
			logger.Error("invalid closed_at", "err", err)
			return nil
		}

		acceptedInc := 0
		rejectedInc := 0
		if payload.Accepted {
			acceptedInc = 1
		} else {
			rejectedInc = 1
		}

		if _, err := pool.Exec(ctx, `
			INSERT INTO daily_acceptance_metrics (commissioning_party_id, day, accepted_count, rejected_count)
			VALUES ($1, $2::date, $3, $4)
			ON CONFLICT (commissioning_party_id, day)
			DO UPDATE SET accepted_count = daily_acceptance_metrics.accepted_count + EXCLUDED.accepted_count,
			              rejected_count = daily_acceptance_metrics.rejected_count + EXCLUDED.rejected_count,
			              updated_at = now()
		`, payload.CommissioningPartyID, closedAt.UTC(), acceptedInc, rejectedInc); err != nil {
			logger.Error("failed to update daily acceptance metrics", "err", err)
			return err
		}

		logger.Info("acceptance metric recorded", "acceptance_id", payload.AcceptanceID, "accepted", payload.Accepted)
		return nil
	})
	go finalizedConsumer.Run(ctx)

	handleNotificationEvent := func(ctx context.Context, msg kafka.Message, sentInc, failedInc int) error {
		var payload struct {
			SubjectID string `json:"subject_id"`
			Channel   string `json:"channel"`
			SentAt    string `json:"sent_at"`
			FailedAt  string `json:"failed_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid notification payload", "err", err)
			return nil
		}
		ts := payload.SentAt
		if ts == "" {
			ts = payload.FailedAt
		}
		if payload.Channel == "" || ts == "" {
			logger.Error("missing notification fields")
			return nil
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			logger.Error("invalid notification timestamp", "err", err)
			return nil
		}

		if _, err := pool.Exec(ctx, `
			INSERT INTO daily_notification_metrics (day, channel, sent_count, failed_count)
			VALUES ($1::date, $2, $3, $4)
			ON CONFLICT (day, channel)
			DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
			              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
			              updated_at = now()
		`, t.UTC(), payload.Channel, sentInc, failedInc); err != nil {
			logger.Error("failed to update daily notification metrics", "err", err)
			return err
		}
		return nil
	}

	sentConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "notification.sent.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		return handleNotificationEvent(ctx, msg, 1, 0)
	})
	go sentConsumer.Run(ctx)

	failedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "notification.failed.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		return handleNotificationEvent(ctx, msg, 0, 1)
	})
	go failedConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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
