package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gewerk/handover/libs/config"
	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/libs/grpcx"
	"github.com/gewerk/handover/libs/httpx"
	"github.com/gewerk/handover/libs/kafkax"
	otelx "github.com/gewerk/handover/libs/otel"
	"github.com/gewerk/handover/libs/runtime"
	"github.com/gewerk/handover/services/notification-service/internal/consumer"
	"github.com/gewerk/handover/services/notification-service/internal/email"
	"github.com/gewerk/handover/services/notification-service/internal/inbox"
	"github.com/gewerk/handover/services/notification-service/internal/outbox"
	"github.com/gewerk/handover/services/notification-service/internal/render"
	"github.com/gewerk/handover/services/notification-service/internal/sms"
	"github.com/gewerk/handover/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// recipientField maps each consumed topic to the payload key naming the
// party to notify, and subjectField to the key naming the aggregate.
var recipientField = map[string]string{
	"appointment.proposed.v1":            "invitee_id",
	"appointment.responded.v1":           "notify_party_id",
	"acceptance.revision_requested.v1":   "performing_party_id",
	"acceptance.resolution_submitted.v1": "commissioning_party_id",
	"acceptance.finalized.v1":            "performing_party_id",
	"task.overdue.v1":                    "assignee_id",
}

var subjectField = map[string]string{
	"appointment.proposed.v1":            "appointment_id",
	"appointment.responded.v1":           "appointment_id",
	"acceptance.revision_requested.v1":   "acceptance_id",
	"acceptance.resolution_submitted.v1": "acceptance_id",
	"acceptance.finalized.v1":            "acceptance_id",
	"task.overdue.v1":                    "task_id",
}

func writeOutboxResult(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, eventType, subjectID, recipientID, channel, reason string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	body := map[string]any{
		"subject_id":   subjectID,
		"recipient_id": recipientID,
		"channel":      channel,
	}
	topic := outbox.TopicNotificationSent
	if reason != "" {
		topic = outbox.TopicNotificationFailed
		body["error_reason"] = reason
		body["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		body["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	body["source_event_type"] = eventType

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   subjectID,
		EventType:     topic,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@handover.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	var smsSender sms.Sender
	if smsProvider == "webhook" {
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	} else {
		smsSender = sms.NewNoopSender()
	}

	channel := strings.ToLower(config.String("NOTIFY_CHANNEL", "email"))
	// Address resolution is a stand-in until the party directory exposes
	// contact data: <party-id>@NOTIFY_EMAIL_DOMAIN.
	emailDomain := config.String("NOTIFY_EMAIL_DOMAIN", "handover.local")

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if addr := config.String("PARTY_DIRECTORY_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("party directory dial failed", "err", err, "addr", addr)
			panic(err)
		}
		defer conn.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "party-directory",
			Check: grpcx.HealthReadyCheck(conn, ""),
		})
		logger.Info("party directory connected", "addr", addr)
	}

	handle := func(ctx context.Context, msg kafka.Message) error {
		var payload map[string]any
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "topic", msg.Topic, "err", err)
			return nil
		}

		recipientID, _ := payload[recipientField[msg.Topic]].(string)
		subjectID, _ := payload[subjectField[msg.Topic]].(string)
		if recipientID == "" || subjectID == "" {
			logger.Error("missing recipient or subject", "topic", msg.Topic)
			return nil
		}
		message, ok := render.Render(msg.Topic, payload)
		if !ok {
			return nil
		}

		recipient := recipientID + "@" + emailDomain
		failureReason := ""
		switch channel {
		case "email":
			if err := emailSender.Send(recipient, message.Subject, message.Body); err != nil {
				failureReason = err.Error()
				logger.Error("email send failed", "err", err, "recipient", recipient)
			}
		case "sms":
			if err := smsSender.Send(ctx, recipient, message.Body); err != nil {
				failureReason = err.Error()
				logger.Error("sms send failed", "err", err, "recipient", recipient)
			}
		default:
			failureReason = "unsupported channel: " + channel
			logger.Error("unsupported channel", "channel", channel)
		}

		status := "sent"
		if failureReason != "" {
			status = "failed"
		}
		workItemID, _ := payload["work_item_id"].(string)
		notificationID, err := notificationsRepo.Insert(ctx, storage.Notification{
			Category:    msg.Topic,
			SubjectID:   subjectID,
			WorkItemID:  workItemID,
			RecipientID: recipientID,
			Channel:     channel,
			Recipient:   recipient,
			Payload:     payload,
			Status:      status,
		})
		if err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}

		if err := writeOutboxResult(ctx, pool, outboxRepo, msg.Topic, subjectID, recipientID, channel, failureReason); err != nil {
			logger.Error("failed to enqueue notification result", "err", err)
			return err
		}

		logger.Info("notification processed", "topic", msg.Topic, "notification_id", notificationID, "subject_id", subjectID, "status", status)
		return nil
	}

	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	for topic := range recipientField {
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handle)
		go c.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
