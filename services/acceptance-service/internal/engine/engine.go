// Package engine implements the acceptance lifecycle: appointment
// negotiation, the walkthrough state machine, defect tracking and
// closure ratings. Every mutation runs in one pgx transaction that
// locks the affected rows, applies the pure lifecycle/party rules and
// writes outbox rows; no external I/O happens inside a transaction.
package engine

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/outbox"
	"github.com/gewerk/handover/services/acceptance-service/internal/storage"
	"github.com/gewerk/handover/services/acceptance-service/internal/workitem"
)

type Engine struct {
	pool         *db.Pool
	workItems    *workitem.Store
	appointments *storage.AppointmentRepository
	acceptances  *storage.AcceptanceRepository
	defects      *storage.DefectRepository
	ratings      *storage.RatingRepository
	outbox       *outbox.Repository
	logger       *slog.Logger
	graceWindow  time.Duration
}

type Config struct {
	// GraceWindow allows defect logging against a closed acceptance for a
	// short period after closure.
	GraceWindow time.Duration
}

func New(pool *db.Pool, workItems *workitem.Store, appointments *storage.AppointmentRepository,
	acceptances *storage.AcceptanceRepository, defects *storage.DefectRepository,
	ratings *storage.RatingRepository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Engine {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 30 * time.Minute
	}
	return &Engine{
		pool:         pool,
		workItems:    workItems,
		appointments: appointments,
		acceptances:  acceptances,
		defects:      defects,
		ratings:      ratings,
		outbox:       outboxRepo,
		logger:       logger,
		graceWindow:  cfg.GraceWindow,
	}
}

// RatingInput carries the four closure sub-scores.
type RatingInput struct {
	Quality       int
	Timeliness    int
	Communication int
	Value         int
	Comment       string
	Public        bool
}

func (r RatingInput) validate() error {
	for _, score := range []struct {
		name  string
		value int
	}{
		{"quality", r.Quality},
		{"timeliness", r.Timeliness},
		{"communication", r.Communication},
		{"value", r.Value},
	} {
		if score.value < 1 || score.value > 5 {
			return fault.Validation("rating %s must be between 1 and 5, got %d", score.name, score.value)
		}
	}
	return nil
}

// Overall is the arithmetic mean of the four sub-scores.
func (r RatingInput) Overall() float64 {
	return float64(r.Quality+r.Timeliness+r.Communication+r.Value) / 4
}

// OverallInt rounds the mean to the nearest whole score for the
// acceptance record's denormalized column.
func (r RatingInput) OverallInt() int {
	return int(math.Round(r.Overall()))
}

// DefectInput is one defect recorded during a walkthrough.
type DefectInput struct {
	Title       string
	Description string
	Severity    string
	Location    string
	Room        string
	Photos      []string
	Deadline    *time.Time
}

func (d DefectInput) validate() error {
	if d.Title == "" {
		return fault.Validation("defect title is required")
	}
	if !model.ValidSeverity(d.Severity) {
		return fault.Validation("defect severity must be minor, major or critical, got %q", d.Severity)
	}
	return nil
}

func mustJSON(v map[string]any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		// Map of strings and numbers; cannot fail.
		panic(err)
	}
	return raw
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func rfc3339Ptr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return rfc3339(*t)
}
