package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gewerk/handover/services/acceptance-service/internal/engine"
	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/gewerk/handover/services/acceptance-service/internal/party"
	"github.com/gewerk/handover/services/acceptance-service/internal/workitem"
)

type Handler struct {
	engine    *engine.Engine
	workItems *workitem.Store
	logger    *slog.Logger
}

func New(eng *engine.Engine, workItems *workitem.Store, logger *slog.Logger) *Handler {
	return &Handler{engine: eng, workItems: workItems, logger: logger}
}

func actorFromHeader(r *http.Request) (party.Actor, error) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	if id == "" {
		return party.Actor{}, errors.New("missing X-Actor-Id")
	}
	return party.Actor{
		ID:    id,
		Admin: strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Actor-Role")), "admin"),
	}, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *fault.Error
	if errors.As(err, &fe) {
		http.Error(w, fe.Message, fault.HTTPStatus(err))
		return
	}
	h.logger.Error("request failed", "path", r.URL.Path, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	utc := t.UTC()
	return &utc, nil
}

func appointmentView(a model.Appointment) map[string]any {
	v := map[string]any{
		"id":               a.ID,
		"work_item_id":     a.WorkItemID,
		"proposer_id":      a.ProposerID,
		"invitee_id":       a.InviteeID,
		"proposed_date":    a.ProposedDate.UTC().Format(time.RFC3339),
		"status":           a.Status,
		"notes":            a.Notes,
		"response_message": a.ResponseMessage,
		"locked":           a.Locked,
	}
	if a.CounterDate != nil {
		v["counter_date"] = a.CounterDate.UTC().Format(time.RFC3339)
	}
	if a.RespondedAt != nil {
		v["responded_at"] = a.RespondedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func acceptanceView(a model.Acceptance) map[string]any {
	v := map[string]any{
		"id":                     a.ID,
		"work_item_id":           a.WorkItemID,
		"commissioning_party_id": a.CommissioningPartyID,
		"performing_party_id":    a.PerformingPartyID,
		"status":                 a.Status,
		"notes":                  a.Notes,
		"commissioning_notes":    a.CommissioningNotes,
		"performing_notes":       a.PerformingNotes,
		"warranty_period_months": a.WarrantyPeriodMonths,
		"created_at":             a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.AppointmentID != "" {
		v["appointment_id"] = a.AppointmentID
	}
	if a.Accepted != nil {
		v["accepted"] = *a.Accepted
	}
	if a.ScheduledDate != nil {
		v["scheduled_date"] = a.ScheduledDate.UTC().Format(time.RFC3339)
	}
	if a.StartedAt != nil {
		v["started_at"] = a.StartedAt.UTC().Format(time.RFC3339)
	}
	if a.CompletedAt != nil {
		v["completed_at"] = a.CompletedAt.UTC().Format(time.RFC3339)
	}
	if a.FinalizedAt != nil {
		v["finalized_at"] = a.FinalizedAt.UTC().Format(time.RFC3339)
	}
	if a.QualityRating != nil {
		v["quality_rating"] = *a.QualityRating
	}
	if a.TimelinessRating != nil {
		v["timeliness_rating"] = *a.TimelinessRating
	}
	if a.OverallRating != nil {
		v["overall_rating"] = *a.OverallRating
	}
	if a.WarrantyStartDate != nil {
		v["warranty_start_date"] = a.WarrantyStartDate.UTC().Format("2006-01-02")
	}
	return v
}

func defectView(d model.Defect) map[string]any {
	v := map[string]any{
		"id":            d.ID,
		"acceptance_id": d.AcceptanceID,
		"title":         d.Title,
		"description":   d.Description,
		"severity":      d.Severity,
		"location":      d.Location,
		"room":          d.Room,
		"photos":        d.Photos,
		"resolved":      d.Resolved,
		"created_at":    d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.Resolved {
		v["resolution_notes"] = d.ResolutionNotes
		v["resolved_by"] = d.ResolvedBy
		if d.ResolvedAt != nil {
			v["resolved_at"] = d.ResolvedAt.UTC().Format(time.RFC3339)
		}
	}
	if d.Deadline != nil {
		v["deadline"] = d.Deadline.UTC().Format(time.RFC3339)
	}
	if d.TaskID != "" {
		v["task_id"] = d.TaskID
	}
	return v
}

func (h *Handler) ProposeAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		WorkItemID   string `json:"work_item_id"`
		InviteeID    string `json:"invitee_id"`
		ProposedDate string `json:"proposed_date"`
		Notes        string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WorkItemID) == "" || strings.TrimSpace(req.InviteeID) == "" {
		http.Error(w, "work_item_id and invitee_id are required", http.StatusBadRequest)
		return
	}
	proposed, err := parseDate(req.ProposedDate)
	if err != nil || proposed == nil {
		http.Error(w, "proposed_date must be RFC3339", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Propose(r.Context(), actor, engine.ProposeInput{
		WorkItemID:   strings.TrimSpace(req.WorkItemID),
		InviteeID:    strings.TrimSpace(req.InviteeID),
		ProposedDate: *proposed,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentView(appt))
}

func (h *Handler) RespondAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		AppointmentID string `json:"appointment_id"`
		Accepted      bool   `json:"accepted"`
		CounterDate   string `json:"counter_date"`
		Message       string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	counter, err := parseDate(req.CounterDate)
	if err != nil {
		http.Error(w, "counter_date must be RFC3339", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Respond(r.Context(), actor, engine.RespondInput{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		Accepted:      req.Accepted,
		CounterDate:   counter,
		Message:       strings.TrimSpace(req.Message),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(appt))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.GetAppointment(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(appt))
}

func (h *Handler) CreateAcceptance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		WorkItemID    string `json:"work_item_id"`
		AppointmentID string `json:"appointment_id"`
		ScheduledDate string `json:"scheduled_date"`
		Notes         string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WorkItemID) == "" {
		http.Error(w, "work_item_id is required", http.StatusBadRequest)
		return
	}
	scheduled, err := parseDate(req.ScheduledDate)
	if err != nil {
		http.Error(w, "scheduled_date must be RFC3339", http.StatusBadRequest)
		return
	}

	a, err := h.engine.Create(r.Context(), actor, engine.CreateInput{
		WorkItemID:    strings.TrimSpace(req.WorkItemID),
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		ScheduledDate: scheduled,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acceptanceView(a))
}

func (h *Handler) StartAcceptance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		AcceptanceID string `json:"acceptance_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AcceptanceID) == "" {
		http.Error(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}

	a, err := h.engine.Start(r.Context(), actor, engine.StartInput{AcceptanceID: strings.TrimSpace(req.AcceptanceID)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptanceView(a))
}

type ratingBody struct {
	Quality       int    `json:"quality"`
	Timeliness    int    `json:"timeliness"`
	Communication int    `json:"communication"`
	Value         int    `json:"value"`
	Comment       string `json:"comment"`
	Public        *bool  `json:"public"`
}

func (b *ratingBody) toInput() *engine.RatingInput {
	if b == nil {
		return nil
	}
	public := true
	if b.Public != nil {
		public = *b.Public
	}
	return &engine.RatingInput{
		Quality:       b.Quality,
		Timeliness:    b.Timeliness,
		Communication: b.Communication,
		Value:         b.Value,
		Comment:       strings.TrimSpace(b.Comment),
		Public:        public,
	}
}

type defectBody struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Location    string   `json:"location"`
	Room        string   `json:"room"`
	Photos      []string `json:"photos"`
	Deadline    string   `json:"deadline"`
}

func (b defectBody) toInput() (engine.DefectInput, error) {
	deadline, err := parseDate(b.Deadline)
	if err != nil {
		return engine.DefectInput{}, errors.New("deadline must be RFC3339")
	}
	return engine.DefectInput{
		Title:       strings.TrimSpace(b.Title),
		Description: strings.TrimSpace(b.Description),
		Severity:    strings.ToLower(strings.TrimSpace(b.Severity)),
		Location:    strings.TrimSpace(b.Location),
		Room:        strings.TrimSpace(b.Room),
		Photos:      b.Photos,
		Deadline:    deadline,
	}, nil
}

func (h *Handler) CompleteAcceptance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		AcceptanceID string       `json:"acceptance_id"`
		Accepted     *bool        `json:"accepted"`
		Notes        string       `json:"notes"`
		Rating       *ratingBody  `json:"rating"`
		Defects      []defectBody `json:"defects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AcceptanceID) == "" {
		http.Error(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}
	if req.Accepted == nil {
		http.Error(w, "accepted is required", http.StatusBadRequest)
		return
	}

	defects := make([]engine.DefectInput, 0, len(req.Defects))
	for _, d := range req.Defects {
		in, err := d.toInput()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defects = append(defects, in)
	}

	a, err := h.engine.Complete(r.Context(), actor, engine.CompleteInput{
		AcceptanceID: strings.TrimSpace(req.AcceptanceID),
		Accepted:     *req.Accepted,
		Notes:        strings.TrimSpace(req.Notes),
		Rating:       req.Rating.toInput(),
		Defects:      defects,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptanceView(a))
}

func (h *Handler) FinalizeAcceptance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		AcceptanceID string      `json:"acceptance_id"`
		Accepted     *bool       `json:"accepted"`
		Notes        string      `json:"notes"`
		Rating       *ratingBody `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AcceptanceID) == "" {
		http.Error(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}
	if req.Accepted == nil {
		http.Error(w, "accepted is required", http.StatusBadRequest)
		return
	}

	a, err := h.engine.Finalize(r.Context(), actor, engine.FinalizeInput{
		AcceptanceID: strings.TrimSpace(req.AcceptanceID),
		Accepted:     *req.Accepted,
		Notes:        strings.TrimSpace(req.Notes),
		Rating:       req.Rating.toInput(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptanceView(a))
}

func (h *Handler) GetAcceptance(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		h.listAcceptances(w, r, actor)
		return
	}

	detail, err := h.engine.GetAcceptance(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := acceptanceView(detail.Acceptance)
	defects := make([]map[string]any, 0, len(detail.Defects))
	for _, d := range detail.Defects {
		defects = append(defects, defectView(d))
	}
	view["defects"] = defects
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listAcceptances(w http.ResponseWriter, r *http.Request, actor party.Actor) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items, err := h.engine.ListAcceptances(r.Context(), actor, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]map[string]any, 0, len(items))
	for _, a := range items {
		views = append(views, acceptanceView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) AcceptanceSummary(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.engine.AcceptanceSummary(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":              s.Total,
		"pending":            s.Pending,
		"in_progress":        s.InProgress,
		"requires_revision":  s.RequiresRevision,
		"accepted":           s.Accepted,
		"rejected":           s.Rejected,
		"open_defects":       s.OpenDefects,
		"avg_overall_rating": s.AvgOverallRating,
	})
}

func (h *Handler) LogDefect(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		AcceptanceID string `json:"acceptance_id"`
		defectBody
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AcceptanceID) == "" {
		http.Error(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}
	in, err := req.defectBody.toInput()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.engine.LogDefect(r.Context(), actor, engine.LogDefectInput{
		AcceptanceID: strings.TrimSpace(req.AcceptanceID),
		Defect:       in,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, defectView(d))
}

func (h *Handler) ResolveDefect(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		DefectID string `json:"defect_id"`
		Notes    string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.DefectID) == "" {
		http.Error(w, "defect_id is required", http.StatusBadRequest)
		return
	}

	d, err := h.engine.ResolveDefect(r.Context(), actor, engine.ResolveDefectInput{
		DefectID: strings.TrimSpace(req.DefectID),
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, defectView(d))
}

func (h *Handler) SubmitResolution(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		AcceptanceID string `json:"acceptance_id"`
		Message      string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AcceptanceID) == "" {
		http.Error(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}

	a, err := h.engine.SubmitResolutionBatch(r.Context(), actor, engine.SubmitResolutionInput{
		AcceptanceID: strings.TrimSpace(req.AcceptanceID),
		Message:      strings.TrimSpace(req.Message),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptanceView(a))
}

func (h *Handler) ResolutionStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acceptanceID := strings.TrimSpace(r.URL.Query().Get("acceptance_id"))
	if acceptanceID == "" {
		http.Error(w, "acceptance_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.engine.GetResolutionStatus(r.Context(), actor, acceptanceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defects := make([]map[string]any, 0, len(status.Defects))
	for _, d := range status.Defects {
		defects = append(defects, defectView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"acceptance_id": status.AcceptanceID,
		"status":        status.Status,
		"total":         status.Total,
		"resolved":      status.Resolved,
		"pending":       status.Pending,
		"defects":       defects,
	})
}

func (h *Handler) RatingSummary(w http.ResponseWriter, r *http.Request) {
	performingPartyID := strings.TrimSpace(r.URL.Query().Get("performing_party_id"))

	s, err := h.engine.RatingSummary(r.Context(), performingPartyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"performing_party_id": s.PerformingPartyID,
		"total_ratings":       s.TotalRatings,
		"avg_quality":         s.AvgQuality,
		"avg_timeliness":      s.AvgTimeliness,
		"avg_communication":   s.AvgCommunication,
		"avg_value":           s.AvgValue,
		"avg_overall":         s.AvgOverall,
	})
}

// CreateWorkItem seeds a work item row. The route is admin-only; party
// membership for everything else derives from these rows.
func (h *Handler) CreateWorkItem(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromHeader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !actor.Admin {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}

	var req struct {
		Title                string `json:"title"`
		CommissioningPartyID string `json:"commissioning_party_id"`
		PerformingPartyID    string `json:"performing_party_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.CommissioningPartyID = strings.TrimSpace(req.CommissioningPartyID)
	req.PerformingPartyID = strings.TrimSpace(req.PerformingPartyID)
	if req.Title == "" || req.CommissioningPartyID == "" || req.PerformingPartyID == "" {
		http.Error(w, "title, commissioning_party_id and performing_party_id are required", http.StatusBadRequest)
		return
	}
	if req.CommissioningPartyID == req.PerformingPartyID {
		http.Error(w, "commissioning and performing party must differ", http.StatusBadRequest)
		return
	}

	id, err := h.workItems.Create(r.Context(), model.WorkItem{
		Title:                req.Title,
		CommissioningPartyID: req.CommissioningPartyID,
		PerformingPartyID:    req.PerformingPartyID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}
