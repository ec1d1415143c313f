package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/db"
	"github.com/leadpulse/leadpulse/internal/lead"
	"github.com/leadpulse/leadpulse/internal/schedule"
)

// LeadWriter is the write path for leads. lead.Store implements it;
// handlers never talk to the repository directly, so the pre-persist
// state derivation cannot be bypassed.
type LeadWriter interface {
	Create(ctx context.Context, l *db.Lead) error
	Update(ctx context.Context, l *db.Lead) error
}

// LeadReader defines the read operations handlers need.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db.Lead, error)
	ListByRange(ctx context.Context, rng schedule.Range) ([]*db.Lead, error)
	ListOther(ctx context.Context, c schedule.Complement) ([]*db.Lead, error)
	ListByStatus(ctx context.Context, status string) ([]*db.Lead, error)
	ListByAutoStatus(ctx context.Context, autoStatus string) ([]*db.Lead, error)
	ListFavourites(ctx context.Context) ([]*db.Lead, error)
}

// NotificationStore defines the notification operations handlers need.
type NotificationStore interface {
	List(ctx context.Context, unreadOnly bool, limit, offset int) ([]*db.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LeadRequest represents the incoming lead body. Phone arrives as a
// string and is canonicalized to its numeric form before persistence.
type LeadRequest struct {
	Name             string   `json:"name"`
	Phone            string   `json:"phone"`
	Purpose          *string  `json:"purpose,omitempty"`
	Remarks          *string  `json:"remarks,omitempty"`
	Budget           *string  `json:"budget,omitempty"`
	Source           *string  `json:"source,omitempty"`
	Requirement      *string  `json:"requirement,omitempty"`
	ReferenceName    *string  `json:"reference_name,omitempty"`
	ReferenceContact *string  `json:"reference_contact,omitempty"`
	Potential        []string `json:"potential,omitempty"`
	Favourite        bool     `json:"favourite"`
	Status           *string  `json:"status,omitempty"`
	ScheduledDate    string   `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime    *string  `json:"scheduled_time,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	writer LeadWriter
	reader LeadReader
	notifs NotificationStore
	now    func() time.Time // localized clock, injectable for tests
}

// NewHandler creates a new API handler. now may be nil (wall clock).
func NewHandler(logger *zap.Logger, writer LeadWriter, reader LeadReader, notifs NotificationStore, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		logger: logger,
		writer: writer,
		reader: reader,
		notifs: notifs,
		now:    now,
	}
}

// CreateLead handles POST /v1/leads
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	l, ok := h.leadFromRequest(w, &req)
	if !ok {
		return
	}

	if err := h.writer.Create(ctx, l); err != nil {
		h.writeLeadWriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, l)
}

// UpdateLead handles PUT /v1/leads/{id}
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid lead id", "id must be a valid UUID")
		return
	}

	var req LeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	existing, err := h.reader.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Lead not found", "")
			return
		}
		h.logger.Error("failed to fetch lead", zap.Error(err), zap.String("lead_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch lead", "")
		return
	}

	l, ok := h.leadFromRequest(w, &req)
	if !ok {
		return
	}
	l.ID = existing.ID
	l.CreatedAt = existing.CreatedAt

	if err := h.writer.Update(ctx, l); err != nil {
		h.writeLeadWriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, l)
}

// GetLead handles GET /v1/leads/{id}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid lead id", "id must be a valid UUID")
		return
	}

	l, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Lead not found", "")
			return
		}
		h.logger.Error("failed to fetch lead", zap.Error(err), zap.String("lead_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to fetch lead", "")
		return
	}

	h.writeJSON(w, http.StatusOK, l)
}

// ListLeads handles GET /v1/leads?schedule=...&date=...
// Without a schedule parameter it lists favourites when favourite=true,
// otherwise responds with the supported filters.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if q.Get("favourite") == "true" {
		leads, err := h.reader.ListFavourites(ctx)
		if err != nil {
			h.logger.Error("failed to list favourite leads", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list leads", "")
			return
		}
		h.writeJSON(w, http.StatusOK, leadList(leads))
		return
	}

	kw := schedule.Keyword(q.Get("schedule"))
	if kw == "" || !kw.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid schedule",
			"schedule must be one of today, tomorrow, weekend, custom, other")
		return
	}

	now := h.now()
	var (
		leads []*db.Lead
		err   error
	)

	switch kw {
	case schedule.Custom:
		date, parseErr := time.ParseInLocation("2006-01-02", q.Get("date"), now.Location())
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid date",
				"custom schedule requires date=YYYY-MM-DD")
			return
		}
		leads, err = h.reader.ListByRange(ctx, schedule.ResolveCustom(date))
	case schedule.Other:
		leads, err = h.reader.ListOther(ctx, schedule.ResolveOther(now))
	default:
		rng, resolveErr := schedule.Resolve(kw, now)
		if resolveErr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid schedule", resolveErr.Error())
			return
		}
		leads, err = h.reader.ListByRange(ctx, rng)
	}

	if err != nil {
		h.logger.Error("failed to list leads", zap.Error(err), zap.String("schedule", string(kw)))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list leads", "")
		return
	}

	h.writeJSON(w, http.StatusOK, leadList(leads))
}

// ListLeadsByStatus handles GET /v1/leads/status/{status}
func (h *Handler) ListLeadsByStatus(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")
	switch status {
	case db.StatusOpen, db.StatusInProgress, db.StatusSiteVisitScheduled,
		db.StatusSiteVisited, db.StatusClosed, db.StatusRejected:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid status", "unknown workflow status "+status)
		return
	}

	leads, err := h.reader.ListByStatus(r.Context(), status)
	if err != nil {
		h.logger.Error("failed to list leads by status", zap.Error(err), zap.String("status", status))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list leads", "")
		return
	}

	h.writeJSON(w, http.StatusOK, leadList(leads))
}

// ListLeadsByAutoStatus handles GET /v1/leads/autostatus/{autostatus}
func (h *Handler) ListLeadsByAutoStatus(w http.ResponseWriter, r *http.Request) {
	autoStatus := chi.URLParam(r, "autostatus")
	if autoStatus != db.AutoStatusNew && autoStatus != db.AutoStatusMissed {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid autostatus", "autostatus must be new or missed")
		return
	}

	leads, err := h.reader.ListByAutoStatus(r.Context(), autoStatus)
	if err != nil {
		h.logger.Error("failed to list leads by autostatus", zap.Error(err), zap.String("autostatus", autoStatus))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list leads", "")
		return
	}

	h.writeJSON(w, http.StatusOK, leadList(leads))
}

// ListNotifications handles GET /v1/notifications?unread=true&limit=&offset=
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid limit", "limit must be 1-200")
			return
		}
		limit = n
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid offset", "offset must be >= 0")
			return
		}
		offset = n
	}

	notifications, err := h.notifs.List(r.Context(), q.Get("unread") == "true", limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	if notifications == nil {
		notifications = []*db.Notification{}
	}
	h.writeJSON(w, http.StatusOK, notifications)
}

// MarkNotificationRead handles PATCH /v1/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification id", "id must be a valid UUID")
		return
	}

	if err := h.notifs.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
			return
		}
		h.logger.Error("failed to mark notification read", zap.Error(err), zap.String("notification_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update notification", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteNotification handles DELETE /v1/notifications/{id}
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification id", "id must be a valid UUID")
		return
	}

	if err := h.notifs.Delete(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
			return
		}
		h.logger.Error("failed to delete notification", zap.Error(err), zap.String("notification_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete notification", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// leadFromRequest builds a db.Lead from a request body, writing a 400
// response and returning ok=false on validation problems.
func (h *Handler) leadFromRequest(w http.ResponseWriter, req *LeadRequest) (*db.Lead, bool) {
	if req.Name == "" || req.Phone == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name and phone are required")
		return nil, false
	}

	phone, err := lead.NormalizePhone(req.Phone)
	if err != nil {
		h.writeFieldError(w, err)
		return nil, false
	}

	if req.ScheduledDate == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid field: scheduled_date", "required")
		return nil, false
	}
	scheduledDate, err := time.ParseInLocation("2006-01-02", req.ScheduledDate, h.now().Location())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid scheduled_date", "scheduled_date must be YYYY-MM-DD")
		return nil, false
	}

	return &db.Lead{
		Name:             req.Name,
		Phone:            phone,
		Purpose:          req.Purpose,
		Remarks:          req.Remarks,
		Budget:           req.Budget,
		Source:           req.Source,
		Requirement:      req.Requirement,
		ReferenceName:    req.ReferenceName,
		ReferenceContact: req.ReferenceContact,
		Potential:        req.Potential,
		Favourite:        req.Favourite,
		Status:           req.Status,
		ScheduledDate:    scheduledDate,
		ScheduledTime:    req.ScheduledTime,
	}, true
}

func (h *Handler) writeLeadWriteError(w http.ResponseWriter, err error) {
	var fe *lead.FieldError
	switch {
	case errors.As(err, &fe):
		h.writeFieldError(w, err)
	case errors.Is(err, db.ErrDuplicatePhone):
		h.writeError(w, http.StatusConflict, "duplicate_phone", "Lead already exists", err.Error())
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Lead not found", "")
	default:
		h.logger.Error("failed to persist lead", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to persist lead", "")
	}
}

func (h *Handler) writeFieldError(w http.ResponseWriter, err error) {
	var fe *lead.FieldError
	if errors.As(err, &fe) {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid field: "+fe.Field, fe.Message)
		return
	}
	h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid request", err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func leadList(leads []*db.Lead) []*db.Lead {
	if leads == nil {
		return []*db.Lead{}
	}
	return leads
}
