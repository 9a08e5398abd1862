package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eventdesk/backoffice/internal/platform/httpx"
	"github.com/eventdesk/backoffice/internal/rbac"
	"github.com/eventdesk/backoffice/internal/shared"
)

// LogReader lists delivery attempts for a record.
type LogReader interface {
	ListForEntity(ctx context.Context, tenantID int64, entityType string, entityID int64, limit int) ([]LogEntry, error)
}

// Handler exposes the signed-in user's in-app notifications.
type Handler struct {
	logger *slog.Logger
	store  *InAppStore
	logs   LogReader
	rbac   rbac.Middleware
}

// NewHandler constructs the handler. logs may be nil.
func NewHandler(logger *slog.Logger, store *InAppStore, logs LogReader, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, logs: logs, rbac: rbac}
}

// MountRoutes registers the notification endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.ActorMiddleware)
		r.Use(h.rbac.RequireRole(rbac.StaffRoles()...))
		r.Get("/notifications", h.List)
		r.Post("/notifications/{id}/read", h.MarkRead)
		r.Get("/notifications/log", h.DeliveryLog)
	})
}

type inAppResponse struct {
	Data   []InAppEntry `json:"data"`
	Unread int          `json:"unread"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	q := r.URL.Query()
	verr := &shared.ValidationError{}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 200 {
			verr.Add("limit", "must be an integer between 1 and 200")
		}
		limit = v
	}
	unreadOnly := false
	if raw := q.Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("unread", "must be a boolean")
		}
		unreadOnly = v
	}
	if err := verr.OrNil(); err != nil {
		httpx.RespondError(w, err)
		return
	}

	entries, err := h.store.List(r.Context(), actor.TenantID, actor.ID, unreadOnly, limit)
	if err != nil {
		h.fail(w, r, "list notifications", err)
		return
	}
	unread, err := h.store.UnreadCount(r.Context(), actor.TenantID, actor.ID)
	if err != nil {
		h.fail(w, r, "count notifications", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inAppResponse{Data: entries, Unread: unread})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	if err := h.store.MarkRead(r.Context(), actor.TenantID, actor.ID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "mark notification read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeliveryLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	if h.logs == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "delivery log unavailable")
		return
	}
	q := r.URL.Query()
	verr := &shared.ValidationError{}
	entityType := q.Get("entityType")
	if entityType == "" {
		verr.Add("entityType", "is required")
	}
	entityID, err := strconv.ParseInt(q.Get("entityId"), 10, 64)
	if err != nil || entityID <= 0 {
		verr.Add("entityId", "must be a positive integer")
	}
	if err := verr.OrNil(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.logs.ListForEntity(r.Context(), actor.TenantID, entityType, entityID, 50)
	if err != nil {
		h.fail(w, r, "list notification log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrConflict) {
		h.logger.Debug(op+" rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
