package quotes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eventdesk/backoffice/internal/platform/httpx"
	"github.com/eventdesk/backoffice/internal/rbac"
	"github.com/eventdesk/backoffice/internal/shared"
)

// HeaderIdempotencyKey deduplicates create requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// Client decisions accepted on the public respond endpoint.
const (
	DecisionAccept         = "accept"
	DecisionRequestChanges = "request_changes"
)

// Handler exposes quote operations over JSON.
type Handler struct {
	logger          *slog.Logger
	service         *Service
	rbac            rbac.Middleware
	publicRateLimit int
}

// NewHandler builds a handler. publicRateLimit is requests per minute per
// client on the public respond endpoint.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, publicRateLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if publicRateLimit <= 0 {
		publicRateLimit = 20
	}
	return &Handler{logger: logger, service: service, rbac: rbac, publicRateLimit: publicRateLimit}
}

type listResponse struct {
	Data []Quote `json:"data"`
	shared.Pagination
}

// RespondRequest is the body of the public client response.
type RespondRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q, err := h.service.Create(r.Context(), actor, req, strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)))
	if err != nil {
		h.fail(w, r, "create quote", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/quotes/%d", q.ID))
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q, err := h.service.Preview(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, "preview quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, err := parseListQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quotes, total, err := h.service.List(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, "list quotes", err)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       quotes,
		Pagination: shared.NewPagination(req.Limit, req.Offset, total, defaultListLimit),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req UpdateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q, err := h.service.Update(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, "update quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, r, "delete quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q, err := h.service.Transition(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, "transition quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Respond lets a client accept a sent quote or ask for changes.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req RespondRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var target Status
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case DecisionAccept:
		target = StatusAcceptedByClient
	case DecisionRequestChanges:
		target = StatusClientRequestedChanges
	default:
		verr := &shared.ValidationError{}
		verr.Add("decision", "must be accept or request_changes")
		httpx.RespondError(w, verr)
		return
	}
	q, err := h.service.Transition(r.Context(), actor, id, TransitionRequest{Status: target, Reason: req.Reason})
	if err != nil {
		h.fail(w, r, "respond to quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":          q.ID,
		"quoteNumber": q.QuoteNumber,
		"status":      q.Status,
	})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if isClientError(err) {
		h.logger.Debug(op+" rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isClientError(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrForbidden) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrInvalidTransition)
}

func quoteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return 0, false
	}
	return id, true
}

func parseListQuery(r *http.Request) (ListQuotesRequest, error) {
	q := r.URL.Query()
	var req ListQuotesRequest
	verr := &shared.ValidationError{}
	if raw := q.Get("status"); raw != "" {
		s := Status(raw)
		req.Status = &s
	}
	if raw := q.Get("clientId"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			req.ClientID = &v
		} else {
			verr.Add("clientId", "must be an integer")
		}
	}
	if raw := q.Get("eventId"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			req.EventID = &v
		} else {
			verr.Add("eventId", "must be an integer")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			req.Limit = v
		} else {
			verr.Add("limit", "must be an integer")
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			req.Offset = v
		} else {
			verr.Add("offset", "must be an integer")
		}
	}
	return req, verr.OrNil()
}
