package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/eventdesk/backoffice/internal/platform/httpx"
	"github.com/eventdesk/backoffice/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and its CSV export. Only managers
// and admins read the audit trail.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil || h.service == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate exceeded")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.ActorMiddleware)
		gr.Use(h.rbac.RequireRole(shared.RoleManager, shared.RoleAdmin))
		gr.Get("/audit", h.handleTimeline)
		gr.With(limiter).Get("/audit/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok && actor.ID != 0 {
		return "actor:" + strconv.FormatInt(actor.TenantID, 10) + ":" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
