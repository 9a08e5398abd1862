package quotes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/eventdesk/backoffice/internal/platform/httpx"
	"github.com/eventdesk/backoffice/internal/rbac"
	"github.com/eventdesk/backoffice/internal/shared"
)

// MountRoutes registers the staff facing quote endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.ActorMiddleware)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(rbac.StaffRoles()...))
			r.Post("/quotes", h.Create)
			r.Post("/quotes/preview", h.Preview)
			r.Get("/quotes", h.List)
			r.Patch("/quotes/{id}", h.Update)
			r.Delete("/quotes/{id}", h.Delete)
			r.Post("/quotes/{id}/transitions", h.Transition)
		})
		r.Get("/quotes/{id}", h.Show)
	})
}

// MountPublicRoutes registers the rate limited client response endpoint.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	limiter := httprate.Limit(h.publicRateLimit, time.Minute,
		httprate.WithKeyFuncs(publicRateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(limiter)
		r.Use(h.rbac.ActorMiddleware)
		r.Use(h.rbac.RequireRole(shared.RoleClient))
		r.Post("/public/quotes/{id}/respond", h.Respond)
	})
}

func publicRateLimitKey(r *http.Request) (string, error) {
	if scope := r.Header.Get(rbac.HeaderQuoteScope); scope != "" {
		if _, err := strconv.ParseInt(scope, 10, 64); err == nil {
			return "quote:" + scope, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
