package rbac

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/eventdesk/backoffice/internal/platform/httpx"
	"github.com/eventdesk/backoffice/internal/shared"
)

// Headers set by the authenticating gateway in front of the service.
const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRole  = "X-Actor-Role"
	HeaderQuoteScope = "X-Quote-Scope"
)

// Middleware wires actor resolution and role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// ActorMiddleware resolves the actor from gateway headers and stores it in the
// request context. Requests without a valid tenant and role are rejected.
func (m Middleware) ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromHeaders(r.Header)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("rbac resolve actor", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireRole ensures the current actor holds one of the given roles.
func (m Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := make(map[shared.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				if m.Logger != nil {
					m.Logger.Info("rbac role denied",
						slog.Int64("actor_id", actor.ID),
						slog.String("role", string(actor.Role)),
						slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StaffRoles lists the roles of the tenant's own staff.
func StaffRoles() []shared.Role {
	return []shared.Role{shared.RoleStaff, shared.RoleManager, shared.RoleAdmin}
}

type headerError string

func (e headerError) Error() string { return string(e) }

func actorFromHeaders(h http.Header) (shared.Actor, error) {
	tenantID, err := positiveInt(h.Get(HeaderTenantID))
	if err != nil {
		return shared.Actor{}, headerError("missing or invalid " + HeaderTenantID)
	}
	role, ok := shared.ParseRole(h.Get(HeaderActorRole))
	if !ok || role == shared.RoleSystem {
		return shared.Actor{}, headerError("missing or invalid " + HeaderActorRole)
	}
	actor := shared.Actor{TenantID: tenantID, Role: role}
	if raw := strings.TrimSpace(h.Get(HeaderActorID)); raw != "" {
		id, err := positiveInt(raw)
		if err != nil {
			return shared.Actor{}, headerError("invalid " + HeaderActorID)
		}
		actor.ID = id
	}
	if role == shared.RoleClient {
		quoteID, err := positiveInt(h.Get(HeaderQuoteScope))
		if err != nil {
			return shared.Actor{}, headerError("client actors require " + HeaderQuoteScope)
		}
		actor.QuoteID = quoteID
	} else if actor.ID == 0 {
		return shared.Actor{}, headerError("missing " + HeaderActorID)
	}
	return actor, nil
}

func positiveInt(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, headerError("must be positive")
	}
	return v, nil
}
