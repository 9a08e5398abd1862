package shared

import "strings"

// Role is the privilege level of an actor within a tenant.
type Role string

const (
	// RoleClient is a client-facing acceptance link bound to a single quote.
	RoleClient Role = "CLIENT"
	// RoleStaff is regular tenant staff.
	RoleStaff Role = "STAFF"
	// RoleManager approves or rejects quotes.
	RoleManager Role = "MANAGER"
	// RoleAdmin has every tenant capability.
	RoleAdmin Role = "ADMIN"
	// RoleSystem is used by background sweeps.
	RoleSystem Role = "SYSTEM"
)

// ParseRole normalises a role name, reporting whether it is known.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleClient, RoleStaff, RoleManager, RoleAdmin, RoleSystem:
		return role, true
	}
	return "", false
}

// IsStaff reports whether the role belongs to the tenant's own staff.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleManager || r == RoleAdmin
}

// Actor describes who performs an operation.
type Actor struct {
	ID       int64
	TenantID int64
	Role     Role
	// QuoteID scopes client-link actors to one quote.
	QuoteID int64
}

// SystemActor returns the actor used by background jobs for a tenant.
func SystemActor(tenantID int64) Actor {
	return Actor{TenantID: tenantID, Role: RoleSystem}
}

// CanAccessQuote reports whether the actor may see the given quote.
func (a Actor) CanAccessQuote(quoteID int64) bool {
	if a.Role == RoleClient {
		return a.QuoteID != 0 && a.QuoteID == quoteID
	}
	return true
}
