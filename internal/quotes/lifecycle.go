package quotes

import (
	"fmt"
	"time"

	"github.com/eventdesk/backoffice/internal/shared"
)

// transitions is the state table. Statuses missing as keys are terminal.
var transitions = map[Status][]Status{
	StatusDraft:                  {StatusPendingManager, StatusCancelled},
	StatusPendingManager:         {StatusApprovedByManager, StatusRejectedByManager, StatusCancelled},
	StatusApprovedByManager:      {StatusSentToClient, StatusCancelled},
	StatusSentToClient:           {StatusClientRequestedChanges, StatusAcceptedByClient, StatusExpired, StatusCancelled},
	StatusClientRequestedChanges: {StatusPendingManager, StatusCancelled},
	StatusRejectedByManager:      {StatusDraft},
}

// capabilities maps a target status to the roles allowed to move a quote into it.
var capabilities = map[Status]map[shared.Role]bool{
	StatusDraft:                  {shared.RoleManager: true, shared.RoleAdmin: true},
	StatusPendingManager:         {shared.RoleStaff: true, shared.RoleManager: true, shared.RoleAdmin: true},
	StatusApprovedByManager:      {shared.RoleManager: true, shared.RoleAdmin: true},
	StatusRejectedByManager:      {shared.RoleManager: true, shared.RoleAdmin: true},
	StatusSentToClient:           {shared.RoleStaff: true, shared.RoleManager: true, shared.RoleAdmin: true},
	StatusClientRequestedChanges: {shared.RoleClient: true, shared.RoleStaff: true, shared.RoleManager: true, shared.RoleAdmin: true},
	StatusAcceptedByClient:       {shared.RoleClient: true, shared.RoleStaff: true, shared.RoleManager: true, shared.RoleAdmin: true},
	StatusExpired:                {shared.RoleSystem: true, shared.RoleAdmin: true},
	StatusCancelled:              {shared.RoleManager: true, shared.RoleAdmin: true},
}

// TransitionError reports a status change that is not in the state table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("quotes: cannot move quote from %s to %s", e.From, e.To)
}

// Unwrap lets errors.Is match shared.ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return shared.ErrInvalidTransition
}

// CanTransition reports whether from → to exists in the state table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// IsTerminal reports whether no transition leaves s. REJECTED_BY_MANAGER is
// soft-terminal: it may only be reopened to DRAFT.
func IsTerminal(s Status) bool {
	switch s {
	case StatusAcceptedByClient, StatusRejectedByManager, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// RoleAllowed reports whether role may move a quote into target.
func RoleAllowed(role shared.Role, target Status) bool {
	return capabilities[target][role]
}

// CheckTransition validates a transition for an actor without side effects.
// Unknown transitions are reported before permissions.
func CheckTransition(actor shared.Actor, from, to Status) error {
	if !to.Valid() || !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	if !RoleAllowed(actor.Role, to) {
		return fmt.Errorf("%w: role %s may not move quotes into %s", shared.ErrForbidden, actor.Role, to)
	}
	return nil
}

// CheckInitialStatus validates the status requested at creation time. Only
// DRAFT and the create-and-submit shortcut PENDING_MANAGER are accepted.
func CheckInitialStatus(actor shared.Actor, requested Status) (Status, error) {
	if requested == "" || requested == StatusDraft {
		return StatusDraft, nil
	}
	if requested != StatusPendingManager {
		return "", &TransitionError{From: StatusDraft, To: requested}
	}
	if !RoleAllowed(actor.Role, StatusPendingManager) {
		return "", fmt.Errorf("%w: role %s may not submit quotes", shared.ErrForbidden, actor.Role)
	}
	return StatusPendingManager, nil
}

// EffectiveStatus applies lazy expiry: a sent quote observed after the end of
// its validity day is EXPIRED.
func EffectiveStatus(q Quote, now time.Time) Status {
	if q.Status == StatusSentToClient && IsPastValidity(q.ValidUntil, now) {
		return StatusExpired
	}
	return q.Status
}

// IsPastValidity reports whether now falls after the validUntil calendar day.
func IsPastValidity(validUntil, now time.Time) bool {
	if validUntil.IsZero() {
		return false
	}
	y, m, d := validUntil.Date()
	endOfDay := time.Date(y, m, d, 0, 0, 0, 0, validUntil.Location()).AddDate(0, 0, 1)
	return !now.Before(endOfDay)
}
