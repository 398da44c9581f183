package orders

import (
	"github.com/google/uuid"

	"github.com/hms/orderflow/internal/platform/auth"
)

// PermissionGate decides which actors may request which edges. One shared
// policy covers lab orders and prescriptions; the rules do not depend on the
// order kind.
//
//	admin               any edge the transition table allows
//	assigned staff      the single forward edge from the current status
//	other staff, other  none (read-only)
type PermissionGate struct{}

// Allowed reports whether the actor may move an order it relates to (via
// assignedStaffID) from current to target. Edge existence is the state
// machine's concern; the gate only answers "may this caller use it".
func (PermissionGate) Allowed(actor auth.Actor, assignedStaffID *uuid.UUID, current, target Status) bool {
	if actor.IsAdmin() {
		return true
	}
	if !actor.IsAssigned(assignedStaffID) {
		return false
	}
	// Assigned staff may only advance: no cancelling, no skipping
	// in_progress, no backward moves.
	switch {
	case current == StatusPending && target == StatusInProgress:
		return true
	case current == StatusInProgress && target == StatusCompleted:
		return true
	}
	return false
}
