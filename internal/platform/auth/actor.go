package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognised by the permission layer. Any unknown role in a token is
// normalised to RoleOther and gets read-only access.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleOther = "other"
)

// Actor is the verified caller of a request: its subject from the token, its
// role, and the staff record it acts as (nil for non-staff callers). It is
// resolved once by the auth middleware and passed through the request context;
// domain code never reads identity from anywhere else.
type Actor struct {
	Subject string
	Role    string
	StaffID *uuid.UUID
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsAssigned reports whether the actor is the staff member assigned to the
// given record. A nil assignment never matches.
func (a Actor) IsAssigned(assignedStaffID *uuid.UUID) bool {
	if a.Role != RoleStaff || a.StaffID == nil || assignedStaffID == nil {
		return false
	}
	return *a.StaffID == *assignedStaffID
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor set by the auth middleware. The zero
// Actor (role "") is returned when no middleware ran; it matches no role.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}

// NormalizeRole maps a token role onto the closed role set.
func NormalizeRole(role string) string {
	switch role {
	case RoleAdmin, RoleStaff:
		return role
	default:
		return RoleOther
	}
}
