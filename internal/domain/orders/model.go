package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of lifecycle states for a clinical order.
// Pending is the only creation state; completed and cancelled are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a client-supplied status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status: %q", s)
}

// Terminal reports whether the status has no outbound transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Kind distinguishes the two order flavours. They share one lifecycle and
// differ only in their item payloads.
type Kind string

const (
	KindLabOrder     Kind = "lab_order"
	KindPrescription Kind = "prescription"
)

// ParseKind validates a client-supplied kind value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLabOrder, KindPrescription:
		return Kind(s), nil
	}
	return "", fmt.Errorf("invalid kind: %q", s)
}

// Item is a single line on an order: a test or medication reference plus
// free-form detail the lifecycle never inspects.
type Item struct {
	ReferenceID uuid.UUID `json:"reference_id"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity,omitempty"`
	Note        *string   `json:"note,omitempty"`
}

// BillingReference points an order at its bill.
type BillingReference struct {
	ItemType    string    `json:"item_type"`
	ReferenceID uuid.UUID `json:"reference_id"`
}

// ClinicalOrder maps to the clinical_order table. Status only ever changes
// through StateMachine.RequestTransition; nothing else writes the column.
type ClinicalOrder struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	Kind            Kind              `db:"kind" json:"kind"`
	Status          Status            `db:"status" json:"status"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	AssignedStaffID *uuid.UUID        `db:"assigned_staff_id" json:"assigned_staff_id,omitempty"`
	Items           []Item            `db:"items" json:"items"`
	Billing         *BillingReference `db:"-" json:"billing_reference,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// StatusChange is one audit row for a committed transition.
type StatusChange struct {
	ID           uuid.UUID `db:"id" json:"id"`
	OrderID      uuid.UUID `db:"order_id" json:"order_id"`
	FromStatus   Status    `db:"from_status" json:"from_status"`
	ToStatus     Status    `db:"to_status" json:"to_status"`
	ActorSubject string    `db:"actor_subject" json:"actor_subject"`
	ActorRole    string    `db:"actor_role" json:"actor_role"`
	ChangedAt    time.Time `db:"changed_at" json:"changed_at"`
}
