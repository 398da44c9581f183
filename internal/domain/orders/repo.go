package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hms/orderflow/internal/platform/auth"
)

var (
	// ErrNotFound is returned when the order id does not resolve.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned by UpdateStatus when the expected
	// current status no longer matches: another writer won the race.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	PatientID       *uuid.UUID
	AssignedStaffID *uuid.UUID
	Status          Status
	Kind            Kind
}

// OrderRepository loads and persists the order aggregate. UpdateStatus is the
// only write path for the status column and is a compare-and-swap: it applies
// the change only when the stored status still equals from, records the audit
// row, and returns ErrStatusConflict otherwise.
type OrderRepository interface {
	Create(ctx context.Context, o *ClinicalOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actor auth.Actor) (*ClinicalOrder, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*ClinicalOrder, int, error)
	ListStatusChanges(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)
}
