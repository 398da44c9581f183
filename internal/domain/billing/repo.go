package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no bill matches the lookup.
var ErrNotFound = errors.New("bill not found")

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	GetByReference(ctx context.Context, itemType string, referenceID uuid.UUID) (*Bill, error)
	AddPayment(ctx context.Context, p *Payment) (*Bill, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error)
}
