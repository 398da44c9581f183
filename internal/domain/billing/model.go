package billing

import (
	"time"

	"github.com/google/uuid"
)

// Bill maps to the bill table. A bill is keyed by the (item_type,
// reference_id) pair that clinical orders point at; at most one bill exists
// per reference.
type Bill struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ItemType    string     `db:"item_type" json:"item_type"`
	ReferenceID uuid.UUID  `db:"reference_id" json:"reference_id"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Status      string     `db:"status" json:"status"`
	TotalAmount float64    `db:"total_amount" json:"total_amount"`
	PaidAmount  float64    `db:"paid_amount" json:"paid_amount"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Paid reports whether the bill is fully settled.
func (b *Bill) Paid() bool {
	return b.PaidAmount >= b.TotalAmount
}

// Balance returns the outstanding amount, never negative.
func (b *Bill) Balance() float64 {
	bal := b.TotalAmount - b.PaidAmount
	if bal < 0 {
		return 0
	}
	return bal
}

// Payment maps to the bill_payment table.
type Payment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BillID     uuid.UUID `db:"bill_id" json:"bill_id"`
	Amount     float64   `db:"amount" json:"amount"`
	Method     *string   `db:"method" json:"method,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// Check is the read model callers branch on before retrying a completion:
// whether anything billable exists, whether it is settled, and enough of the
// bill to offer a "go pay" action.
type Check struct {
	Exists      bool    `json:"exists"`
	Paid        bool    `json:"paid"`
	TotalAmount float64 `json:"total_amount"`
	PaidAmount  float64 `json:"paid_amount"`
	Balance     float64 `json:"balance"`
	Status      string  `json:"status"`
}
