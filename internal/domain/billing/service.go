package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Ledger owns bills and their payments. The order lifecycle only ever reads
// it; payments arrive through the billing endpoints, never as a side effect
// of a status transition.
type Ledger struct {
	bills BillRepository
}

func NewLedger(bills BillRepository) *Ledger {
	return &Ledger{bills: bills}
}

var validBillStatuses = map[string]bool{
	"issued": true, "partial": true, "paid": true, "cancelled": true,
}

func (l *Ledger) CreateBill(ctx context.Context, b *Bill) error {
	if b.ItemType == "" {
		return fmt.Errorf("item_type is required")
	}
	if b.ReferenceID == uuid.Nil {
		return fmt.Errorf("reference_id is required")
	}
	if b.TotalAmount < 0 {
		return fmt.Errorf("total_amount must not be negative")
	}
	if b.Status == "" {
		b.Status = "issued"
	}
	if !validBillStatuses[b.Status] {
		return fmt.Errorf("invalid bill status: %s", b.Status)
	}
	return l.bills.Create(ctx, b)
}

func (l *Ledger) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return l.bills.GetByID(ctx, id)
}

func (l *Ledger) ListBillsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return l.bills.ListByPatient(ctx, patientID, limit, offset)
}

// CheckByReference resolves the bill for a billing reference into the
// caller-facing read model. A missing bill is not an error: it reports
// exists=false, paid=false.
func (l *Ledger) CheckByReference(ctx context.Context, itemType string, referenceID uuid.UUID) (*Check, *Bill, error) {
	bill, err := l.bills.GetByReference(ctx, itemType, referenceID)
	if err != nil {
		if err == ErrNotFound {
			return &Check{}, nil, nil
		}
		return nil, nil, err
	}
	return &Check{
		Exists:      true,
		Paid:        bill.Paid(),
		TotalAmount: bill.TotalAmount,
		PaidAmount:  bill.PaidAmount,
		Balance:     bill.Balance(),
		Status:      bill.Status,
	}, bill, nil
}

// RequirePaidFor reports whether the referenced bill is fully paid, along
// with the bill itself so callers can surface the outstanding balance. It
// reads the ledger on every call; payment state is never cached between
// attempts.
func (l *Ledger) RequirePaidFor(ctx context.Context, itemType string, referenceID uuid.UUID) (bool, *Bill, error) {
	check, bill, err := l.CheckByReference(ctx, itemType, referenceID)
	if err != nil {
		return false, nil, err
	}
	return check.Exists && check.Paid, bill, nil
}

// RecordPayment applies a payment to a bill. The amount must be positive and
// is capped at the outstanding balance; the bill status moves to partial or
// paid accordingly.
func (l *Ledger) RecordPayment(ctx context.Context, billID uuid.UUID, amount float64, method *string) (*Bill, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	bill, err := l.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.Status == "cancelled" {
		return nil, fmt.Errorf("cannot pay a cancelled bill")
	}
	if bill.Paid() {
		return nil, fmt.Errorf("bill is already settled")
	}
	if bal := bill.Balance(); amount > bal {
		amount = bal
	}
	return l.bills.AddPayment(ctx, &Payment{
		BillID: billID,
		Amount: amount,
		Method: method,
	})
}
