package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func newTestLedger() (*Ledger, BillRepository) {
	repo := NewBillRepoMem()
	return NewLedger(repo), repo
}

func TestCreateBill_Defaults(t *testing.T) {
	ledger, _ := newTestLedger()
	b := &Bill{ItemType: "lab_order", ReferenceID: uuid.New(), TotalAmount: 120}
	if err := ledger.CreateBill(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if b.Status != "issued" {
		t.Errorf("expected default status issued, got %q", b.Status)
	}
}

func TestCreateBill_Validation(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.CreateBill(ctx, &Bill{ReferenceID: uuid.New()}); err == nil {
		t.Error("expected error for missing item_type")
	}
	if err := ledger.CreateBill(ctx, &Bill{ItemType: "lab_order"}); err == nil {
		t.Error("expected error for missing reference_id")
	}
	if err := ledger.CreateBill(ctx, &Bill{ItemType: "lab_order", ReferenceID: uuid.New(), TotalAmount: -5}); err == nil {
		t.Error("expected error for negative total")
	}
	if err := ledger.CreateBill(ctx, &Bill{ItemType: "lab_order", ReferenceID: uuid.New(), Status: "bogus"}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestCheckByReference_Missing(t *testing.T) {
	ledger, _ := newTestLedger()
	check, bill, err := ledger.CheckByReference(context.Background(), "lab_order", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Exists || check.Paid {
		t.Errorf("expected exists=false paid=false, got %+v", check)
	}
	if bill != nil {
		t.Error("expected nil bill for missing reference")
	}
}

func TestRequirePaidFor_UnpaidThenPaid(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	ref := uuid.New()

	b := &Bill{ItemType: "lab_order", ReferenceID: ref, TotalAmount: 100}
	if err := ledger.CreateBill(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	paid, bill, err := ledger.RequirePaidFor(ctx, "lab_order", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid {
		t.Error("expected unpaid bill")
	}
	if bill == nil || bill.Balance() != 100 {
		t.Errorf("expected balance 100, got %+v", bill)
	}

	if _, err := ledger.RecordPayment(ctx, b.ID, 100, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Payment state must be re-read, not cached from the earlier check.
	paid, _, err = ledger.RequirePaidFor(ctx, "lab_order", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !paid {
		t.Error("expected bill to be paid after payment")
	}
}

func TestRecordPayment_Partial(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	b := &Bill{ItemType: "prescription", ReferenceID: uuid.New(), TotalAmount: 80}
	if err := ledger.CreateBill(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := ledger.RecordPayment(ctx, b.ID, 30, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != "partial" {
		t.Errorf("expected partial status, got %q", updated.Status)
	}
	if updated.Balance() != 50 {
		t.Errorf("expected balance 50, got %v", updated.Balance())
	}
}

func TestRecordPayment_CapsAtBalance(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	b := &Bill{ItemType: "prescription", ReferenceID: uuid.New(), TotalAmount: 40}
	if err := ledger.CreateBill(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := ledger.RecordPayment(ctx, b.ID, 500, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.PaidAmount != 40 {
		t.Errorf("expected overpayment capped at 40, got %v", updated.PaidAmount)
	}
	if updated.Status != "paid" {
		t.Errorf("expected paid status, got %q", updated.Status)
	}
}

func TestRecordPayment_Rejections(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	b := &Bill{ItemType: "lab_order", ReferenceID: uuid.New(), TotalAmount: 10}
	if err := ledger.CreateBill(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := ledger.RecordPayment(ctx, b.ID, 0, nil); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := ledger.RecordPayment(ctx, uuid.New(), 10, nil); err == nil {
		t.Error("expected error for unknown bill")
	}

	if _, err := ledger.RecordPayment(ctx, b.ID, 10, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ledger.RecordPayment(ctx, b.ID, 10, nil); err == nil {
		t.Error("expected error when paying a settled bill")
	}
}
