package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/orderflow/internal/domain/billing"
	"github.com/hms/orderflow/internal/platform/auth"
)

type fixture struct {
	repo   OrderRepository
	ledger *billing.Ledger
	sm     *StateMachine
}

func newFixture() *fixture {
	repo := NewOrderRepoMem()
	ledger := billing.NewLedger(billing.NewBillRepoMem())
	sm := NewStateMachine(repo, ledger, zerolog.Nop())
	return &fixture{repo: repo, ledger: ledger, sm: sm}
}

// seedOrder creates a pending lab order assigned to the returned staff id,
// with a bill of the given amount already paid up by paidAmount.
func (f *fixture) seedOrder(t *testing.T, total, paidAmount float64) (*ClinicalOrder, uuid.UUID) {
	t.Helper()
	staffID := uuid.New()
	ref := uuid.New()
	o := &ClinicalOrder{
		Kind:            KindLabOrder,
		Status:          StatusPending,
		PatientID:       uuid.New(),
		AssignedStaffID: &staffID,
		Items:           []Item{{ReferenceID: uuid.New(), Name: "CBC panel"}},
		Billing:         &BillingReference{ItemType: string(KindLabOrder), ReferenceID: ref},
	}
	if err := f.repo.Create(context.Background(), o); err != nil {
		t.Fatalf("create order: %v", err)
	}

	b := &billing.Bill{ItemType: string(KindLabOrder), ReferenceID: ref, TotalAmount: total}
	if err := f.ledger.CreateBill(context.Background(), b); err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if paidAmount > 0 {
		if _, err := f.ledger.RecordPayment(context.Background(), b.ID, paidAmount, nil); err != nil {
			t.Fatalf("record payment: %v", err)
		}
	}
	return o, staffID
}

func staffActor(staffID uuid.UUID) auth.Actor {
	return auth.Actor{Subject: "staff-1", Role: auth.RoleStaff, StaffID: &staffID}
}

var adminActor = auth.Actor{Subject: "admin-1", Role: auth.RoleAdmin}

func mustCode(t *testing.T, err error, want ErrorCode) *LifecycleError {
	t.Helper()
	le := AsLifecycleError(err)
	if le == nil {
		t.Fatalf("expected LifecycleError %s, got %v", want, err)
	}
	if le.Code != want {
		t.Fatalf("expected code %s, got %s", want, le.Code)
	}
	return le
}

func (f *fixture) statusOf(t *testing.T, id uuid.UUID) Status {
	t.Helper()
	o, err := f.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return o.Status
}

func TestRequestTransition_HappyPath(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)
	actor := staffActor(staffID)

	updated, err := f.sm.RequestTransition(context.Background(), o.ID, StatusInProgress, actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", updated.Status)
	}

	updated, err = f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
}

func TestRequestTransition_Idempotent(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 0)

	// Requesting the current status succeeds for any actor with read
	// access, including ones the gate would otherwise deny.
	for _, actor := range []auth.Actor{
		adminActor,
		staffActor(staffID),
		{Subject: "o", Role: auth.RoleOther},
	} {
		got, err := f.sm.RequestTransition(context.Background(), o.ID, StatusPending, actor)
		if err != nil {
			t.Fatalf("idempotent request failed for %s: %v", actor.Role, err)
		}
		if got.Status != StatusPending {
			t.Errorf("expected pending, got %s", got.Status)
		}
	}
}

func TestRequestTransition_NoBackwardEdge(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)
	actor := staffActor(staffID)

	if _, err := f.sm.RequestTransition(context.Background(), o.ID, StatusInProgress, actor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No edge leads back into pending, not even for admin.
	_, err := f.sm.RequestTransition(context.Background(), o.ID, StatusPending, adminActor)
	mustCode(t, err, CodeInvalidTransition)
	if got := f.statusOf(t, o.ID); got != StatusInProgress {
		t.Errorf("status mutated on rejected transition: %s", got)
	}
}

func TestRequestTransition_TerminalStates(t *testing.T) {
	f := newFixture()
	o, _ := f.seedOrder(t, 100, 100)

	if _, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCancelled, adminActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, target := range []Status{StatusPending, StatusInProgress, StatusCompleted} {
		_, err := f.sm.RequestTransition(context.Background(), o.ID, target, adminActor)
		mustCode(t, err, CodeInvalidTransition)
	}
	if got := f.statusOf(t, o.ID); got != StatusCancelled {
		t.Errorf("terminal status mutated: %s", got)
	}
}

func TestRequestTransition_PaymentGate(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 40)
	actor := staffActor(staffID)

	if _, err := f.sm.RequestTransition(context.Background(), o.ID, StatusInProgress, actor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unpaid bill blocks completion for staff and admin alike, and the
	// error carries the bill for the caller's payment flow.
	for _, a := range []auth.Actor{actor, adminActor} {
		_, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, a)
		le := mustCode(t, err, CodePaymentRequired)
		if le.Bill == nil {
			t.Fatal("expected bill on payment error")
		}
		if le.Bill.Balance() != 60 {
			t.Errorf("expected balance 60, got %v", le.Bill.Balance())
		}
	}
	if got := f.statusOf(t, o.ID); got != StatusInProgress {
		t.Errorf("status mutated on payment rejection: %s", got)
	}

	// Settle the bill; the same request now succeeds. The gate re-reads
	// the ledger rather than remembering the earlier answer.
	bill, err := f.ledger.GetBill(context.Background(), billIDFor(t, f, o))
	if err != nil {
		t.Fatalf("load bill: %v", err)
	}
	if _, err := f.ledger.RecordPayment(context.Background(), bill.ID, bill.Balance(), nil); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	updated, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, actor)
	if err != nil {
		t.Fatalf("unexpected error after payment: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
}

func billIDFor(t *testing.T, f *fixture, o *ClinicalOrder) uuid.UUID {
	t.Helper()
	_, bill, err := f.ledger.CheckByReference(context.Background(), o.Billing.ItemType, o.Billing.ReferenceID)
	if err != nil || bill == nil {
		t.Fatalf("lookup bill: %v", err)
	}
	return bill.ID
}

func TestRequestTransition_NoBillMeansUnpaid(t *testing.T) {
	f := newFixture()
	staffID := uuid.New()
	o := &ClinicalOrder{
		Kind:            KindPrescription,
		Status:          StatusInProgress,
		PatientID:       uuid.New(),
		AssignedStaffID: &staffID,
		Items:           []Item{{ReferenceID: uuid.New(), Name: "amoxicillin"}},
	}
	if err := f.repo.Create(context.Background(), o); err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, staffActor(staffID))
	le := mustCode(t, err, CodePaymentRequired)
	if le.Bill != nil {
		t.Error("expected no bill when order was never billed")
	}
}

func TestRequestTransition_NonAssignedStaffDenied(t *testing.T) {
	f := newFixture()
	o, _ := f.seedOrder(t, 100, 100)
	intruder := auth.Actor{Subject: "staff-2", Role: auth.RoleStaff, StaffID: ptrUUID(uuid.New())}

	for _, target := range []Status{StatusInProgress, StatusCompleted, StatusCancelled} {
		_, err := f.sm.RequestTransition(context.Background(), o.ID, target, intruder)
		le := AsLifecycleError(err)
		if le == nil {
			t.Fatalf("expected lifecycle error for %s, got %v", target, err)
		}
		if le.Code != CodePermissionDenied && le.Code != CodeInvalidTransition {
			t.Errorf("expected denial for %s, got %s", target, le.Code)
		}
	}
	if got := f.statusOf(t, o.ID); got != StatusPending {
		t.Errorf("status mutated by denied actor: %s", got)
	}
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }

func TestRequestTransition_StaffCannotCancel(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)

	_, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCancelled, staffActor(staffID))
	mustCode(t, err, CodePermissionDenied)
}

func TestRequestTransition_AdminCanCancel(t *testing.T) {
	f := newFixture()

	o1, _ := f.seedOrder(t, 100, 0)
	if _, err := f.sm.RequestTransition(context.Background(), o1.ID, StatusCancelled, adminActor); err != nil {
		t.Fatalf("admin cancel from pending: %v", err)
	}

	o2, staffID := f.seedOrder(t, 100, 0)
	if _, err := f.sm.RequestTransition(context.Background(), o2.ID, StatusInProgress, staffActor(staffID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.sm.RequestTransition(context.Background(), o2.ID, StatusCancelled, adminActor); err != nil {
		t.Fatalf("admin cancel from in_progress: %v", err)
	}
}

func TestRequestTransition_AdminShortcutStillNeedsPayment(t *testing.T) {
	f := newFixture()
	o, _ := f.seedOrder(t, 100, 0)

	// pending -> completed exists only for admin, and the payment gate
	// still applies to it.
	_, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, adminActor)
	mustCode(t, err, CodePaymentRequired)

	bill, err := f.ledger.GetBill(context.Background(), billIDFor(t, f, o))
	if err != nil {
		t.Fatalf("load bill: %v", err)
	}
	if _, err := f.ledger.RecordPayment(context.Background(), bill.ID, 100, nil); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	updated, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, adminActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
}

func TestRequestTransition_StaffCannotSkipInProgress(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)

	// The pending -> completed edge does not exist for staff even with a
	// settled bill.
	_, err := f.sm.RequestTransition(context.Background(), o.ID, StatusCompleted, staffActor(staffID))
	mustCode(t, err, CodeInvalidTransition)
}

func TestRequestTransition_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.sm.RequestTransition(context.Background(), uuid.New(), StatusInProgress, adminActor)
	mustCode(t, err, CodeNotFound)
}

func TestRequestTransition_ConcurrentStart(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)
	actor := staffActor(staffID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sm.RequestTransition(context.Background(), o.ID, StatusInProgress, actor)
		}(i)
	}
	wg.Wait()

	// Exactly one caller applies the transition. The loser either sees a
	// conflict or, after reloading, the already-applied state (a no-op
	// success). Either way the order ends in in_progress exactly once.
	for i, err := range errs {
		if err != nil {
			mustCode(t, errs[i], CodeConflict)
		}
	}
	if got := f.statusOf(t, o.ID); got != StatusInProgress {
		t.Errorf("expected in_progress, got %s", got)
	}

	changes, err := f.repo.ListStatusChanges(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("expected exactly one committed transition, got %d", len(changes))
	}
}

// conflictRepo always loses the compare-and-swap, to pin down the retry
// budget deterministically.
type conflictRepo struct {
	OrderRepository
	updates int
}

func (r *conflictRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actor auth.Actor) (*ClinicalOrder, error) {
	r.updates++
	return nil, ErrStatusConflict
}

func TestRequestTransition_GivesUpAfterOneRetry(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)

	repo := &conflictRepo{OrderRepository: f.repo}
	sm := NewStateMachine(repo, f.ledger, zerolog.Nop())

	_, err := sm.RequestTransition(context.Background(), o.ID, StatusInProgress, staffActor(staffID))
	mustCode(t, err, CodeConflict)
	if repo.updates != 2 {
		t.Errorf("expected initial attempt plus one retry, got %d attempts", repo.updates)
	}
}

func TestRequestTransition_AuditTrail(t *testing.T) {
	f := newFixture()
	o, staffID := f.seedOrder(t, 100, 100)
	actor := staffActor(staffID)
	ctx := context.Background()

	if _, err := f.sm.RequestTransition(ctx, o.ID, StatusInProgress, actor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.sm.RequestTransition(ctx, o.ID, StatusCompleted, actor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changes, err := f.repo.ListStatusChanges(ctx, o.ID)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].FromStatus != StatusPending || changes[0].ToStatus != StatusInProgress {
		t.Errorf("unexpected first change: %+v", changes[0])
	}
	if changes[1].FromStatus != StatusInProgress || changes[1].ToStatus != StatusCompleted {
		t.Errorf("unexpected second change: %+v", changes[1])
	}
	if changes[0].ActorSubject != actor.Subject {
		t.Errorf("expected actor %q recorded, got %q", actor.Subject, changes[0].ActorSubject)
	}
}
