package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/orderflow/internal/domain/billing"
	"github.com/hms/orderflow/internal/platform/auth"
)

// transitions is the canonical table: the statuses any permitted actor may
// reach from a given status. Terminal statuses have no outbound edges, and
// nothing ever leads back into pending.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// adminTransitions are the extra edges only an admin may take: completing
// straight from pending. Cancellation from any non-terminal status is
// already in the base table.
var adminTransitions = map[Status][]Status{
	StatusPending: {StatusCompleted},
}

func edgeExists(current, target Status, admin bool) bool {
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	if admin {
		for _, next := range adminTransitions[current] {
			if next == target {
				return true
			}
		}
	}
	return false
}

// BillingGate is the read-only view of the billing ledger the state machine
// consults before allowing completion. *billing.Ledger implements it.
type BillingGate interface {
	RequirePaidFor(ctx context.Context, itemType string, referenceID uuid.UUID) (bool, *billing.Bill, error)
}

// StateMachine enforces the order lifecycle. Every status change funnels
// through RequestTransition; there is no other write path.
type StateMachine struct {
	repo    OrderRepository
	gate    PermissionGate
	billing BillingGate
	log     zerolog.Logger
}

func NewStateMachine(repo OrderRepository, billing BillingGate, log zerolog.Logger) *StateMachine {
	return &StateMachine{repo: repo, billing: billing, log: log}
}

// RequestTransition moves the order to target on behalf of actor. Requesting
// the current status is an idempotent no-op. Validation failures return a
// typed *LifecycleError and never touch the order. The write is a
// compare-and-swap on the status read during validation; on a lost race the
// whole validation reruns once against the fresh status before giving up
// with CodeConflict.
func (sm *StateMachine) RequestTransition(ctx context.Context, orderID uuid.UUID, target Status, actor auth.Actor) (*ClinicalOrder, error) {
	order, err := sm.repo.GetByID(ctx, orderID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errNotFound()
		}
		return nil, err
	}

	const attempts = 2
	for attempt := 0; attempt < attempts; attempt++ {
		if order.Status == target {
			return order, nil
		}

		if err := sm.validate(ctx, order, target, actor); err != nil {
			return nil, err
		}

		updated, err := sm.repo.UpdateStatus(ctx, order.ID, order.Status, target, actor)
		switch err {
		case nil:
			sm.log.Info().
				Str("order_id", order.ID.String()).
				Str("from", string(order.Status)).
				Str("to", string(target)).
				Str("actor", actor.Subject).
				Str("role", actor.Role).
				Msg("order transition")
			return updated, nil
		case ErrStatusConflict:
			order, err = sm.repo.GetByID(ctx, orderID)
			if err != nil {
				if err == ErrNotFound {
					return nil, errNotFound()
				}
				return nil, err
			}
		case ErrNotFound:
			return nil, errNotFound()
		default:
			return nil, err
		}
	}

	return nil, errConflict(order.Status)
}

func (sm *StateMachine) validate(ctx context.Context, order *ClinicalOrder, target Status, actor auth.Actor) error {
	current := order.Status

	if current.Terminal() {
		return errInvalidTransition(current, target)
	}
	if !edgeExists(current, target, actor.IsAdmin()) {
		return errInvalidTransition(current, target)
	}
	if !sm.gate.Allowed(actor, order.AssignedStaffID, current, target) {
		return errPermissionDenied(current, target)
	}

	// The payment gate guards only the completion edge, for every role:
	// an admin shortcut from pending still has to clear it.
	if target == StatusCompleted {
		paid, bill, err := sm.checkPaid(ctx, order)
		if err != nil {
			return err
		}
		if !paid {
			return errPaymentRequired(current, bill)
		}
	}

	return nil
}

func (sm *StateMachine) checkPaid(ctx context.Context, order *ClinicalOrder) (bool, *billing.Bill, error) {
	if order.Billing == nil {
		// Never billed means unpaid.
		return false, nil, nil
	}
	return sm.billing.RequirePaidFor(ctx, order.Billing.ItemType, order.Billing.ReferenceID)
}
