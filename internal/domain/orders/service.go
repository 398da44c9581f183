package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hms/orderflow/internal/platform/auth"
)

// Service owns the non-transition operations on orders and delegates every
// status change to the state machine.
type Service struct {
	repo OrderRepository
	sm   *StateMachine
}

func NewService(repo OrderRepository, sm *StateMachine) *Service {
	return &Service{repo: repo, sm: sm}
}

// CreateOrder creates an order in pending. Orders are born with at least one
// item; the lifecycle never re-checks that invariant.
func (s *Service) CreateOrder(ctx context.Context, o *ClinicalOrder) error {
	if _, err := ParseKind(string(o.Kind)); err != nil {
		return err
	}
	if o.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("order requires at least one item")
	}
	if o.Status != "" && o.Status != StatusPending {
		return fmt.Errorf("orders are created in pending status")
	}
	o.Status = StatusPending
	return s.repo.Create(ctx, o)
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*ClinicalOrder, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter, limit, offset int) ([]*ClinicalOrder, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// RequestTransition is the single entry point for status changes.
func (s *Service) RequestTransition(ctx context.Context, orderID uuid.UUID, target Status, actor auth.Actor) (*ClinicalOrder, error) {
	return s.sm.RequestTransition(ctx, orderID, target, actor)
}

// DeleteOrder removes an order outright. This is an administrative escape
// hatch outside the state machine; the handler restricts it to admins.
func (s *Service) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// OrderHistory returns the committed transitions for an order, oldest first.
func (s *Service) OrderHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	if _, err := s.repo.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListStatusChanges(ctx, orderID)
}
