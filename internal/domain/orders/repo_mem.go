package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hms/orderflow/internal/platform/auth"
)

// memOrderRepo is an in-memory OrderRepository. UpdateStatus performs the
// compare-and-swap under the repository lock, giving the same at-most-one-
// winner guarantee per status value as the SQL implementation.
type memOrderRepo struct {
	mu      sync.RWMutex
	orders  map[uuid.UUID]*ClinicalOrder
	changes map[uuid.UUID][]*StatusChange
}

func NewOrderRepoMem() OrderRepository {
	return &memOrderRepo{
		orders:  make(map[uuid.UUID]*ClinicalOrder),
		changes: make(map[uuid.UUID][]*StatusChange),
	}
}

func copyOrder(o *ClinicalOrder) *ClinicalOrder {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	if o.Billing != nil {
		b := *o.Billing
		cp.Billing = &b
	}
	return &cp
}

func (m *memOrderRepo) Create(_ context.Context, o *ClinicalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*ClinicalOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, actor auth.Actor) (*ClinicalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	m.changes[id] = append(m.changes[id], &StatusChange{
		ID:           uuid.New(),
		OrderID:      id,
		FromStatus:   from,
		ToStatus:     to,
		ActorSubject: actor.Subject,
		ActorRole:    actor.Role,
		ChangedAt:    o.UpdatedAt,
	})
	return copyOrder(o), nil
}

func (m *memOrderRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	delete(m.changes, id)
	return nil
}

func (m *memOrderRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*ClinicalOrder, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*ClinicalOrder
	for _, o := range m.orders {
		if filter.PatientID != nil && o.PatientID != *filter.PatientID {
			continue
		}
		if filter.AssignedStaffID != nil &&
			(o.AssignedStaffID == nil || *o.AssignedStaffID != *filter.AssignedStaffID) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && o.Kind != filter.Kind {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memOrderRepo) ListStatusChanges(_ context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	changes := m.changes[orderID]
	out := make([]*StatusChange, len(changes))
	for i, ch := range changes {
		cp := *ch
		out[i] = &cp
	}
	return out, nil
}
