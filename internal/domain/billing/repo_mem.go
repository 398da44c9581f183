package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memBillRepo is an in-memory BillRepository used in tests and by callers
// that wire the service without a database.
type memBillRepo struct {
	mu    sync.RWMutex
	bills map[uuid.UUID]*Bill
}

func NewBillRepoMem() BillRepository {
	return &memBillRepo{bills: make(map[uuid.UUID]*Bill)}
}

func (m *memBillRepo) Create(_ context.Context, b *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	m.bills[b.ID] = &cp
	return nil
}

func (m *memBillRepo) GetByID(_ context.Context, id uuid.UUID) (*Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBillRepo) GetByReference(_ context.Context, itemType string, referenceID uuid.UUID) (*Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bills {
		if b.ItemType == itemType && b.ReferenceID == referenceID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBillRepo) AddPayment(_ context.Context, p *Payment) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[p.BillID]
	if !ok {
		return nil, ErrNotFound
	}
	p.ID = uuid.New()
	p.RecordedAt = time.Now()
	b.PaidAmount += p.Amount
	if b.PaidAmount >= b.TotalAmount {
		b.Status = "paid"
	} else {
		b.Status = "partial"
	}
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (m *memBillRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*Bill
	for _, b := range m.bills {
		if b.PatientID != nil && *b.PatientID == patientID {
			cp := *b
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}
