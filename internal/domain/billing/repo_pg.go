package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository {
	return &billRepoPG{pool: pool}
}

const billCols = `id, item_type, reference_id, patient_id, status,
	total_amount, paid_amount, created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.ItemType, &b.ReferenceID, &b.PatientID, &b.Status,
		&b.TotalAmount, &b.PaidAmount, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return &b, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO bill (id, item_type, reference_id, patient_id, status, total_amount, paid_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		b.ID, b.ItemType, b.ReferenceID, b.PatientID, b.Status, b.TotalAmount, b.PaidAmount).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(r.pool.QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1`, id))
}

func (r *billRepoPG) GetByReference(ctx context.Context, itemType string, referenceID uuid.UUID) (*Bill, error) {
	return scanBill(r.pool.QueryRow(ctx,
		`SELECT `+billCols+` FROM bill WHERE item_type = $1 AND reference_id = $2`,
		itemType, referenceID))
}

// AddPayment inserts the payment row and bumps the bill's paid_amount and
// status in one transaction, returning the updated bill.
func (r *billRepoPG) AddPayment(ctx context.Context, p *Payment) (*Bill, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin payment: %w", err)
	}
	defer tx.Rollback(ctx)

	p.ID = uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO bill_payment (id, bill_id, amount, method)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.BillID, p.Amount, p.Method); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	bill, err := scanBill(tx.QueryRow(ctx, `
		UPDATE bill SET
			paid_amount = paid_amount + $2,
			status = CASE WHEN paid_amount + $2 >= total_amount THEN 'paid' ELSE 'partial' END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+billCols, p.BillID, p.Amount))
	if err != nil {
		return nil, fmt.Errorf("apply payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}
	return bill, nil
}

func (r *billRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bill WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+billCols+` FROM bill WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}
