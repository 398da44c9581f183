package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/orderflow/internal/platform/auth"
)

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

const orderCols = `id, kind, status, patient_id, assigned_staff_id, items,
	billing_item_type, billing_reference_id, created_at, updated_at`

func scanOrder(row pgx.Row) (*ClinicalOrder, error) {
	var o ClinicalOrder
	var items []byte
	var billingItemType *string
	var billingReferenceID *uuid.UUID

	err := row.Scan(&o.ID, &o.Kind, &o.Status, &o.PatientID, &o.AssignedStaffID, &items,
		&billingItemType, &billingReferenceID, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if billingItemType != nil && billingReferenceID != nil {
		o.Billing = &BillingReference{ItemType: *billingItemType, ReferenceID: *billingReferenceID}
	}
	return &o, nil
}

func billingColumns(o *ClinicalOrder) (*string, *uuid.UUID) {
	if o.Billing == nil {
		return nil, nil
	}
	return &o.Billing.ItemType, &o.Billing.ReferenceID
}

func (r *orderRepoPG) Create(ctx context.Context, o *ClinicalOrder) error {
	o.ID = uuid.New()
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	itemType, referenceID := billingColumns(o)
	return r.pool.QueryRow(ctx, `
		INSERT INTO clinical_order (id, kind, status, patient_id, assigned_staff_id, items,
			billing_item_type, billing_reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		o.ID, o.Kind, o.Status, o.PatientID, o.AssignedStaffID, items,
		itemType, referenceID).
		Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM clinical_order WHERE id = $1`, id))
}

// UpdateStatus applies the transition only when the stored status still
// matches from. The conditional UPDATE is the concurrency control: of two
// racing writers against the same status value, exactly one row update
// succeeds and the loser sees ErrStatusConflict.
func (r *orderRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actor auth.Actor) (*ClinicalOrder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE clinical_order SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+orderCols, id, from, to))
	if err == ErrNotFound {
		// Distinguish a lost race from a missing order.
		var exists bool
		if scanErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM clinical_order WHERE id = $1)`, id).Scan(&exists); scanErr != nil {
			return nil, scanErr
		}
		if exists {
			return nil, ErrStatusConflict
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_change (id, order_id, from_status, to_status, actor_subject, actor_role)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, from, to, actor.Subject, actor.Role); err != nil {
		return nil, fmt.Errorf("record status change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return o, nil
}

func (r *orderRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clinical_order WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*ClinicalOrder, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if filter.PatientID != nil {
		add("patient_id", *filter.PatientID)
	}
	if filter.AssignedStaffID != nil {
		add("assigned_staff_id", *filter.AssignedStaffID)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.Kind != "" {
		add("kind", filter.Kind)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_order `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM clinical_order %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderCols, where, n+1, n+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ClinicalOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *orderRepoPG) ListStatusChanges(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_subject, actor_role, changed_at
		FROM order_status_change WHERE order_id = $1 ORDER BY changed_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*StatusChange
	for rows.Next() {
		var ch StatusChange
		if err := rows.Scan(&ch.ID, &ch.OrderID, &ch.FromStatus, &ch.ToStatus,
			&ch.ActorSubject, &ch.ActorRole, &ch.ChangedAt); err != nil {
			return nil, err
		}
		changes = append(changes, &ch)
	}
	return changes, rows.Err()
}
