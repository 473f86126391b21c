package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mactabak/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores the order and its line items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	c := o.Customer
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
		  id, order_number, user_id, status, full_name, phone, email, city, region, address,
		  delivery_method, comment, subtotal, delivery_price, total, is_from_moscow,
		  paid_at, shipped_at, delivered_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.OrderNumber, o.UserID, string(o.Status), c.FullName, c.Phone, c.Email, c.City,
		c.Region, c.Address, c.DeliveryMethod, c.Comment, o.Subtotal, o.DeliveryPrice, o.Total,
		boolToInt(o.IsFromMoscow), nullTime(o.PaidAt), nullTime(o.ShippedAt), nullTime(o.DeliveredAt),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, name, unit, weight, quantity, price, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare order items: %w", err)
	}
	defer stmt.Close()

	for i, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, o.ID, i, it.ProductID, it.Name, string(it.Unit), it.Weight,
			it.Quantity, it.Price, it.Total); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, user_id, status, full_name, phone, email, city, region, address,
	delivery_method, comment, subtotal, delivery_price, total, is_from_moscow,
	paid_at, shipped_at, delivered_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		o      domain.Order
		status string
		moscow int64
		paidAt sql.NullTime
		shipAt sql.NullTime
		delvAt sql.NullTime
	)
	c := &o.Customer
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &status, &c.FullName, &c.Phone, &c.Email,
		&c.City, &c.Region, &c.Address, &c.DeliveryMethod, &c.Comment, &o.Subtotal,
		&o.DeliveryPrice, &o.Total, &moscow, &paidAt, &shipAt, &delvAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Status = domain.Status(status)
	o.IsFromMoscow = moscow == 1
	c.DeliveryPrice = o.DeliveryPrice
	o.PaidAt = timePtr(paidAt)
	o.ShippedAt = timePtr(shipAt)
	o.DeliveredAt = timePtr(delvAt)
	return o, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		return o, fmt.Errorf("select order: %w", err)
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return o, err
	}
	return o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("select user orders: %w", err)
	}
	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// items are loaded after the cursor is closed: the pool holds a single connection
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *OrderRepository) items(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, unit, weight, quantity, price, total
		FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			it   domain.LineItem
			unit string
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &unit, &it.Weight, &it.Quantity, &it.Price, &it.Total); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Unit = domain.Unit(unit)
		items = append(items, it)
	}
	return items, rows.Err()
}

// SaveStatus persists status and the fulfilment timestamps.
func (r *OrderRepository) SaveStatus(ctx context.Context, o domain.Order) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, paid_at = ?, shipped_at = ?, delivered_at = ?, updated_at = ?
		WHERE id = ?`,
		string(o.Status), nullTime(o.PaidAt), nullTime(o.ShippedAt), nullTime(o.DeliveredAt), o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrNotFound)
	}
	return nil
}

// MaxSequence returns the highest numeric suffix of stored order numbers.
func (r *OrderRepository) MaxSequence(ctx context.Context, prefix string) (int64, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(CAST(SUBSTR(order_number, LENGTH(?) + 1) AS INTEGER))
		FROM orders WHERE SUBSTR(order_number, 1, LENGTH(?)) = ?`, prefix, prefix, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max order number: %w", err)
	}
	return n.Int64, nil
}

type OrderStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
	Revenue  int64            `json:"revenue"`
	Moscow   int64            `json:"moscow"`
}

func (r *OrderRepository) Stats(ctx context.Context) (OrderStats, error) {
	st := OrderStats{ByStatus: map[string]int64{}}
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(1), SUM(is_from_moscow) FROM orders GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("order stats: %w", err)
	}
	for rows.Next() {
		var (
			status    string
			n, moscow int64
		)
		if err := rows.Scan(&status, &n, &moscow); err != nil {
			rows.Close()
			return st, fmt.Errorf("scan order stats: %w", err)
		}
		st.ByStatus[status] = n
		st.Total += n
		st.Moscow += moscow
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0) FROM orders WHERE status IN ('paid', 'shipped', 'delivered')
	`).Scan(&st.Revenue)
	if err != nil {
		return st, fmt.Errorf("order revenue: %w", err)
	}
	return st, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
