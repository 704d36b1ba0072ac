package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

const orderColumns = `id, public_ref, session_id, performance_label, status, discount_count, discount_amount_cents,
       subtotal_cents, total_cents, customer_name, customer_email, customer_phone,
       created_at, paid_at, cancelled_at, expired_at`

// InsertOrder inserts an order and its item snapshots, assigning the
// generated ID back to o.  Exchange code bindings are written separately
// by RedeemExchangeCode.
func (q queries) InsertOrder(ctx context.Context, o *model.Order) error {
	const stmt = `INSERT INTO orders (public_ref, session_id, performance_label, status, discount_count, discount_amount_cents,
                  subtotal_cents, total_cents, customer_name, customer_email, customer_phone, created_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := q.db.ExecContext(ctx, stmt,
		o.PublicRef, o.SessionID, o.PerformanceLabel, string(o.Status), o.DiscountCount, o.DiscountAmountCents,
		o.SubtotalCents, o.TotalCents, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	if len(o.Items) == 0 {
		return nil
	}
	query := `INSERT INTO order_items (order_id, tier, quantity, unit_price_cents) VALUES `
	args := make([]any, 0, len(o.Items)*4)
	for i, it := range o.Items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, o.ID, string(it.Tier), it.Quantity, it.UnitPriceCents)
	}
	_, err = q.db.ExecContext(ctx, query, args...)
	return err
}

// GetOrder loads an order with its items and bound exchange codes.
func (q queries) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return q.getOrder(ctx, id, false)
}

// LockOrder is GetOrder holding a row lock on the order.
func (q queries) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return q.getOrder(ctx, id, true)
}

// GetOrderByRef loads an order by its public reference.
func (q queries) GetOrderByRef(ctx context.Context, ref string) (*model.Order, error) {
	var id uint64
	err := q.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE public_ref = ?`, ref).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q.getOrder(ctx, id, false)
}

func (q queries) getOrder(ctx context.Context, id uint64, lock bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if lock {
		query += " FOR UPDATE"
	}
	var o model.Order
	var status string
	var paidAt, cancelledAt, expiredAt sql.NullTime
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.PublicRef, &o.SessionID, &o.PerformanceLabel, &status, &o.DiscountCount, &o.DiscountAmountCents,
		&o.SubtotalCents, &o.TotalCents, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.CreatedAt, &paidAt, &cancelledAt, &expiredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.PaidAt = nullTime(paidAt)
	o.CancelledAt = nullTime(cancelledAt)
	o.ExpiredAt = nullTime(expiredAt)

	rows, err := q.db.QueryContext(ctx,
		`SELECT tier, quantity, unit_price_cents FROM order_items WHERE order_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.OrderItem
		var tier string
		if err := rows.Scan(&tier, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		it.Tier = model.Tier(tier)
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortItems(o.Items)

	codeRows, err := q.db.QueryContext(ctx,
		`SELECT code FROM exchange_codes WHERE order_id = ? ORDER BY used_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer codeRows.Close()
	for codeRows.Next() {
		var c string
		if err := codeRows.Scan(&c); err != nil {
			return nil, err
		}
		o.ExchangeCodes = append(o.ExchangeCodes, c)
	}
	if err := codeRows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetOrderStatus moves an order from one status to another and stamps the
// timestamp column that belongs to the new status.  It returns false when
// the order is not currently in from.
func (q queries) SetOrderStatus(ctx context.Context, id uint64, from, to model.OrderStatus, at time.Time) (bool, error) {
	col, err := statusColumn(to)
	if err != nil {
		return false, err
	}
	stmt := `UPDATE orders SET status = ?, ` + col + ` = ? WHERE id = ? AND status = ?`
	res, err := q.db.ExecContext(ctx, stmt, string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// ListStalePending returns PENDING order ids created before cutoff, oldest
// first.
func (q queries) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const stmt = `SELECT id FROM orders WHERE status = 'PENDING' AND created_at < ? ORDER BY created_at, id LIMIT ?`
	rows, err := q.db.QueryContext(ctx, stmt, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func statusColumn(s model.OrderStatus) (string, error) {
	switch s {
	case model.OrderPaid:
		return "paid_at", nil
	case model.OrderCancelled:
		return "cancelled_at", nil
	case model.OrderExpired:
		return "expired_at", nil
	}
	return "", fmt.Errorf("repository: no timestamp column for status %s", s)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// sortItems orders items by the canonical tier order.
func sortItems(items []model.OrderItem) {
	rank := make(map[model.Tier]int, len(model.AllTiers))
	for i, t := range model.AllTiers {
		rank[t] = i
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && rank[items[j].Tier] < rank[items[j-1].Tier]; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
