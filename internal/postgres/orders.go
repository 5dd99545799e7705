package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/google/uuid"
)

const orderCols = `id, owner_email, COALESCE(coupon_code,''), COALESCE(receipt_id,''), ordered_at`

func (r *repo) CreateOrder(ctx context.Context, o *store.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO orders(id, owner_email, coupon_code, receipt_id)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''))
		RETURNING ordered_at`,
		o.ID, o.OwnerEmail, o.CouponCode, o.ReceiptID,
	).Scan(&o.OrderedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateReceipt
	}
	if err != nil {
		return err
	}

	for i, l := range o.Lines {
		_, err = r.q.Exec(ctx, `
			INSERT INTO order_lines(order_id, line_no, product_id, name, quantity, unit_price, image, donation)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i, l.ProductID, l.Name, l.Quantity, l.UnitPrice, l.Image, l.Donation,
		)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (store.Order, error) {
	var o store.Order
	err := r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OwnerEmail, &o.CouponCode, &o.ReceiptID, &o.OrderedAt)
	if err != nil {
		return store.Order{}, notFound(err)
	}
	return r.withLines(ctx, o)
}

func (r *repo) GetOrderByReceipt(ctx context.Context, receiptID string) (store.Order, error) {
	var o store.Order
	err := r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE receipt_id=$1`, receiptID).
		Scan(&o.ID, &o.OwnerEmail, &o.CouponCode, &o.ReceiptID, &o.OrderedAt)
	if err != nil {
		return store.Order{}, notFound(err)
	}
	return r.withLines(ctx, o)
}

func (r *repo) withLines(ctx context.Context, o store.Order) (store.Order, error) {
	lines, err := r.linesFor(ctx, []string{o.ID})
	if err != nil {
		return store.Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (r *repo) linesFor(ctx context.Context, orderIDs []string) (map[string][]store.OrderLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price, image, donation
		FROM order_lines WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]store.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			l       store.OrderLine
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Name, &l.Quantity, &l.UnitPrice, &l.Image, &l.Donation); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, rows.Err()
}

func (r *repo) ListOrdersByOwner(ctx context.Context, email string) ([]store.Order, error) {
	rows, err := r.q.Query(ctx, `SELECT `+orderCols+` FROM orders
		WHERE owner_email=$1 ORDER BY ordered_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []store.Order
		ids []string
	)
	for rows.Next() {
		var o store.Order
		if err := rows.Scan(&o.ID, &o.OwnerEmail, &o.CouponCode, &o.ReceiptID, &o.OrderedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (r *repo) AttachReceipt(ctx context.Context, orderID, receiptID string) error {
	ct, err := r.q.Exec(ctx, `
		UPDATE orders SET receipt_id=$2
		WHERE id=$1 AND (receipt_id IS NULL OR receipt_id=$2)`, orderID, receiptID)
	if isUniqueViolation(err) {
		return store.ErrDuplicateReceipt
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// either the order is missing or it already carries another receipt
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrDuplicateReceipt
}

func (r *repo) LifetimeTotal(ctx context.Context, email string) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.unit_price * l.quantity), 0)::BIGINT
		FROM order_lines l JOIN orders o ON o.id = l.order_id
		WHERE o.owner_email=$1 AND NOT l.donation`, email).Scan(&total)
	return total, err
}
