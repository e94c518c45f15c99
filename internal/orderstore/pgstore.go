package orderstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-shop/internal/money"
)

type pgDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists orders in Postgres.
type PGStore struct {
	db pgDB
}

// NewPGStore constructs a PGStore backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

const pgOrderColumns = `id::text, remote_order_id, user_id::text, status, currency, subtotal::text, discount::text,
total::text, discount_code, capture_id, captured_amount::text, created_at, updated_at`

// Create inserts the order and its lines in one transaction.
func (s *PGStore) Create(ctx context.Context, order *Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `INSERT INTO checkout_orders
(id, remote_order_id, user_id, status, currency, subtotal, discount, total, discount_code)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9)
RETURNING created_at, updated_at`,
		order.ID, order.RemoteOrderID, order.UserID, order.Status, order.Currency,
		order.Subtotal.StringFixed(2), order.Discount.StringFixed(2), order.Total.StringFixed(2), order.DiscountCode,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range order.Items {
		batch.Queue(`INSERT INTO checkout_order_items
(order_id, kind, item_id, name, unit_price, quantity, line_total) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric)`,
			order.ID, it.Kind, it.ItemID, it.Name, it.UnitPrice.StringFixed(2), it.Quantity, it.LineTotal.StringFixed(2))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// UpdateCapture records the capture outcome for remoteOrderID.
func (s *PGStore) UpdateCapture(ctx context.Context, remoteOrderID string, capture Capture) (Order, error) {
	var amount *string
	if capture.Amount != nil {
		v := capture.Amount.StringFixed(2)
		amount = &v
	}
	tag, err := s.db.Exec(ctx, `UPDATE checkout_orders
SET status = $2, capture_id = COALESCE($3, capture_id),
    captured_amount = COALESCE($4::numeric, captured_amount), updated_at = now()
WHERE remote_order_id = $1`,
		remoteOrderID, capture.Status, nullableString(capture.CaptureID), amount)
	if err != nil {
		return Order{}, err
	}
	if tag.RowsAffected() == 0 {
		return Order{}, ErrNotFound
	}
	return s.Get(ctx, remoteOrderID)
}

// Get loads one order with its lines.
func (s *PGStore) Get(ctx context.Context, remoteOrderID string) (Order, error) {
	order, err := scanPGOrder(s.db.QueryRow(ctx, `SELECT `+pgOrderColumns+` FROM checkout_orders WHERE remote_order_id = $1`, remoteOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	items, err := s.items(ctx, `WHERE order_id = $1`, order.ID)
	if err != nil {
		return Order{}, err
	}
	orders := []Order{order}
	groupItems(orders, items)
	return orders[0], nil
}

// ListByUser returns the user's orders, newest first.
func (s *PGStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []Order{}, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+pgOrderColumns+` FROM checkout_orders
WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		order, err := scanPGOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := s.items(ctx, `WHERE order_id IN (SELECT id FROM checkout_orders WHERE user_id = $1)`, userID)
	if err != nil {
		return nil, err
	}
	groupItems(orders, items)
	return orders, nil
}

func (s *PGStore) items(ctx context.Context, where string, arg any) (map[string][]Item, error) {
	rows, err := s.db.Query(ctx, `SELECT order_id::text, kind, item_id, name, unit_price::text, quantity, line_total::text
FROM checkout_order_items `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]Item{}
	for rows.Next() {
		var (
			orderID, unitPrice, line string
			it                       Item
		)
		if err := rows.Scan(&orderID, &it.Kind, &it.ItemID, &it.Name, &unitPrice, &it.Quantity, &line); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = parseAmount(unitPrice); err != nil {
			return nil, err
		}
		if it.LineTotal, err = parseAmount(line); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func scanPGOrder(row pgx.Row) (Order, error) {
	var (
		o                         Order
		userID, code, captureID   pgtype.Text
		subtotal, discount, total string
		captured                  pgtype.Text
		createdAt, updatedAt      time.Time
	)
	if err := row.Scan(&o.ID, &o.RemoteOrderID, &userID, &o.Status, &o.Currency, &subtotal, &discount, &total,
		&code, &captureID, &captured, &createdAt, &updatedAt); err != nil {
		return Order{}, err
	}
	var err error
	if o.Subtotal, err = parseAmount(subtotal); err != nil {
		return Order{}, err
	}
	if o.Discount, err = parseAmount(discount); err != nil {
		return Order{}, err
	}
	if o.Total, err = parseAmount(total); err != nil {
		return Order{}, err
	}
	if captured.Valid {
		a, err := parseAmount(captured.String)
		if err != nil {
			return Order{}, err
		}
		o.CapturedAmount = &a
	}
	o.Currency = strings.TrimSpace(o.Currency)
	o.UserID = textPtr(userID)
	o.DiscountCode = textPtr(code)
	o.CaptureID = textPtr(captureID)
	o.CreatedAt, o.UpdatedAt = createdAt, updatedAt
	return o, nil
}

func parseAmount(s string) (money.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return money.Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return money.New(d), nil
}

func textPtr(v pgtype.Text) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
