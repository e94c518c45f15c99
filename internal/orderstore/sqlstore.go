package orderstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-shop/internal/money"
)

// SQLStore persists orders through database/sql with SQLite placeholders.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore constructs a SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const sqlOrderColumns = `id, remote_order_id, user_id, status, currency, subtotal, discount, total,
discount_code, capture_id, captured_amount, created_at, updated_at`

// Create inserts the order and its lines in one transaction. ID and timestamps
// are assigned when empty.
func (s *SQLStore) Create(ctx context.Context, order *Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := s.now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO checkout_orders (`+sqlOrderColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.RemoteOrderID, order.UserID, order.Status, order.Currency,
		order.Subtotal.StringFixed(2), order.Discount.StringFixed(2), order.Total.StringFixed(2),
		order.DiscountCode, order.CaptureID, amountText(order.CapturedAmount),
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range order.Items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO checkout_order_items
(order_id, kind, item_id, name, unit_price, quantity, line_total) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, it.Kind, it.ItemID, it.Name, it.UnitPrice.StringFixed(2), it.Quantity, it.LineTotal.StringFixed(2),
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateCapture records the capture outcome for remoteOrderID.
func (s *SQLStore) UpdateCapture(ctx context.Context, remoteOrderID string, capture Capture) (Order, error) {
	var amount *string
	if capture.Amount != nil {
		v := capture.Amount.StringFixed(2)
		amount = &v
	}
	res, err := s.db.ExecContext(ctx, `UPDATE checkout_orders
SET status = ?, capture_id = COALESCE(?, capture_id), captured_amount = COALESCE(?, captured_amount), updated_at = ?
WHERE remote_order_id = ?`,
		capture.Status, nullableString(capture.CaptureID), amount, s.now().UTC(), remoteOrderID)
	if err != nil {
		return Order{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Order{}, ErrNotFound
	}
	return s.Get(ctx, remoteOrderID)
}

// Get loads one order with its lines.
func (s *SQLStore) Get(ctx context.Context, remoteOrderID string) (Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqlOrderColumns+` FROM checkout_orders WHERE remote_order_id = ?`, remoteOrderID)
	order, err := scanSQLOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	items, err := s.items(ctx, `WHERE order_id = ?`, order.ID)
	if err != nil {
		return Order{}, err
	}
	orders := []Order{order}
	groupItems(orders, items)
	return orders[0], nil
}

// ListByUser returns the user's orders, newest first.
func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqlOrderColumns+` FROM checkout_orders
WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		order, err := scanSQLOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := s.items(ctx, `WHERE order_id IN (SELECT id FROM checkout_orders WHERE user_id = ?)`, userID)
	if err != nil {
		return nil, err
	}
	groupItems(orders, items)
	return orders, nil
}

func (s *SQLStore) items(ctx context.Context, where string, arg any) (map[string][]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, kind, item_id, name, unit_price, quantity, line_total
FROM checkout_order_items `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]Item{}
	for rows.Next() {
		var (
			orderID         string
			it              Item
			unitPrice, line decimal.Decimal
		)
		if err := rows.Scan(&orderID, &it.Kind, &it.ItemID, &it.Name, &unitPrice, &it.Quantity, &line); err != nil {
			return nil, err
		}
		it.UnitPrice, it.LineTotal = money.New(unitPrice), money.New(line)
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLOrder(row rowScanner) (Order, error) {
	var (
		o                         Order
		userID, code, captureID   sql.NullString
		subtotal, discount, total decimal.Decimal
		captured                  decimal.NullDecimal
	)
	if err := row.Scan(&o.ID, &o.RemoteOrderID, &userID, &o.Status, &o.Currency, &subtotal, &discount, &total,
		&code, &captureID, &captured, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Currency = strings.TrimSpace(o.Currency)
	o.Subtotal, o.Discount, o.Total = money.New(subtotal), money.New(discount), money.New(total)
	o.UserID = nullString(userID)
	o.DiscountCode = nullString(code)
	o.CaptureID = nullString(captureID)
	if captured.Valid {
		a := money.New(captured.Decimal)
		o.CapturedAmount = &a
	}
	return o, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func amountText(a *money.Amount) *string {
	if a == nil {
		return nil
	}
	v := a.StringFixed(2)
	return &v
}
