// Package orderstore keeps a local record of orders created at the payment
// gateway so purchases can be tied back to users and cart lines.
package orderstore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-shop/internal/money"
)

// ErrNotFound is returned when no record exists for a remote order id.
var ErrNotFound = errors.New("order not found")

// Status values mirror the gateway's order states plus FAILED for local use.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Item is one priced cart line captured at order creation.
type Item struct {
	Kind      string       `json:"kind"`
	ItemID    int64        `json:"item_id"`
	Name      string       `json:"name"`
	UnitPrice money.Amount `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	LineTotal money.Amount `json:"line_total"`
}

// Order is the local record of a remote order.
type Order struct {
	ID             string        `json:"id"`
	RemoteOrderID  string        `json:"remote_order_id"`
	UserID         *string       `json:"user_id,omitempty"`
	Status         string        `json:"status"`
	Currency       string        `json:"currency"`
	Subtotal       money.Amount  `json:"subtotal"`
	Discount       money.Amount  `json:"discount"`
	Total          money.Amount  `json:"total"`
	DiscountCode   *string       `json:"discount_code,omitempty"`
	CaptureID      *string       `json:"capture_id,omitempty"`
	CapturedAmount *money.Amount `json:"captured_amount,omitempty"`
	Items          []Item        `json:"items"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Capture describes the outcome of a capture call to record.
type Capture struct {
	Status    string
	CaptureID string
	Amount    *decimal.Decimal
}

// Store persists orders.
type Store interface {
	Create(ctx context.Context, order *Order) error
	UpdateCapture(ctx context.Context, remoteOrderID string, capture Capture) (Order, error)
	Get(ctx context.Context, remoteOrderID string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func groupItems(orders []Order, items map[string][]Item) {
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []Item{}
		}
	}
}
