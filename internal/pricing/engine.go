package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-shop/internal/catalog"
	"github.com/noah-isme/backend-shop/internal/money"
)

var (
	// ErrEmptyCart is returned when the cart has no lines.
	ErrEmptyCart = errors.New("empty cart")
	// ErrInvalidItem is returned when a cart line does not match the line schema.
	ErrInvalidItem = errors.New("invalid item payload")
)

// ItemNotFoundError reports a cart line whose catalog row does not exist.
type ItemNotFoundError struct {
	Kind string
	ID   int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s %d", e.Kind, e.ID)
}

// Unwrap lets callers match catalog.ErrNotFound.
func (e *ItemNotFoundError) Unwrap() error { return catalog.ErrNotFound }

// AmountBreakdown is the server-computed valuation of a cart.
type AmountBreakdown struct {
	Subtotal money.Amount `json:"subtotal"`
	Discount money.Amount `json:"discount"`
	Total    money.Amount `json:"total"`
}

// PricedLine is a cart line joined with its catalog price.
type PricedLine struct {
	CartLine
	Name      string
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Quote is the full result of pricing a cart.
type Quote struct {
	Lines        []PricedLine
	DiscountCode string
	Amounts      AmountBreakdown
}

// DiscountEvaluator computes the discount for a subtotal and raw code.
type DiscountEvaluator interface {
	Evaluate(subtotal decimal.Decimal, code string) decimal.Decimal
}

// Engine values carts against the catalog. Client-supplied prices never reach it.
type Engine struct {
	catalog   catalog.Reader
	discounts DiscountEvaluator
}

// NewEngine constructs an Engine.
func NewEngine(reader catalog.Reader, discounts DiscountEvaluator) *Engine {
	return &Engine{catalog: reader, discounts: discounts}
}

// Quote parses raw cart lines and prices them.
func (e *Engine) Quote(ctx context.Context, raw []byte, code string) (Quote, error) {
	lines, err := ParseCart(raw)
	if err != nil {
		return Quote{}, err
	}
	return e.Price(ctx, lines, code)
}

// ComputeAmounts returns the amount breakdown for already parsed lines.
func (e *Engine) ComputeAmounts(ctx context.Context, lines []CartLine, code string) (AmountBreakdown, error) {
	q, err := e.Price(ctx, lines, code)
	if err != nil {
		return AmountBreakdown{}, err
	}
	return q.Amounts, nil
}

// Price looks up each line and derives subtotal, discount and total. The
// subtotal is rounded once after summation and the discount is evaluated once.
func (e *Engine) Price(ctx context.Context, lines []CartLine, code string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, ErrEmptyCart
	}
	if e.catalog == nil {
		return Quote{}, errors.New("pricing: catalog reader not configured")
	}

	priced := make([]PricedLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		item, err := e.catalog.PriceLookup(ctx, catalog.Kind(line.Kind), line.ItemID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return Quote{}, &ItemNotFoundError{Kind: line.Kind, ID: line.ItemID}
			}
			return Quote{}, err
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		priced = append(priced, PricedLine{
			CartLine:  line,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	subtotal = money.Round(subtotal)

	discount := decimal.Zero
	if e.discounts != nil {
		discount = e.discounts.Evaluate(subtotal, code)
	}
	total := money.Round(subtotal.Sub(discount))
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Lines:        priced,
		DiscountCode: code,
		Amounts: AmountBreakdown{
			Subtotal: money.New(subtotal),
			Discount: money.New(discount),
			Total:    money.New(total),
		},
	}, nil
}
