package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-shop/internal/catalog"
	"github.com/noah-isme/backend-shop/internal/discount"
	"github.com/noah-isme/backend-shop/internal/pricing"
)

type row struct {
	price    string
	discount string
}

// stubReader prices items with the same effective-price rule as the stores.
type stubReader struct {
	rows  map[catalog.Kind]map[int64]row
	calls int
	err   error
}

func (s *stubReader) PriceLookup(_ context.Context, kind catalog.Kind, id int64) (catalog.PricedItem, error) {
	s.calls++
	if s.err != nil {
		return catalog.PricedItem{}, s.err
	}
	r, ok := s.rows[kind][id]
	if !ok {
		return catalog.PricedItem{}, catalog.ErrNotFound
	}
	var disc decimal.NullDecimal
	if r.discount != "" {
		disc = decimal.NullDecimal{Decimal: decimal.RequireFromString(r.discount), Valid: true}
	}
	return catalog.PricedItem{
		Name:      "item",
		UnitPrice: catalog.EffectivePrice(decimal.RequireFromString(r.price), disc),
	}, nil
}

func newEngine(rows map[catalog.Kind]map[int64]row) (*pricing.Engine, *stubReader) {
	reader := &stubReader{rows: rows}
	return pricing.NewEngine(reader, discount.NewEvaluator(nil)), reader
}

func requireAmounts(t *testing.T, got pricing.AmountBreakdown, subtotal, disc, total string) {
	t.Helper()
	require.Equal(t, subtotal, got.Subtotal.String(), "subtotal")
	require.Equal(t, disc, got.Discount.String(), "discount")
	require.Equal(t, total, got.Total.String(), "total")
}

func TestQuoteScenarios(t *testing.T) {
	ctx := context.Background()
	plain := map[catalog.Kind]map[int64]row{catalog.KindProduct: {1: {price: "10.00"}}}

	t.Run("two units no code", func(t *testing.T) {
		engine, _ := newEngine(plain)
		q, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"product","qty":2}]`), "")
		require.NoError(t, err)
		requireAmounts(t, q.Amounts, "20.00", "0.00", "20.00")
	})

	t.Run("lowercase percent code", func(t *testing.T) {
		engine, _ := newEngine(plain)
		q, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"product","qty":2}]`), "dev10")
		require.NoError(t, err)
		requireAmounts(t, q.Amounts, "20.00", "2.00", "18.00")
	})

	t.Run("discount price above list price ignored", func(t *testing.T) {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {1: {price: "10.00", discount: "12.00"}}})
		q, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"product"}]`), "")
		require.NoError(t, err)
		requireAmounts(t, q.Amounts, "10.00", "0.00", "10.00")
		require.Equal(t, "10", q.Lines[0].UnitPrice.String())
	})

	t.Run("free items total zero", func(t *testing.T) {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindService: {4: {price: "0"}}})
		q, err := engine.Quote(ctx, []byte(`[{"id":4,"kind":"service","qty":3}]`), "SAVE5")
		require.NoError(t, err)
		requireAmounts(t, q.Amounts, "0.00", "0.00", "0.00")
	})

	t.Run("fixed code capped by subtotal", func(t *testing.T) {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {2: {price: "3.50"}}})
		q, err := engine.Quote(ctx, []byte(`[{"id":2,"kind":"product"}]`), "SAVE5")
		require.NoError(t, err)
		requireAmounts(t, q.Amounts, "3.50", "3.50", "0.00")
	})

	t.Run("mixed kinds", func(t *testing.T) {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{
			catalog.KindProduct: {1: {price: "19.99", discount: "14.99"}},
			catalog.KindService: {1: {price: "33.33"}},
		})
		q, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"product","qty":2},{"id":"1","kind":"service"}]`), "STUDENT15")
		require.NoError(t, err)
		// 29.98 + 33.33 = 63.31; 15% = 9.4965 -> 9.50
		requireAmounts(t, q.Amounts, "63.31", "9.50", "53.81")
		require.Len(t, q.Lines, 2)
	})
}

func TestQuoteSingleLineEqualsUnitPrice(t *testing.T) {
	prices := []string{"0.01", "1.99", "10.00", "249.50"}
	for _, p := range prices {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {7: {price: p}}})
		q, err := engine.Quote(context.Background(), []byte(`[{"id":7,"kind":"product","qty":1}]`), "")
		require.NoError(t, err)
		require.True(t, q.Amounts.Subtotal.Equal(decimal.RequireFromString(p)))
		require.True(t, q.Amounts.Total.Equal(q.Amounts.Subtotal.Decimal))
	}
}

func TestQuoteIsIdempotent(t *testing.T) {
	engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {1: {price: "7.77"}}})
	cart := []byte(`[{"id":1,"kind":"product","qty":3}]`)
	first, err := engine.Quote(context.Background(), cart, "DEV10")
	require.NoError(t, err)
	second, err := engine.Quote(context.Background(), cart, "DEV10")
	require.NoError(t, err)
	require.Equal(t, first.Amounts, second.Amounts)
}

func TestQuoteTotalInvariant(t *testing.T) {
	engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {
		1: {price: "0.01"}, 2: {price: "4.99"}, 3: {price: "5.00"}, 4: {price: "123.45"},
	}})
	codes := []string{"", "DEV10", "STUDENT15", "SAVE5", "unknown"}
	for id := 1; id <= 4; id++ {
		for qty := 1; qty <= 3; qty++ {
			for _, code := range codes {
				cart := []byte(`[{"id":` + decimal.NewFromInt(int64(id)).String() + `,"kind":"product","qty":` + decimal.NewFromInt(int64(qty)).String() + `}]`)
				q, err := engine.Quote(context.Background(), cart, code)
				require.NoError(t, err)
				want := q.Amounts.Subtotal.Sub(q.Amounts.Discount.Decimal).Round(2)
				if want.IsNegative() {
					want = decimal.Zero
				}
				require.True(t, q.Amounts.Total.Equal(want))
				require.False(t, q.Amounts.Total.IsNegative())
				require.True(t, q.Amounts.Discount.LessThanOrEqual(q.Amounts.Subtotal.Decimal))
			}
		}
	}
}

func TestQuoteErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		engine, reader := newEngine(nil)
		for _, raw := range []string{``, `null`, `[]`, `{}`, `"x"`} {
			_, err := engine.Quote(ctx, []byte(raw), "")
			require.ErrorIs(t, err, pricing.ErrEmptyCart, raw)
			require.EqualError(t, err, "empty cart")
		}
		require.Zero(t, reader.calls)
	})

	t.Run("unknown item names kind and id", func(t *testing.T) {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {1: {price: "1"}}})
		_, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"product"},{"id":42,"kind":"service"}]`), "")
		require.EqualError(t, err, "item not found: service 42")
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("unknown kind is not found", func(t *testing.T) {
		engine, _ := newEngine(map[catalog.Kind]map[int64]row{catalog.KindProduct: {1: {price: "1"}}})
		_, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"bundle"}]`), "")
		require.EqualError(t, err, "item not found: bundle 1")
	})

	t.Run("store failure propagates", func(t *testing.T) {
		engine, reader := newEngine(nil)
		reader.err = errors.New("db down")
		_, err := engine.Quote(ctx, []byte(`[{"id":1,"kind":"product"}]`), "")
		require.EqualError(t, err, "db down")
	})
}

func TestComputeAmountsRejectsEmptyLines(t *testing.T) {
	engine, _ := newEngine(nil)
	_, err := engine.ComputeAmounts(context.Background(), nil, "")
	require.ErrorIs(t, err, pricing.ErrEmptyCart)
}
