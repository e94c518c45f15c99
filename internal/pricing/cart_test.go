package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-shop/internal/pricing"
)

func TestParseCartQuantityDefaults(t *testing.T) {
	lines, err := pricing.ParseCart([]byte(`[
		{"id":1,"kind":"product"},
		{"id":2,"kind":"product","qty":0},
		{"id":3,"kind":"service","qty":-4},
		{"id":"4","kind":"service","qty":"3"},
		{"id":5,"kind":"product","qty":null}
	]`))
	require.NoError(t, err)
	require.Equal(t, []pricing.CartLine{
		{ItemID: 1, Kind: "product", Quantity: 1},
		{ItemID: 2, Kind: "product", Quantity: 1},
		{ItemID: 3, Kind: "service", Quantity: 1},
		{ItemID: 4, Kind: "service", Quantity: 3},
		{ItemID: 5, Kind: "product", Quantity: 1},
	}, lines)
}

func TestParseCartIgnoresClientPrices(t *testing.T) {
	lines, err := pricing.ParseCart([]byte(`[{"id":1,"kind":"product","qty":2,"price":0.01}]`))
	require.NoError(t, err)
	require.Equal(t, []pricing.CartLine{{ItemID: 1, Kind: "product", Quantity: 2}}, lines)
}

func TestParseCartInvalidLines(t *testing.T) {
	cases := map[string]string{
		"fractional id":   `[{"id":1.5,"kind":"product"}]`,
		"bool id":         `[{"id":true,"kind":"product"}]`,
		"missing id":      `[{"kind":"product"}]`,
		"word id":         `[{"id":"abc","kind":"product"}]`,
		"fractional qty":  `[{"id":1,"kind":"product","qty":1.2}]`,
		"string kind":     `[{"id":1,"kind":7}]`,
		"non-object line": `[{"id":1,"kind":"product"},3]`,
		"array line":      `[[1,"product",2]]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pricing.ParseCart([]byte(raw))
			require.ErrorIs(t, err, pricing.ErrInvalidItem)
			require.EqualError(t, err, "invalid item payload")
		})
	}
}

func TestParseCartEmpty(t *testing.T) {
	for _, raw := range []string{``, `   `, `null`, `[]`, `{"id":1}`, `[1,`} {
		_, err := pricing.ParseCart([]byte(raw))
		require.ErrorIs(t, err, pricing.ErrEmptyCart, raw)
	}
}
