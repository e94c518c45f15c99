package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAmountJSON(t *testing.T) {
	payload := struct {
		Total Amount  `json:"total"`
		Opt   *Amount `json:"opt,omitempty"`
	}{Total: New(decimal.RequireFromString("45"))}

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.Equal(t, `{"total":45.00}`, string(out))

	var back struct {
		Total Amount `json:"total"`
	}
	require.NoError(t, json.Unmarshal(out, &back))
	require.True(t, back.Total.Equal(decimal.NewFromInt(45)))
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	require.Equal(t, "0.01", Round(decimal.RequireFromString("0.005")).StringFixed(2))
	require.Equal(t, "2.68", Round(decimal.RequireFromString("2.675")).StringFixed(2))
}
