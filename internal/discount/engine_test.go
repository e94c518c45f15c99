package discount

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEvaluateDefaultCodes(t *testing.T) {
	e := NewEvaluator(nil)
	cases := []struct {
		name     string
		subtotal string
		code     string
		want     string
	}{
		{"percent 10", "50.00", "DEV10", "5.00"},
		{"percent lower case and padded", "50.00", "  dev10 ", "5.00"},
		{"percent 15 rounds", "33.33", "STUDENT15", "5.00"},
		{"percent 10 rounds half up", "0.05", "DEV10", "0.01"},
		{"fixed under subtotal", "20.00", "SAVE5", "5.00"},
		{"fixed capped at subtotal", "3.00", "SAVE5", "3.00"},
		{"unknown code", "20.00", "BOGUS", "0"},
		{"empty code", "20.00", "", "0"},
		{"zero subtotal", "0", "DEV10", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(dec(tc.subtotal), tc.code)
			require.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestEvaluateNeverExceedsSubtotal(t *testing.T) {
	rules := StaticRules{
		"HUGE": {Code: "HUGE", Kind: Percent, Value: decimal.NewFromInt(150)},
		"BIG":  {Code: "BIG", Kind: Fixed, Value: decimal.NewFromInt(1000)},
		"NEG":  {Code: "NEG", Kind: Fixed, Value: decimal.NewFromInt(-5)},
	}
	e := NewEvaluator(rules)
	for _, code := range []string{"HUGE", "BIG", "NEG"} {
		for _, s := range []string{"0.01", "1.00", "99.99"} {
			got := e.Evaluate(dec(s), code)
			require.False(t, got.IsNegative())
			require.True(t, got.LessThanOrEqual(dec(s)))
		}
	}
}

func TestValidateHandler(t *testing.T) {
	h := Handler{Evaluator: NewEvaluator(nil)}

	rr := httptest.NewRecorder()
	h.Validate(rr, httptest.NewRequest(http.MethodGet, "/api/discounts/validate?code=save5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"code":"SAVE5","type":"fixed","value":"5.00"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.Validate(rr, httptest.NewRequest(http.MethodGet, "/api/discounts/validate?code=nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.Validate(rr, httptest.NewRequest(http.MethodGet, "/api/discounts/validate", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
