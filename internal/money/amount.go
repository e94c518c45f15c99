// Package money holds the currency amount representation shared by the catalog,
// pricing and checkout packages.
package money

import "github.com/shopspring/decimal"

// Amount is a decimal currency amount that serialises as a JSON number with
// exactly two fraction digits (e.g. 45.00).
type Amount struct {
	decimal.Decimal
}

// New wraps d.
func New(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// Round rounds d to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// MarshalJSON renders the amount as an unquoted number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

// String renders the amount with two decimals.
func (a Amount) String() string { return a.StringFixed(2) }
