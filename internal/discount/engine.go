package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kind distinguishes how a rule's value is applied.
type Kind string

const (
	// Percent rules take Value percent of the subtotal.
	Percent Kind = "percent"
	// Fixed rules subtract Value currency units, capped at the subtotal.
	Fixed Kind = "fixed"
)

// Rule describes a single discount code.
type Rule struct {
	Code  string          `json:"code"`
	Kind  Kind            `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Rules resolves a normalised code to its rule.
type Rules interface {
	Lookup(code string) (Rule, bool)
}

// StaticRules is an in-memory rule table keyed by normalised code.
type StaticRules map[string]Rule

// Lookup implements Rules.
func (s StaticRules) Lookup(code string) (Rule, bool) {
	r, ok := s[code]
	return r, ok
}

// DefaultRules returns the storefront's built-in codes.
func DefaultRules() StaticRules {
	return StaticRules{
		"DEV10":     {Code: "DEV10", Kind: Percent, Value: decimal.NewFromInt(10)},
		"STUDENT15": {Code: "STUDENT15", Kind: Percent, Value: decimal.NewFromInt(15)},
		"SAVE5":     {Code: "SAVE5", Kind: Fixed, Value: decimal.RequireFromString("5.00")},
	}
}

// Normalize trims surrounding whitespace and upper-cases the code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluator computes discounts for a subtotal.
type Evaluator struct {
	rules Rules
}

// NewEvaluator builds an Evaluator over rules; nil selects DefaultRules.
func NewEvaluator(rules Rules) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Evaluator{rules: rules}
}

// Lookup returns the rule for a raw (un-normalised) code.
func (e *Evaluator) Lookup(code string) (Rule, bool) {
	normalized := Normalize(code)
	if normalized == "" {
		return Rule{}, false
	}
	return e.rules.Lookup(normalized)
}

// Evaluate returns the discount for subtotal under code. Unknown or empty codes
// yield zero. The result never exceeds the subtotal and is never negative.
func (e *Evaluator) Evaluate(subtotal decimal.Decimal, code string) decimal.Decimal {
	rule, ok := e.Lookup(code)
	if !ok {
		return decimal.Zero
	}
	return Compute(subtotal, rule)
}

// Compute applies rule to subtotal.
func Compute(subtotal decimal.Decimal, r Rule) decimal.Decimal {
	if !subtotal.IsPositive() || !r.Value.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch r.Kind {
	case Percent:
		discount = subtotal.Mul(r.Value).Div(decimal.NewFromInt(100)).Round(2)
	case Fixed:
		discount = decimal.Min(r.Value, subtotal)
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount
}
