package pricing

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is one requested item. Quantity is always >= 1.
type CartLine struct {
	ItemID   int64  `json:"id"`
	Kind     string `json:"kind"`
	Quantity int    `json:"qty"`
}

// ParseCart decodes the raw "items" value of a checkout request. Anything that
// is not a non-empty JSON array is an empty cart. Each element must be an
// object with an integer id (number or digit string), a string kind and an
// optional integer qty; qty below 1 or missing becomes 1. One malformed line
// rejects the whole cart.
func ParseCart(raw []byte) ([]CartLine, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrEmptyCart
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, ErrEmptyCart
	}
	if len(elems) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]CartLine, 0, len(elems))
	for _, elem := range elems {
		line, err := parseLine(elem)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseLine(raw json.RawMessage) (CartLine, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return CartLine{}, ErrInvalidItem
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return CartLine{}, ErrInvalidItem
	}

	id, ok := parseInteger(fields["id"])
	if !ok {
		return CartLine{}, ErrInvalidItem
	}

	var kind string
	if rawKind, present := fields["kind"]; present && !isNull(rawKind) {
		if err := json.Unmarshal(rawKind, &kind); err != nil {
			return CartLine{}, ErrInvalidItem
		}
	}

	qty := int64(1)
	if rawQty, present := fields["qty"]; present && !isNull(rawQty) {
		q, ok := parseInteger(rawQty)
		if !ok || q > math.MaxInt32 {
			return CartLine{}, ErrInvalidItem
		}
		if q > 1 {
			qty = q
		}
	}

	return CartLine{ItemID: id, Kind: kind, Quantity: int(qty)}, nil
}

// parseInteger accepts a JSON number with no fractional part or a string of
// decimal digits. Booleans, null, fractions and other strings are rejected.
func parseInteger(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil || !d.IsInteger() {
			return 0, false
		}
		if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
			return 0, false
		}
		return d.IntPart(), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
