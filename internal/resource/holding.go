package resource

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Holding is the quantity of each resource type owned by one agent.
// Fixed-size array indexed by Type; every entry is kept >= 0.
type Holding [NumTypes]decimal.Decimal

// NewHolding builds a holding from float quantities. Negative or non-finite
// quantities are rejected.
func NewHolding(quantities map[Type]float64) (Holding, error) {
	var h Holding
	for t, q := range quantities {
		if !t.Valid() {
			return Holding{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
		}
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return Holding{}, fmt.Errorf("%w: %s=%v", ErrInvalidQuantity, t, q)
		}
		if q < 0 {
			return Holding{}, fmt.Errorf("%w: %s=%v", ErrNegativeQuantity, t, q)
		}
		h[t] = decimal.NewFromFloat(q)
	}
	return h, nil
}

// Get returns the exact quantity held of t.
func (h Holding) Get(t Type) decimal.Decimal {
	if !t.Valid() {
		return decimal.Zero
	}
	return h[t]
}

// Float returns the quantity held of t as a float64.
func (h Holding) Float(t Type) float64 {
	return h.Get(t).InexactFloat64()
}

// Covers reports whether the holding has at least qty of t.
func (h Holding) Covers(t Type, qty decimal.Decimal) bool {
	return t.Valid() && h[t].GreaterThanOrEqual(qty)
}

// IsEmpty returns true if all quantities are zero.
func (h Holding) IsEmpty() bool {
	for _, q := range h {
		if !q.IsZero() {
			return false
		}
	}
	return true
}

// Units is the sum of every quantity held, regardless of type.
func (h Holding) Units() decimal.Decimal {
	total := decimal.Zero
	for _, q := range h {
		total = total.Add(q)
	}
	return total
}

// Map returns the holding as float quantities, omitting zero entries.
func (h Holding) Map() map[Type]float64 {
	out := make(map[Type]float64, NumTypes)
	for _, t := range Types {
		if !h[t].IsZero() {
			out[t] = h.Float(t)
		}
	}
	return out
}

func (h Holding) String() string {
	var parts []string
	for _, t := range Types {
		if !h[t].IsZero() {
			parts = append(parts, fmt.Sprintf("%s=%s", t, h[t].StringFixed(2)))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

// Transfer moves qty of t from one holding to another. It is all-or-nothing:
// on error neither holding changes.
func Transfer(from, to *Holding, t Type, qty decimal.Decimal) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, qty)
	}
	if from == to {
		return fmt.Errorf("%w: source and destination are the same holding", ErrInvalidQuantity)
	}
	if from[t].LessThan(qty) {
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientResource, from[t], t.Unit(), qty)
	}
	from[t] = from[t].Sub(qty)
	to[t] = to[t].Add(qty)
	return nil
}

// Sum adds holdings together, used for conservation checks.
func Sum(holdings ...Holding) Holding {
	var total Holding
	for _, h := range holdings {
		for _, t := range Types {
			total[t] = total[t].Add(h[t])
		}
	}
	return total
}
