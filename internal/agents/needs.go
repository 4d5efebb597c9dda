package agents

import (
	"fmt"
	"math"

	"github.com/talgya/compute-market/internal/resource"
)

// Needs is how much of each resource an agent wants to acquire in a round.
// Agents with needs seek; agents without them provide.
type Needs [resource.NumTypes]float64

// NewNeeds builds Needs from a map, rejecting unknown types and negative or
// non-finite quantities.
func NewNeeds(m map[resource.Type]float64) (Needs, error) {
	var n Needs
	for t, q := range m {
		if !t.Valid() {
			return n, fmt.Errorf("%w: %d", resource.ErrUnknownType, uint8(t))
		}
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return n, fmt.Errorf("%w: %s need %v", resource.ErrInvalidQuantity, t, q)
		}
		if q < 0 {
			return n, fmt.Errorf("%w: %s need %v", resource.ErrNegativeQuantity, t, q)
		}
		n[t] = q
	}
	return n, nil
}

// Scale returns the needs multiplied by f, floored at zero. Used for
// time-varying demand.
func (n Needs) Scale(f float64) Needs {
	var out Needs
	for i, q := range n {
		out[i] = math.Max(0, q*f)
	}
	return out
}

// IsZero reports whether nothing is needed.
func (n Needs) IsZero() bool {
	for _, q := range n {
		if q > 0 {
			return false
		}
	}
	return true
}

// Total is the sum of all needed units.
func (n Needs) Total() float64 {
	total := 0.0
	for _, q := range n {
		total += q
	}
	return total
}
