package strategy

import (
	"github.com/talgya/compute-market/internal/protocol"
)

// Fair targets a market-rate estimate and splits the difference.
type Fair struct {
	Tolerance float64 // accepted deviation from the fair price, as a fraction
}

// NewFair returns a Fair strategy with params applied over the defaults.
func NewFair(params Params) (*Fair, error) {
	f := &Fair{Tolerance: 0.15}
	if err := apply("fair", params, map[string]*float64{
		"tolerance": &f.Tolerance,
	}); err != nil {
		return nil, err
	}
	if f.Tolerance < 0 {
		return nil, paramErr("fair", "tolerance", f.Tolerance, ">= 0")
	}
	return f, nil
}

func (f *Fair) Name() string { return "fair" }

// FairPrice is the mean of every price the agent has closed at for the
// resource, or the reference price before its first deal.
func FairPrice(v protocol.View) float64 {
	prices := make([]float64, 0, len(v.BuyPrices)+len(v.SellPrices))
	prices = append(prices, v.BuyPrices...)
	prices = append(prices, v.SellPrices...)
	if m, ok := mean(prices); ok {
		return m
	}
	return v.ReferencePrice()
}

// Decide implements protocol.Decider.
func (f *Fair) Decide(v protocol.View) protocol.Action {
	fair := FairPrice(v)
	if !v.HasStanding {
		return open(v, fair)
	}

	limit := fair * (1 + f.Tolerance)
	if v.Role == protocol.RoleSeller {
		limit = fair * (1 - f.Tolerance)
	}
	if favourable(v, v.Standing.UnitPrice, limit) && v.CanHonour(v.Standing) {
		return protocol.Accept()
	}

	own := fair
	if v.HasOwnLast {
		own = v.OwnLast.UnitPrice
	}
	return counterOrReject(v, v.Standing.Quantity, (own+v.Standing.UnitPrice)/2)
}
