package agents

import (
	"github.com/talgya/compute-market/internal/resource"
)

// MaxPriceMemory caps how many closed prices per side and resource an agent
// remembers. Strategies average over this window.
const MaxPriceMemory = 50

type priceMemory struct {
	buy  [resource.NumTypes][]float64
	sell [resource.NumTypes][]float64
}

func (m *priceMemory) remember(side *[resource.NumTypes][]float64, t resource.Type, price float64) {
	s := append(side[t], price)
	if len(s) > MaxPriceMemory {
		s = s[len(s)-MaxPriceMemory:]
	}
	side[t] = s
}

// PriceHistory returns copies of the unit prices the agent closed at for t,
// oldest first, as buyer and as seller.
func (a *Agent) PriceHistory(t resource.Type) (buy, sell []float64) {
	if !t.Valid() {
		return nil, nil
	}
	buy = append([]float64(nil), a.prices.buy[t]...)
	sell = append([]float64(nil), a.prices.sell[t]...)
	return buy, sell
}

// RecentDeals returns up to count of the most recent deals, newest first.
func (a *Agent) RecentDeals(count int) []Deal {
	count = min(max(count, 0), len(a.Deals))
	out := make([]Deal, 0, count)
	for i := len(a.Deals) - 1; i >= len(a.Deals)-count; i-- {
		out = append(out, a.Deals[i])
	}
	return out
}
