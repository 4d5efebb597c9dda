package strategy

import (
	"github.com/talgya/compute-market/internal/protocol"
)

// Broker is a middleman: it buys on one side and resells on the other, and
// only closes when it can lock in its commission over the price it expects on
// the opposite side. It quotes once and otherwise rejects.
type Broker struct {
	Commission float64
}

// NewBroker returns a Broker strategy with params applied over the defaults.
func NewBroker(params Params) (*Broker, error) {
	b := &Broker{Commission: 0.1}
	if err := apply("broker", params, map[string]*float64{
		"commission": &b.Commission,
	}); err != nil {
		return nil, err
	}
	if b.Commission <= 0 {
		return nil, paramErr("broker", "commission", b.Commission, "> 0")
	}
	return b, nil
}

func (b *Broker) Name() string { return "broker" }

// Ask is the lowest price the broker resells at: its average buy price plus
// commission.
func (b *Broker) Ask(v protocol.View) float64 {
	cost, ok := mean(v.BuyPrices)
	if !ok {
		cost = v.ReferencePrice()
	}
	return cost * (1 + b.Commission)
}

// Bid is the highest price the broker buys at: its average resale price less
// commission.
func (b *Broker) Bid(v protocol.View) float64 {
	resale, ok := mean(v.SellPrices)
	if !ok {
		resale = v.ReferencePrice()
	}
	return resale / (1 + b.Commission)
}

// Decide implements protocol.Decider.
func (b *Broker) Decide(v protocol.View) protocol.Action {
	if v.Role == protocol.RoleSeller {
		ask := b.Ask(v)
		if !v.HasStanding {
			return open(v, ask)
		}
		if v.Standing.UnitPrice >= ask && v.CanHonour(v.Standing) {
			return protocol.Accept()
		}
		return protocol.Reject("no spread")
	}

	bid := b.Bid(v)
	if v.Standing.UnitPrice <= bid && v.CanHonour(v.Standing) {
		return protocol.Accept()
	}
	if !v.HasOwnLast {
		return counterOrReject(v, v.Standing.Quantity, bid)
	}
	return protocol.Reject("no spread")
}
