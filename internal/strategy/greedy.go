package strategy

import (
	"github.com/talgya/compute-market/internal/protocol"
)

// Greedy always proposes terms skewed in its own favour: it lowballs as a
// buyer and demands a premium as a seller. It concedes one small step per
// turn and never more than MaxConcession of the reference price in total, so
// two Greedy agents never meet.
type Greedy struct {
	Factor        float64 // buyer bids ref·Factor, seller asks ref·(2−Factor)
	Step          float64 // concession per turn, as a fraction of ref
	MaxConcession float64 // total concession cap, as a fraction of ref
}

// NewGreedy returns a Greedy strategy with params applied over the defaults.
func NewGreedy(params Params) (*Greedy, error) {
	g := &Greedy{Factor: 0.7, Step: 0.01, MaxConcession: 0.1}
	if err := apply("greedy", params, map[string]*float64{
		"factor":         &g.Factor,
		"step":           &g.Step,
		"max_concession": &g.MaxConcession,
	}); err != nil {
		return nil, err
	}
	switch {
	case g.Factor <= 0 || g.Factor >= 1:
		return nil, paramErr("greedy", "factor", g.Factor, "(0, 1)")
	case g.Step < 0:
		return nil, paramErr("greedy", "step", g.Step, ">= 0")
	case g.MaxConcession < 0:
		return nil, paramErr("greedy", "max_concession", g.MaxConcession, ">= 0")
	}
	return g, nil
}

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) opening(v protocol.View) float64 {
	if v.Role == protocol.RoleSeller {
		return v.ReferencePrice() * (2 - g.Factor)
	}
	return v.ReferencePrice() * g.Factor
}

// Decide implements protocol.Decider.
func (g *Greedy) Decide(v protocol.View) protocol.Action {
	start := g.opening(v)
	if !v.HasStanding {
		return open(v, start)
	}

	position := start
	if v.HasOwnLast {
		position = v.OwnLast.UnitPrice
	}
	if favourable(v, v.Standing.UnitPrice, position) && v.CanHonour(v.Standing) {
		return protocol.Accept()
	}

	ref := v.ReferencePrice()
	next := toward(position, v.Standing.UnitPrice, g.Step*ref)
	next = toward(start, next, g.MaxConcession*ref)
	return counterOrReject(v, v.Standing.Quantity, next)
}
