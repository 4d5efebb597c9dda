package strategy

import (
	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/resource"
)

// Adaptive keeps a running belief of the market-clearing price per resource
// and offers near it. Beliefs move toward every closed price, and toward the
// counterparty's last terms with a smaller weight after a failed negotiation.
// Two Adaptive agents trading repeatedly pull their beliefs together until
// their offers stop moving.
type Adaptive struct {
	LearningRate  float64
	Tolerance     float64 // accepted deviation from belief, as a fraction
	FailureWeight float64 // scales LearningRate after a failed negotiation
	InitialBelief float64 // starting belief as a multiple of the reference price

	beliefs [resource.NumTypes]float64
	seeded  [resource.NumTypes]bool
}

// NewAdaptive returns an Adaptive strategy with params applied over the
// defaults.
func NewAdaptive(params Params) (*Adaptive, error) {
	a := &Adaptive{LearningRate: 0.2, Tolerance: 0.15, FailureWeight: 0.25, InitialBelief: 1}
	if err := apply("adaptive", params, map[string]*float64{
		"learning_rate":  &a.LearningRate,
		"tolerance":      &a.Tolerance,
		"failure_weight": &a.FailureWeight,
		"initial_belief": &a.InitialBelief,
	}); err != nil {
		return nil, err
	}
	switch {
	case a.LearningRate <= 0 || a.LearningRate > 1:
		return nil, paramErr("adaptive", "learning_rate", a.LearningRate, "(0, 1]")
	case a.Tolerance < 0:
		return nil, paramErr("adaptive", "tolerance", a.Tolerance, ">= 0")
	case a.FailureWeight < 0 || a.FailureWeight > 1:
		return nil, paramErr("adaptive", "failure_weight", a.FailureWeight, "[0, 1]")
	case a.InitialBelief <= 0:
		return nil, paramErr("adaptive", "initial_belief", a.InitialBelief, "> 0")
	}
	return a, nil
}

func (a *Adaptive) Name() string { return "adaptive" }

// Belief returns the current clearing-price belief for rt.
func (a *Adaptive) Belief(rt resource.Type) float64 {
	if !rt.Valid() {
		return 0
	}
	if a.seeded[rt] {
		return a.beliefs[rt]
	}
	return rt.ReferencePrice() * a.InitialBelief
}

// Decide implements protocol.Decider.
func (a *Adaptive) Decide(v protocol.View) protocol.Action {
	belief := a.Belief(v.Resource)
	if !v.HasStanding {
		return open(v, belief)
	}

	limit := belief * (1 + a.Tolerance)
	if v.Role == protocol.RoleSeller {
		limit = belief * (1 - a.Tolerance)
	}
	if favourable(v, v.Standing.UnitPrice, limit) && v.CanHonour(v.Standing) {
		return protocol.Accept()
	}

	own := belief
	if v.HasOwnLast {
		own = v.OwnLast.UnitPrice
	}
	return counterOrReject(v, v.Standing.Quantity, (own+v.Standing.UnitPrice)/2)
}

// Learn implements Learner.
func (a *Adaptive) Learn(fb Feedback) {
	if !fb.Resource.Valid() {
		return
	}
	belief := a.Belief(fb.Resource)
	switch {
	case fb.Agreed:
		belief += a.LearningRate * (fb.Price - belief)
	case fb.HasCounterpartyPrice:
		belief += a.LearningRate * a.FailureWeight * (fb.CounterpartyPrice - belief)
	default:
		return
	}
	a.beliefs[fb.Resource] = belief
	a.seeded[fb.Resource] = true
}
