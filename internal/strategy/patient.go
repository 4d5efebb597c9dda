package strategy

import (
	"github.com/talgya/compute-market/internal/protocol"
)

// Patient only takes favourable terms and would rather let a session time out
// than concede. It counters near its prior position.
type Patient struct {
	Patience float64 // 0..1; higher asks more as seller and bids less as buyer
	Drift    float64 // per-turn move toward the counterparty, as a fraction of its position
}

// NewPatient returns a Patient strategy with params applied over the defaults.
func NewPatient(params Params) (*Patient, error) {
	p := &Patient{Patience: 0.8, Drift: 0.01}
	if err := apply("patient", params, map[string]*float64{
		"patience": &p.Patience,
		"drift":    &p.Drift,
	}); err != nil {
		return nil, err
	}
	switch {
	case p.Patience < 0 || p.Patience > 1:
		return nil, paramErr("patient", "patience", p.Patience, "[0, 1]")
	case p.Drift < 0 || p.Drift >= 1:
		return nil, paramErr("patient", "drift", p.Drift, "[0, 1)")
	}
	return p, nil
}

func (p *Patient) Name() string { return "patient" }

func (p *Patient) target(v protocol.View) float64 {
	if v.Role == protocol.RoleSeller {
		return v.ReferencePrice() * (1 + 0.3*p.Patience)
	}
	return v.ReferencePrice() * (1 - 0.3*p.Patience)
}

// Decide implements protocol.Decider.
func (p *Patient) Decide(v protocol.View) protocol.Action {
	position := p.target(v)
	if !v.HasStanding {
		return open(v, position)
	}
	if v.HasOwnLast {
		position = v.OwnLast.UnitPrice
	}
	if favourable(v, v.Standing.UnitPrice, position) && v.CanHonour(v.Standing) {
		return protocol.Accept()
	}
	next := toward(position, v.Standing.UnitPrice, p.Drift*position)
	return counterOrReject(v, v.Standing.Quantity, next)
}
