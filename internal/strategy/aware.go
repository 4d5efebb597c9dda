package strategy

import (
	"github.com/talgya/compute-market/internal/protocol"
)

// DefaultTrustThreshold is the trust below which ReputationAware refuses to
// negotiate.
const DefaultTrustThreshold = 0.3

// ReputationAware wraps another strategy and refuses counterparties it does
// not trust. Its own view of the counterparty wins over the public score once
// it has dealt with them.
type ReputationAware struct {
	Inner     Strategy
	Threshold float64
}

// NewReputationAware wraps inner.
func NewReputationAware(inner Strategy, threshold float64) (*ReputationAware, error) {
	if inner == nil {
		return nil, paramErr("aware", "inner", 0, "a strategy")
	}
	return &ReputationAware{Inner: inner, Threshold: threshold}, nil
}

func (r *ReputationAware) Name() string { return AwarePrefix + r.Inner.Name() }

// Decide implements protocol.Decider.
func (r *ReputationAware) Decide(v protocol.View) protocol.Action {
	trust := v.CounterpartyReputation
	if v.KnowsCounterparty {
		trust = v.Trust
	}
	if trust < r.Threshold {
		return protocol.Reject("low reputation")
	}
	return r.Inner.Decide(v)
}

// Learn forwards feedback to the wrapped strategy if it learns.
func (r *ReputationAware) Learn(fb Feedback) {
	if l, ok := r.Inner.(Learner); ok {
		l.Learn(fb)
	}
}
