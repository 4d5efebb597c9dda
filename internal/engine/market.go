// Market matching — decides which seeker negotiates with which provider.
package engine

import (
	"math/rand"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/resource"
)

// Request is one scheduled negotiation: the seeker asks the provider for
// Quantity of Resource.
type Request struct {
	Seeker   string
	Provider string
	Resource resource.Type
	Quantity float64
}

// Pairing schedules the round's negotiations. pool holds the agents allowed
// to trade this round in a stable order; needs is the round's demand.
type Pairing interface {
	Pair(round int, needs map[string]agents.Needs, pool []*agents.Agent, rng *rand.Rand) []Request
}

// sides splits the pool into seekers and providers. When nobody is free to
// provide, every agent may be asked.
func sides(needs map[string]agents.Needs, pool []*agents.Agent) (seekers, providers []*agents.Agent) {
	for _, a := range pool {
		if n, ok := needs[a.ID]; ok && !n.IsZero() {
			seekers = append(seekers, a)
		} else {
			providers = append(providers, a)
		}
	}
	if len(providers) == 0 {
		providers = pool
	}
	return seekers, providers
}

// holders filters providers to those other than seeker holding some of t.
func holders(providers []*agents.Agent, seeker *agents.Agent, t resource.Type) []*agents.Agent {
	var out []*agents.Agent
	for _, p := range providers {
		if p.ID != seeker.ID && p.Holdings.Get(t).IsPositive() {
			out = append(out, p)
		}
	}
	return out
}

// RandomMatching sends each seeker, for each resource it needs, to one
// provider holding that resource, chosen at random.
type RandomMatching struct{}

func (RandomMatching) Pair(_ int, needs map[string]agents.Needs, pool []*agents.Agent, rng *rand.Rand) []Request {
	seekers, providers := sides(needs, pool)
	var reqs []Request
	for _, s := range seekers {
		n := needs[s.ID]
		for _, t := range resource.Types {
			if n[t] <= 0 {
				continue
			}
			candidates := holders(providers, s, t)
			if len(candidates) == 0 {
				continue
			}
			p := candidates[rng.Intn(len(candidates))]
			reqs = append(reqs, Request{Seeker: s.ID, Provider: p.ID, Resource: t, Quantity: n[t]})
		}
	}
	return reqs
}

// AllPairs sends each seeker to every provider holding what it needs. A
// seeker can close several deals for the same need in one round.
type AllPairs struct{}

func (AllPairs) Pair(_ int, needs map[string]agents.Needs, pool []*agents.Agent, _ *rand.Rand) []Request {
	seekers, providers := sides(needs, pool)
	var reqs []Request
	for _, s := range seekers {
		n := needs[s.ID]
		for _, t := range resource.Types {
			if n[t] <= 0 {
				continue
			}
			for _, p := range holders(providers, s, t) {
				reqs = append(reqs, Request{Seeker: s.ID, Provider: p.ID, Resource: t, Quantity: n[t]})
			}
		}
	}
	return reqs
}

// Pair is a fixed seeker→provider relationship.
type Pair struct {
	Seeker   string `mapstructure:"seeker" toml:"seeker"`
	Provider string `mapstructure:"provider" toml:"provider"`
}

// FixedPairs negotiates only along the listed pairs, whenever the seeker has
// a need and both sides may trade. The provider is asked even if it holds
// nothing; it is free to reject.
type FixedPairs struct {
	Pairs []Pair
}

func (f FixedPairs) Pair(_ int, needs map[string]agents.Needs, pool []*agents.Agent, _ *rand.Rand) []Request {
	allowed := make(map[string]bool, len(pool))
	for _, a := range pool {
		allowed[a.ID] = true
	}
	var reqs []Request
	for _, p := range f.Pairs {
		if !allowed[p.Seeker] || !allowed[p.Provider] || p.Seeker == p.Provider {
			continue
		}
		n := needs[p.Seeker]
		for _, t := range resource.Types {
			if n[t] > 0 {
				reqs = append(reqs, Request{Seeker: p.Seeker, Provider: p.Provider, Resource: t, Quantity: n[t]})
			}
		}
	}
	return reqs
}
