package scenario

import (
	"fmt"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/entropy"
	"github.com/talgya/compute-market/internal/resource"
	"github.com/talgya/compute-market/internal/strategy"
)

// Build validates cfg and returns a simulator at round 0. A zero seed is
// replaced by a random one before anything seeded is built, so the
// simulator and the demand noise share it.
func Build(cfg Config) (*engine.Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.CryptoSeed()
	}

	population := make([]*agents.Agent, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		a, err := buildAgent(ac, cfg.Reputation.Neutral)
		if err != nil {
			return nil, err
		}
		population = append(population, a)
	}

	demand, err := buildDemand(cfg.Demand, seed)
	if err != nil {
		return nil, err
	}

	ecfg := engine.DefaultConfig()
	ecfg.Name = cfg.Name
	ecfg.Seed = seed
	ecfg.TurnBudget = cfg.TurnBudget
	ecfg.IsolationThreshold = cfg.IsolationThreshold
	ecfg.Reputation = cfg.Reputation
	ecfg.Demand = demand
	ecfg.Pairing = buildPairing(cfg.Pairing)

	return engine.New(population, ecfg)
}

func buildAgent(ac AgentConfig, neutral float64) (*agents.Agent, error) {
	s, err := strategy.New(ac.Strategy, strategy.Params(ac.Params))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
	}
	holdings, err := quantities(ac.Holdings)
	if err != nil {
		return nil, fmt.Errorf("agent %s holdings: %w", ac.ID, err)
	}
	needs, err := quantities(ac.Needs)
	if err != nil {
		return nil, fmt.Errorf("agent %s needs: %w", ac.ID, err)
	}

	rep := neutral
	if ac.Reputation != nil {
		rep = *ac.Reputation
	}

	return agents.New(agents.Config{
		ID:         ac.ID,
		Holdings:   holdings,
		Wealth:     ac.Wealth,
		Reputation: rep,
		Strategy:   s,
		CheatRate:  ac.CheatRate,
		Needs:      needs,
	})
}

func buildDemand(dc DemandConfig, seed int64) (engine.Demand, error) {
	switch dc.Kind {
	case DemandNoise:
		freq := dc.Frequency
		if freq == 0 {
			freq = DefaultNoiseFrequency
		}
		return engine.NewNoiseDemand(seed, dc.Amplitude, freq), nil
	case DemandRotating:
		q, err := quantities(dc.Need)
		if err != nil {
			return nil, fmt.Errorf("rotating demand: %w", err)
		}
		need, err := agents.NewNeeds(q)
		if err != nil {
			return nil, fmt.Errorf("rotating demand: %w", err)
		}
		var occasional map[string]float64
		if len(dc.Occasional) > 0 {
			occasional = make(map[string]float64, len(dc.Occasional))
			for _, o := range dc.Occasional {
				occasional[o.Agent] = o.Probability
			}
		}
		return engine.RotatingDemand{
			Pool:       dc.Pool,
			Count:      dc.Count,
			Need:       need,
			Occasional: occasional,
		}, nil
	default:
		return engine.StaticDemand{}, nil
	}
}

func buildPairing(pc PairingConfig) engine.Pairing {
	switch pc.Kind {
	case PairingAll:
		return engine.AllPairs{}
	case PairingFixed:
		return engine.FixedPairs{Pairs: pc.Pairs}
	default:
		return engine.RandomMatching{}
	}
}

// quantities converts a resource-name map. Value checks are left to the
// agent and needs constructors.
func quantities(m map[string]float64) (map[resource.Type]float64, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[resource.Type]float64, len(m))
	for name, q := range m {
		t, err := resource.ParseType(name)
		if err != nil {
			return nil, err
		}
		out[t] = q
	}
	return out, nil
}
