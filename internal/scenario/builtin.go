package scenario

import (
	"fmt"
	"sort"

	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/reputation"
)

var builtins = map[string]func() Config{
	"handshake":    handshake,
	"scarcity":     scarcity,
	"trust":        func() Config { return trust("trust", 1, 60) },
	"subtle-trust": func() Config { return trust("subtle-trust", 0.05, 100) },
}

// Names lists the built-in scenarios.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a fresh copy of the named built-in scenario.
func Builtin(name string) (Config, error) {
	f, ok := builtins[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: no built-in scenario %q", ErrInvalidScenario, name)
	}
	return f(), nil
}

func base(name, description string, rounds int) Config {
	return Config{
		Name:               name,
		Description:        description,
		Seed:               42,
		Rounds:             rounds,
		TurnBudget:         6,
		IsolationThreshold: engine.DefaultIsolationThreshold,
		Reputation:         reputation.DefaultConfig(),
		Pairing:            PairingConfig{Kind: PairingRandom},
		Demand:             DemandConfig{Kind: DemandStatic},
	}
}

func handshake() Config {
	cfg := base("handshake", "one fair provider, one fair seeker wanting 10 GPU-hours", 1)
	cfg.TurnBudget = 10
	cfg.Agents = []AgentConfig{
		{ID: "seller", Strategy: "fair", Holdings: map[string]float64{"gpu": 100}, Wealth: 5},
		{ID: "buyer", Strategy: "fair", Wealth: 20, Needs: map[string]float64{"gpu": 10}},
	}
	return cfg
}

func scarcity() Config {
	cfg := base("scarcity", "three providers with mixed strategies, two seekers under rush-hour demand", 100)
	cfg.Demand = DemandConfig{Kind: DemandNoise, Amplitude: 0.5, Frequency: 0.15}
	need := map[string]float64{"gpu": 8, "cpu": 4}
	cfg.Agents = []AgentConfig{
		{
			ID: "greedy_provider", Strategy: "greedy", Params: map[string]float64{"factor": 0.6},
			Holdings: map[string]float64{"gpu": 100, "cpu": 50}, Wealth: 10,
		},
		{
			ID: "fair_provider", Strategy: "fair",
			Holdings: map[string]float64{"gpu": 80, "cpu": 80}, Wealth: 15,
		},
		{
			ID: "patient_provider", Strategy: "patient", Params: map[string]float64{"patience": 0.9},
			Holdings: map[string]float64{"gpu": 120, "cpu": 30}, Wealth: 5,
		},
		{
			ID: "adaptive_seeker", Strategy: "adaptive", Params: map[string]float64{"initial_belief": 1},
			Holdings: map[string]float64{"gpu": 5}, Wealth: 100, Needs: need,
		},
		{
			ID: "greedy_seeker", Strategy: "greedy", Params: map[string]float64{"factor": 0.5},
			Holdings: map[string]float64{"gpu": 5}, Wealth: 80, Needs: need,
		},
	}
	return cfg
}

// trust is five reputation-aware honest agents and one agent that defaults
// on agreed deals with probability cheat. Three honest agents seek each
// round; the cheater joins half the time.
func trust(name string, cheat float64, rounds int) Config {
	cfg := base(name, fmt.Sprintf("five reputation-aware honest agents and one cheater (rate %v)", cheat), rounds)
	honest := []string{"honest_alice", "honest_bob", "honest_carol", "honest_dave", "seeker_eve"}
	cfg.Demand = DemandConfig{
		Kind:       DemandRotating,
		Pool:       honest,
		Count:      3,
		Need:       map[string]float64{"gpu": 5},
		Occasional: []OccasionalSeeker{{Agent: "cheater_mallory", Probability: 0.5}},
	}
	cfg.Agents = []AgentConfig{
		{ID: "honest_alice", Strategy: "aware-fair", Holdings: map[string]float64{"gpu": 100}, Wealth: 50},
		{ID: "honest_bob", Strategy: "aware-adaptive", Holdings: map[string]float64{"gpu": 80}, Wealth: 60},
		{ID: "honest_carol", Strategy: "aware-fair", Holdings: map[string]float64{"gpu": 90}, Wealth: 45},
		{ID: "honest_dave", Strategy: "aware-adaptive", Holdings: map[string]float64{"gpu": 70}, Wealth: 70},
		{ID: "seeker_eve", Strategy: "aware-fair", Holdings: map[string]float64{"gpu": 5}, Wealth: 100},
		{ID: "cheater_mallory", Strategy: "fair", Holdings: map[string]float64{"gpu": 100}, Wealth: 50, CheatRate: cheat},
	}
	return cfg
}
