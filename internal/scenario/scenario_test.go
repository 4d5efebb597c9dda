package scenario

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/reputation"
	"github.com/talgya/compute-market/internal/resource"
)

func writeScenario(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestBuiltinsBuild(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"handshake", "scarcity", "subtle-trust", "trust"}, Names())
	for _, name := range Names() {
		cfg, err := Builtin(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, cfg.Name)

		sim, err := Build(cfg)
		require.NoError(t, err, name)
		assert.Len(t, sim.Agents(), len(cfg.Agents), name)
		assert.Equal(t, cfg.Seed, sim.Config().Seed, name)
	}

	_, err := Builtin("nope")
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestBuiltinReturnsFreshCopy(t *testing.T) {
	t.Parallel()

	a, err := Builtin("trust")
	require.NoError(t, err)
	a.Agents[0].Holdings["gpu"] = 1

	b, err := Builtin("trust")
	require.NoError(t, err)
	assert.InDelta(t, 100, b.Agents[0].Holdings["gpu"], 0)
}

func TestEncodeLoadRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		cfg, err := Builtin(name)
		require.NoError(t, err)

		data, err := Encode(cfg)
		require.NoError(t, err, name)
		loaded, err := Load(writeScenario(t, name+".toml", data))
		require.NoError(t, err, name)
		assert.Equal(t, cfg, loaded, name)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, "minimal.toml", []byte(`
[[agents]]
id = "seller"
strategy = "fair"
holdings = { gpu = 50 }

[[agents]]
id = "buyer"
strategy = "aware-adaptive"
wealth = 30
reputation = 0.8
needs = { gpu = 5 }
params = { learning_rate = 0.3, threshold = 0.4 }
`))
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", cfg.Name)
	assert.Equal(t, 100, cfg.Rounds)
	assert.Equal(t, 10, cfg.TurnBudget)
	assert.InDelta(t, engine.DefaultIsolationThreshold, cfg.IsolationThreshold, 0)
	assert.Equal(t, reputation.DefaultConfig(), cfg.Reputation)
	assert.Equal(t, PairingRandom, cfg.Pairing.Kind)
	assert.Equal(t, DemandStatic, cfg.Demand.Kind)
	require.Len(t, cfg.Agents, 2)
	assert.Nil(t, cfg.Agents[0].Reputation)
	require.NotNil(t, cfg.Agents[1].Reputation)
	assert.InDelta(t, 0.8, *cfg.Agents[1].Reputation, 0)

	sim, err := Build(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sim.Reputation().Score("seller"), 0)
	assert.InDelta(t, 0.8, sim.Reputation().Score("buyer"), 0)
	buyer, ok := sim.Agent("buyer")
	require.True(t, ok)
	assert.Equal(t, "aware-adaptive", buyer.Strategy.Name())
	assert.InDelta(t, 5, buyer.Needs[resource.GPU], 0)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no rounds", func(c *Config) { c.Rounds = 0 }},
		{"negative budget", func(c *Config) { c.TurnBudget = -1 }},
		{"threshold above one", func(c *Config) { c.IsolationThreshold = 1.5 }},
		{"one agent", func(c *Config) { c.Agents = c.Agents[:1] }},
		{"duplicate id", func(c *Config) { c.Agents[1].ID = c.Agents[0].ID }},
		{"unknown pairing", func(c *Config) { c.Pairing.Kind = "auction" }},
		{"fixed without pairs", func(c *Config) { c.Pairing.Kind = PairingFixed }},
		{"fixed with stranger", func(c *Config) {
			c.Pairing = PairingConfig{Kind: PairingFixed, Pairs: []engine.Pair{{Seeker: "buyer", Provider: "ghost"}}}
		}},
		{"unknown demand", func(c *Config) { c.Demand.Kind = "seasonal" }},
		{"negative frequency", func(c *Config) { c.Demand = DemandConfig{Kind: DemandNoise, Amplitude: 1, Frequency: -0.1} }},
		{"rotating count too large", func(c *Config) {
			c.Demand = DemandConfig{Kind: DemandRotating, Pool: []string{"buyer"}, Count: 2}
		}},
		{"occasional probability", func(c *Config) {
			c.Demand = DemandConfig{Kind: DemandRotating, Occasional: []OccasionalSeeker{{Agent: "buyer", Probability: 2}}}
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := handshake()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidScenario)
			_, err := Build(cfg)
			assert.ErrorIs(t, err, ErrInvalidScenario)
		})
	}
}

func TestBuildRejectsBadAgents(t *testing.T) {
	t.Parallel()

	cfg := handshake()
	cfg.Agents[0].Strategy = "reckless"
	_, err := Build(cfg)
	assert.Error(t, err)

	cfg = handshake()
	cfg.Agents[0].Holdings = map[string]float64{"tpu": 3}
	_, err = Build(cfg)
	assert.ErrorIs(t, err, resource.ErrUnknownType)

	cfg = handshake()
	cfg.Agents[1].CheatRate = 2
	_, err = Build(cfg)
	assert.ErrorIs(t, err, agents.ErrInvalidConfig)
}

func TestHandshakeScenario(t *testing.T) {
	t.Parallel()

	cfg, err := Builtin("handshake")
	require.NoError(t, err)
	sim, err := Build(cfg)
	require.NoError(t, err)

	results, err := sim.Run(cfg.Rounds)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Completed)

	buyer, _ := sim.Agent("buyer")
	seller, _ := sim.Agent("seller")
	assert.InDelta(t, 10, buyer.Holdings.Float(resource.GPU), 1e-9)
	assert.InDelta(t, 90, seller.Holdings.Float(resource.GPU), 1e-9)
	assert.InDelta(t, 10, buyer.Wealth.InexactFloat64(), 1e-9)
	assert.InDelta(t, 15, seller.Wealth.InexactFloat64(), 1e-9)
}

func TestTrustScenarioIsolatesCheater(t *testing.T) {
	t.Parallel()

	cfg, err := Builtin("trust")
	require.NoError(t, err)
	sim, err := Build(cfg)
	require.NoError(t, err)

	results, err := sim.Run(cfg.Rounds)
	require.NoError(t, err)

	isolatedAt := 0
	for _, r := range results {
		if slices.Contains(r.Isolated, "cheater_mallory") {
			isolatedAt = r.Round
			break
		}
	}
	require.NotZero(t, isolatedAt, "cheater never isolated")
	assert.LessOrEqual(t, isolatedAt, 16)

	for _, r := range results[isolatedAt-1:] {
		for _, d := range r.Deals {
			assert.NotEqual(t, "cheater_mallory", d.Buyer, "round %d", r.Round)
			assert.NotEqual(t, "cheater_mallory", d.Seller, "round %d", r.Round)
		}
	}
	assert.Contains(t, sim.Untrusted(), "cheater_mallory")
	assert.Less(t, sim.Reputation().Score("cheater_mallory"), 0.3)
	for _, id := range []string{"honest_alice", "honest_bob", "honest_carol", "honest_dave", "seeker_eve"} {
		assert.NotContains(t, sim.Untrusted(), id)
	}
}

func TestSubtleCheaterStaysTrusted(t *testing.T) {
	t.Parallel()

	cfg, err := Builtin("subtle-trust")
	require.NoError(t, err)
	sim, err := Build(cfg)
	require.NoError(t, err)

	results, err := sim.Run(cfg.Rounds)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Isolated, "cheater_mallory", "round %d", r.Round)
	}
	assert.Greater(t, sim.Reputation().Score("cheater_mallory"), 0.5)
}

func TestMatrix(t *testing.T) {
	t.Parallel()

	cells, err := Matrix(42)
	require.NoError(t, err)
	require.Len(t, cells, 25)

	byPair := make(map[[2]string]MatrixCell, len(cells))
	for _, c := range cells {
		byPair[[2]string{c.Buyer, c.Seller}] = c
		assert.Positive(t, c.Messages)
	}
	fair := byPair[[2]string{"fair", "fair"}]
	assert.True(t, fair.Agreed)
	assert.InDelta(t, 1.0, fair.Price, 1e-9)
	assert.False(t, byPair[[2]string{"greedy", "greedy"}].Agreed)
}

func TestTournamentRanksByNetWorth(t *testing.T) {
	t.Parallel()

	standings, err := Tournament(3)
	require.NoError(t, err)

	cfg := tournament()
	require.Len(t, standings, len(cfg.Agents))
	seen := make(map[string]bool)
	for i, s := range standings {
		seen[s.Agent] = true
		assert.LessOrEqual(t, s.Min, s.Mean, s.Agent)
		assert.LessOrEqual(t, s.Mean, s.Max, s.Agent)
		assert.NotEmpty(t, s.Strategy, s.Agent)
		if i > 0 {
			assert.GreaterOrEqual(t, standings[i-1].Mean, s.Mean)
		}
	}
	for _, a := range cfg.Agents {
		assert.True(t, seen[a.ID], a.ID)
	}

	again, err := Tournament(3)
	require.NoError(t, err)
	assert.Equal(t, standings, again)

	_, err = Tournament(0)
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestBuildHonoursZeroNeutral(t *testing.T) {
	t.Parallel()

	cfg := handshake()
	cfg.Reputation.Neutral = 0
	cfg.Reputation.DefaultTarget = -2
	sim, err := Build(cfg)
	require.NoError(t, err)
	assert.Zero(t, sim.Reputation().Score("seller"))
	assert.Zero(t, sim.Reputation().Score("buyer"))
}
