package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/resource"
	"github.com/talgya/compute-market/internal/strategy"
)

type member struct {
	id       string
	strategy string
	params   strategy.Params
	gpu, cpu float64
	wealth   float64
	cheat    float64
	needGPU  float64
	needCPU  float64
}

func build(t *testing.T, members ...member) []*agents.Agent {
	t.Helper()
	out := make([]*agents.Agent, 0, len(members))
	for _, sp := range members {
		s, err := strategy.New(sp.strategy, sp.params)
		require.NoError(t, err)
		a, err := agents.New(agents.Config{
			ID:         sp.id,
			Holdings:   map[resource.Type]float64{resource.GPU: sp.gpu, resource.CPU: sp.cpu},
			Wealth:     sp.wealth,
			Reputation: 0.5,
			Strategy:   s,
			CheatRate:  sp.cheat,
			Needs:      map[resource.Type]float64{resource.GPU: sp.needGPU, resource.CPU: sp.needCPU},
		})
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func quiet() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.ReportEvery = 0
	return cfg
}

func newSim(t *testing.T, cfg Config, members ...member) *Simulator {
	t.Helper()
	sim, err := New(build(t, members...), cfg)
	require.NoError(t, err)
	return sim
}

func mustAgent(t *testing.T, sim *Simulator, id string) *agents.Agent {
	t.Helper()
	a, ok := sim.Agent(id)
	require.True(t, ok, id)
	return a
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return math.Sqrt(v / float64(len(xs)))
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	sim := newSim(t, quiet(),
		member{id: "A", strategy: "fair", gpu: 100},
		member{id: "B", strategy: "fair", wealth: 100, needGPU: 10},
	)
	results, err := sim.Run(1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 1, r.Negotiations)
	assert.Equal(t, 1, r.Accepted)
	require.Len(t, r.Deals, 1)
	d := r.Deals[0]
	assert.Equal(t, agents.StatusCompleted, d.Status)
	assert.Equal(t, "B", d.Buyer)
	assert.Equal(t, "A", d.Seller)

	// both sides accept within 15% of the 1.0 reference
	price := d.UnitPrice.InexactFloat64()
	assert.InDelta(t, 1.0, price, 0.15)

	a, b := mustAgent(t, sim, "A"), mustAgent(t, sim, "B")
	assert.InDelta(t, 90, a.Holdings.Float(resource.GPU), 1e-9)
	assert.InDelta(t, 10, b.Holdings.Float(resource.GPU), 1e-9)
	assert.True(t, a.Wealth.Equal(d.Total()))
	assert.True(t, b.Wealth.Equal(decimal.NewFromInt(100).Sub(d.Total())))
	assert.Greater(t, sim.Reputation().Score("A"), 0.5)
	assert.Greater(t, sim.Reputation().Score("B"), 0.5)
}

func TestMarketConservesResourcesAndMoney(t *testing.T) {
	t.Parallel()

	cfg := quiet()
	cfg.Pairing = AllPairs{}
	cfg.Demand = NewNoiseDemand(7, 0.8, 0.15)
	cfg.IsolationThreshold = 0
	sim := newSim(t, cfg,
		member{id: "greedy", strategy: "greedy", gpu: 100, cpu: 50, wealth: 10},
		member{id: "fair", strategy: "fair", gpu: 80, cpu: 80, wealth: 15},
		member{id: "patient", strategy: "patient", gpu: 120, cpu: 30, wealth: 5},
		member{id: "broker", strategy: "broker", gpu: 20, wealth: 40},
		member{id: "adaptive", strategy: "adaptive", gpu: 5, wealth: 100, needGPU: 8, needCPU: 4},
		member{id: "cheat", strategy: "aware-fair", gpu: 5, wealth: 30, cheat: 0.3, needGPU: 6},
		member{id: "poor", strategy: "fair", wealth: 2, needGPU: 20},
	)

	var totalGPU, totalCPU float64
	totalWealth := decimal.Zero
	for _, a := range sim.Agents() {
		totalGPU += a.Holdings.Float(resource.GPU)
		totalCPU += a.Holdings.Float(resource.CPU)
		totalWealth = totalWealth.Add(a.Wealth)
	}

	_, err := sim.Run(40)
	require.NoError(t, err)

	traded := 0
	for _, r := range sim.History() {
		traded += len(r.Deals)
		holdings := make([]resource.Holding, 0, len(r.Agents))
		wealth := decimal.Zero
		for _, st := range r.Agents {
			holdings = append(holdings, st.Holdings)
			wealth = wealth.Add(st.Wealth)
			assert.False(t, st.Wealth.IsNegative(), "round %d %s", r.Round, st.ID)
			for _, rt := range resource.Types {
				assert.False(t, st.Holdings.Get(rt).IsNegative(), "round %d %s %s", r.Round, st.ID, rt)
			}
		}
		sum := resource.Sum(holdings...)
		assert.InDelta(t, totalGPU, sum.Float(resource.GPU), 1e-9, "round %d", r.Round)
		assert.InDelta(t, totalCPU, sum.Float(resource.CPU), 1e-9, "round %d", r.Round)
		assert.True(t, totalWealth.Equal(wealth), "round %d: %s != %s", r.Round, wealth, totalWealth)
	}
	assert.Positive(t, traded)
}

func TestGreedyAgentsDeadlock(t *testing.T) {
	t.Parallel()

	sim := newSim(t, quiet(),
		member{id: "seller", strategy: "greedy", gpu: 100},
		member{id: "buyer", strategy: "greedy", wealth: 1000, needGPU: 10},
	)
	results, err := sim.Run(10)
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, 1, r.Negotiations)
		assert.Equal(t, 1, r.TimedOut)
		assert.Empty(t, r.Deals)
	}
	assert.Equal(t, make([]int, 10), sim.DealCountSeries())
	assert.Empty(t, sim.AveragePriceSeries(resource.GPU))
	assert.InDelta(t, 100, mustAgent(t, sim, "seller").Holdings.Float(resource.GPU), 0)
}

func TestAdaptiveAgentsConverge(t *testing.T) {
	t.Parallel()

	sim := newSim(t, quiet(),
		member{id: "seller", strategy: "adaptive", params: strategy.Params{"initial_belief": 1.3}, gpu: 1000},
		member{id: "buyer", strategy: "adaptive", params: strategy.Params{"initial_belief": 0.8}, wealth: 1000, needGPU: 1},
	)
	_, err := sim.Run(60)
	require.NoError(t, err)

	points := sim.AveragePriceSeries(resource.GPU)
	require.GreaterOrEqual(t, len(points), 30)
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}

	early, late := stddev(prices[:10]), stddev(prices[len(prices)-10:])
	assert.Less(t, late, 0.01)
	assert.LessOrEqual(t, late, early)

	final := prices[len(prices)-1]
	assert.Greater(t, final, 0.8)
	assert.Less(t, final, 1.3)
}

func TestCheaterIsIsolated(t *testing.T) {
	t.Parallel()

	cfg := quiet()
	cfg.Pairing = FixedPairs{Pairs: []Pair{
		{Seeker: "alice", Provider: "mallory"},
		{Seeker: "bob", Provider: "mallory"},
		{Seeker: "carol", Provider: "mallory"},
		{Seeker: "mallory", Provider: "alice"},
	}}
	sim := newSim(t, cfg,
		member{id: "alice", strategy: "aware-fair", gpu: 100, wealth: 100, needGPU: 5},
		member{id: "bob", strategy: "aware-adaptive", gpu: 80, wealth: 100, needGPU: 5},
		member{id: "carol", strategy: "aware-fair", gpu: 90, wealth: 100, needGPU: 5},
		member{id: "mallory", strategy: "fair", gpu: 100, wealth: 50, cheat: 1, needGPU: 5},
	)

	isolatedAt := 0
	for round := 1; round <= 15 && isolatedAt == 0; round++ {
		r, err := sim.Step()
		require.NoError(t, err)
		if len(r.Isolated) > 0 {
			assert.Equal(t, []string{"mallory"}, r.Isolated)
			isolatedAt = round
		}
	}
	require.NotZero(t, isolatedAt, "cheater never isolated")
	assert.Less(t, sim.Reputation().Score("mallory"), DefaultIsolationThreshold)
	assert.Equal(t, []string{"mallory"}, sim.Untrusted())

	// isolated agents are never scheduled again
	_, err := sim.Run(5)
	require.NoError(t, err)
	for _, r := range sim.History()[isolatedAt-1:] {
		for _, out := range r.Outcomes {
			assert.NotEqual(t, "mallory", out.Seeker)
			assert.NotEqual(t, "mallory", out.Provider)
		}
	}

	for _, id := range []string{"alice", "bob", "carol"} {
		assert.GreaterOrEqual(t, sim.Reputation().Score(id), 0.5, id)
	}
}

func TestSubtleCheaterKeepsReputation(t *testing.T) {
	t.Parallel()

	cfg := quiet()
	cfg.Pairing = FixedPairs{Pairs: []Pair{
		{Seeker: "alice", Provider: "mallory"},
		{Seeker: "bob", Provider: "mallory"},
		{Seeker: "carol", Provider: "mallory"},
	}}
	sim := newSim(t, cfg,
		member{id: "alice", strategy: "fair", wealth: 1000, needGPU: 5},
		member{id: "bob", strategy: "fair", wealth: 1000, needGPU: 5},
		member{id: "carol", strategy: "fair", wealth: 1000, needGPU: 5},
		member{id: "mallory", strategy: "fair", gpu: 2000, cheat: 0.05},
	)
	_, err := sim.Run(100)
	require.NoError(t, err)

	defaults := 0
	for _, r := range sim.History() {
		defaults += r.Defaults[agents.CauseDishonest]
	}
	assert.Positive(t, defaults)
	assert.Empty(t, sim.Untrusted())

	series := sim.ReputationSeries("mallory")
	require.Len(t, series, 100)
	assert.GreaterOrEqual(t, series[len(series)-1], 0.5)
}

func TestDuplicateSettlementIsFatal(t *testing.T) {
	t.Parallel()

	sim := newSim(t, quiet(),
		member{id: "A", strategy: "fair", gpu: 100},
		member{id: "B", strategy: "fair", wealth: 100, needGPU: 1},
	)
	out := protocol.Outcome{
		Session:  uuid.NewSHA1(sim.RunID(), []byte("replayed")),
		Round:    1,
		Seeker:   "B",
		Provider: "A",
		Resource: resource.GPU,
		State:    protocol.StateAccept,
		Terms:    protocol.Terms{Quantity: 1, UnitPrice: 1},
	}

	var res RoundResult
	err := sim.commit(&res, []protocol.Outcome{out, out})
	require.ErrorIs(t, err, agents.ErrDuplicateSettlement)
	assert.InDelta(t, 99, mustAgent(t, sim, "A").Holdings.Float(resource.GPU), 1e-12)
	assert.Len(t, res.Deals, 1)
}

func TestSameSeedSameRun(t *testing.T) {
	t.Parallel()

	run := func() *Simulator {
		cfg := quiet()
		cfg.Demand = RotatingDemand{
			Pool:       []string{"a", "b", "c", "d"},
			Count:      2,
			Need:       agents.Needs{resource.GPU: 5},
			Occasional: map[string]float64{"m": 0.5},
		}
		sim := newSim(t, cfg,
			member{id: "a", strategy: "aware-fair", gpu: 100, wealth: 50},
			member{id: "b", strategy: "aware-adaptive", gpu: 80, wealth: 60},
			member{id: "c", strategy: "patient", gpu: 90, wealth: 45},
			member{id: "d", strategy: "greedy", gpu: 70, wealth: 70},
			member{id: "m", strategy: "fair", gpu: 100, wealth: 50, cheat: 0.3},
		)
		_, err := sim.Run(25)
		require.NoError(t, err)
		return sim
	}

	first, second := run(), run()
	require.Equal(t, first.RunID(), second.RunID())
	h1, h2 := first.History(), second.History()
	require.Len(t, h2, len(h1))
	for i := range h1 {
		require.Len(t, h2[i].Deals, len(h1[i].Deals), "round %d", i+1)
		for j := range h1[i].Deals {
			d1, d2 := h1[i].Deals[j], h2[i].Deals[j]
			assert.Equal(t, d1.ID, d2.ID)
			assert.Equal(t, d1.Status, d2.Status)
			assert.True(t, d1.UnitPrice.Equal(d2.UnitPrice))
		}
	}
	for _, id := range []string{"a", "b", "c", "d", "m"} {
		assert.Equal(t, first.WealthSeries(id), second.WealthSeries(id), id)
	}
}

type failingRecorder struct{ calls int }

var errDiskFull = errors.New("disk full")

func (f *failingRecorder) RecordRound(RoundResult) error {
	f.calls++
	return errDiskFull
}

func TestRecorderFailureAbortsRun(t *testing.T) {
	t.Parallel()

	rec := &failingRecorder{}
	cfg := quiet()
	cfg.Recorder = rec
	sim := newSim(t, cfg,
		member{id: "A", strategy: "fair", gpu: 100},
		member{id: "B", strategy: "fair", wealth: 100, needGPU: 1},
	)
	results, err := sim.Run(5)
	require.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, results)
	assert.Equal(t, 1, rec.calls)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	pair := func() []*agents.Agent {
		return build(t,
			member{id: "A", strategy: "fair", gpu: 1},
			member{id: "B", strategy: "fair", wealth: 1},
		)
	}

	_, err := New(pair()[:1], quiet())
	require.ErrorIs(t, err, ErrInvalidConfig)

	dup := pair()
	dup[1].ID = "A"
	_, err = New(dup, quiet())
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg := quiet()
	cfg.TurnBudget = -1
	_, err = New(pair(), cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = quiet()
	cfg.Reputation.Alpha = 0
	_, err = New(pair(), cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	sim, err := New(pair(), Config{Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultTurnBudget, sim.Config().TurnBudget)
	assert.Positive(t, sim.Config().Parallelism)
}

func TestRunIDTracksScenarioIdentity(t *testing.T) {
	t.Parallel()

	id := func(name string, members ...member) uuid.UUID {
		cfg := quiet()
		cfg.Name = name
		return newSim(t, cfg, members...).RunID()
	}
	a := member{id: "A", strategy: "fair", gpu: 100}
	b := member{id: "B", strategy: "fair", wealth: 100, needGPU: 10}

	base := id("handshake", a, b)
	assert.Equal(t, base, id("handshake", b, a), "agent order")
	assert.NotEqual(t, base, id("other", a, b), "scenario name")

	greedy := b
	greedy.strategy = "greedy"
	assert.NotEqual(t, base, id("handshake", a, greedy), "strategy")

	cfg := quiet()
	cfg.Name = "handshake"
	cfg.Seed = 43
	assert.NotEqual(t, base, newSim(t, cfg, a, b).RunID(), "seed")
}

func TestSharedProviderRunsOutMidRound(t *testing.T) {
	t.Parallel()

	cfg := quiet()
	cfg.Pairing = AllPairs{}
	sim := newSim(t, cfg,
		member{id: "p", strategy: "fair", gpu: 10},
		member{id: "s1", strategy: "fair", wealth: 100, needGPU: 8},
		member{id: "s2", strategy: "fair", wealth: 100, needGPU: 8},
	)

	res, err := sim.Step()
	require.NoError(t, err)
	require.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Defaulted)
	assert.Equal(t, 1, res.Defaults[agents.CauseInsufficientSupply])

	require.Len(t, res.Deals, 2)
	short := res.Deals[1]
	assert.Equal(t, "p", short.Defaulter)
	assert.Equal(t, agents.CauseInsufficientSupply, short.Cause)

	p := mustAgent(t, sim, "p")
	assert.InDelta(t, 2, p.Holdings.Float(resource.GPU), 1e-9)
	total := p.Holdings.Float(resource.GPU)
	for _, id := range []string{"s1", "s2"} {
		total += mustAgent(t, sim, id).Holdings.Float(resource.GPU)
	}
	assert.InDelta(t, 10, total, 1e-9)
}
