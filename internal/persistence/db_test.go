package persistence

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/resource"
	"github.com/talgya/compute-market/internal/scenario"
	"github.com/talgya/compute-market/internal/strategy"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func handshake(t *testing.T) *engine.Simulator {
	t.Helper()
	fair, err := strategy.New("fair", nil)
	require.NoError(t, err)
	fair2, err := strategy.New("fair", nil)
	require.NoError(t, err)

	seller, err := agents.New(agents.Config{
		ID: "A", Holdings: map[resource.Type]float64{resource.GPU: 100},
		Reputation: 0.5, Strategy: fair,
	})
	require.NoError(t, err)
	buyer, err := agents.New(agents.Config{
		ID: "B", Wealth: 100, Reputation: 0.5, Strategy: fair2,
		Needs: map[resource.Type]float64{resource.GPU: 10},
	})
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	cfg.Seed = 7
	cfg.ReportEvery = 0
	sim, err := engine.New([]*agents.Agent{seller, buyer}, cfg)
	require.NoError(t, err)
	return sim
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	db := openTemp(t)
	sim := handshake(t)
	run, err := db.BeginRun(sim.RunID(), "handshake", sim.Config().Seed, len(sim.Agents()))
	require.NoError(t, err)
	sim.SetRecorder(run)

	_, err = sim.Run(3)
	require.NoError(t, err)

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sim.RunID().String(), runs[0].ID)
	assert.Equal(t, "handshake", runs[0].Name)
	assert.Equal(t, int64(7), runs[0].Seed)

	got, err := db.Run(run.ID())
	require.NoError(t, err)
	assert.Equal(t, runs[0], got)
	_, err = db.Run("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	rounds, err := db.Rounds(run.ID())
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for i, r := range rounds {
		assert.Equal(t, i+1, r.Round)
		assert.Equal(t, sim.History()[i].Completed, r.Completed)
		assert.InDelta(t, sim.History()[i].Volume[resource.GPU], r.GPUVolume, 1e-9)
	}

	deals, err := db.Deals(run.ID())
	require.NoError(t, err)
	b, _ := sim.Agent("B")
	require.Len(t, deals, len(b.Deals))
	for i, d := range deals {
		assert.Equal(t, b.Deals[i].ID.String(), d.ID)
		assert.Equal(t, "gpu", d.Resource)
		assert.Equal(t, b.Deals[i].UnitPrice.String(), d.UnitPrice)
		assert.Equal(t, "completed", d.Status)
	}

	scores, err := db.ReputationSeries(run.ID(), "A")
	require.NoError(t, err)
	assert.InDeltaSlice(t, sim.ReputationSeries("A"), scores, 1e-12)
}

func TestRecordingRunAgainReplacesIt(t *testing.T) {
	t.Parallel()

	db := openTemp(t)
	for i := 0; i < 2; i++ {
		sim := handshake(t)
		run, err := db.BeginRun(sim.RunID(), "handshake", sim.Config().Seed, 2)
		require.NoError(t, err)
		sim.SetRecorder(run)
		_, err = sim.Run(2)
		require.NoError(t, err)
	}

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	rounds, err := db.Rounds(runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, rounds, 2)
}

func TestRecordingSameRoundTwiceFails(t *testing.T) {
	t.Parallel()

	db := openTemp(t)
	sim := handshake(t)
	run, err := db.BeginRun(sim.RunID(), "handshake", 7, 2)
	require.NoError(t, err)

	res, err := sim.Step()
	require.NoError(t, err)
	require.NoError(t, run.RecordRound(res))
	assert.Error(t, run.RecordRound(res))

	// The failed transaction left nothing behind.
	deals, err := db.Deals(run.ID())
	require.NoError(t, err)
	assert.Len(t, deals, len(res.Deals))
}

func TestMeta(t *testing.T) {
	t.Parallel()

	db := openTemp(t)
	_, err := db.GetMeta("last_run")
	assert.Error(t, err)

	require.NoError(t, db.SaveMeta("last_run", "abc"))
	require.NoError(t, db.SaveMeta("last_run", "def"))
	v, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestScenariosSharingSeedKeepSeparateRuns(t *testing.T) {
	t.Parallel()

	db := openTemp(t)
	names := []string{"trust", "subtle-trust"}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		cfg, err := scenario.Builtin(name)
		require.NoError(t, err)
		sim, err := scenario.Build(cfg)
		require.NoError(t, err)
		run, err := db.BeginRun(sim.RunID(), cfg.Name, sim.Config().Seed, len(sim.Agents()))
		require.NoError(t, err)
		sim.SetRecorder(run)
		_, err = sim.Run(5)
		require.NoError(t, err)
		ids = append(ids, run.ID())
	}
	require.NotEqual(t, ids[0], ids[1])

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	got := []string{runs[0].Name, runs[1].Name}
	assert.ElementsMatch(t, names, got)
	for _, id := range ids {
		rounds, err := db.Rounds(id)
		require.NoError(t, err)
		assert.Len(t, rounds, 5)
	}
}
