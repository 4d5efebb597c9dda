// Package engine provides the round-based market simulator.
//
// Each round the simulator decides demand, pairs seekers with providers, runs
// every negotiation concurrently against snapshots taken before the phase,
// then settles agreed deals one at a time. The simulator is the sole owner of
// agents, the reputation model and the round counter.
package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/entropy"
	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/reputation"
)

// ErrInvalidConfig is returned for unusable simulator settings.
var ErrInvalidConfig = errors.New("invalid simulator config")

// DefaultIsolationThreshold matches the trust threshold reputation-aware
// strategies use, so the market stops scheduling an agent at the point its
// peers stop dealing with it.
const DefaultIsolationThreshold = 0.3

// Recorder receives every completed round. A recorder error aborts the run.
type Recorder interface {
	RecordRound(r RoundResult) error
}

// Config holds simulator settings.
type Config struct {
	Name               string // scenario name; part of the run ID
	Seed               int64  // 0 = random
	TurnBudget         int
	IsolationThreshold float64 // 0 disables isolation
	Parallelism        int     // concurrent sessions; 0 = GOMAXPROCS
	Reputation         reputation.Config
	Demand             Demand
	Pairing            Pairing
	Recorder           Recorder
	ReportEvery        int // rounds between period reports; 0 disables
}

// DefaultConfig returns a reasonable starting configuration.
func DefaultConfig() Config {
	return Config{
		TurnBudget:         protocol.DefaultTurnBudget,
		IsolationThreshold: DefaultIsolationThreshold,
		Reputation:         reputation.DefaultConfig(),
		Demand:             StaticDemand{},
		Pairing:            RandomMatching{},
		ReportEvery:        10,
	}
}

// Simulator runs the market.
type Simulator struct {
	cfg     Config
	runID   uuid.UUID
	agents  []*agents.Agent
	index   map[string]*agents.Agent
	rep     *reputation.Model
	round   int
	history []RoundResult

	untrusted mapset.Set[string]

	pairingRNG   *rand.Rand
	defectionRNG *rand.Rand
	demandRNG    *rand.Rand
}

// New validates cfg, registers every agent with a fresh reputation model and
// returns a simulator at round 0.
func New(population []*agents.Agent, cfg Config) (*Simulator, error) {
	switch {
	case len(population) < 2:
		return nil, fmt.Errorf("%w: need at least two agents, got %d", ErrInvalidConfig, len(population))
	case cfg.TurnBudget < 0:
		return nil, fmt.Errorf("%w: turn budget %d", ErrInvalidConfig, cfg.TurnBudget)
	case math.IsNaN(cfg.IsolationThreshold) || math.IsInf(cfg.IsolationThreshold, 0):
		return nil, fmt.Errorf("%w: isolation threshold %v", ErrInvalidConfig, cfg.IsolationThreshold)
	case cfg.Parallelism < 0:
		return nil, fmt.Errorf("%w: parallelism %d", ErrInvalidConfig, cfg.Parallelism)
	case cfg.ReportEvery < 0:
		return nil, fmt.Errorf("%w: report period %d", ErrInvalidConfig, cfg.ReportEvery)
	}
	if cfg.TurnBudget == 0 {
		cfg.TurnBudget = protocol.DefaultTurnBudget
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.Demand == nil {
		cfg.Demand = StaticDemand{}
	}
	if cfg.Pairing == nil {
		cfg.Pairing = RandomMatching{}
	}
	if cfg.Reputation == (reputation.Config{}) {
		cfg.Reputation = reputation.DefaultConfig()
	}

	rep, err := reputation.NewModel(cfg.Reputation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	index := make(map[string]*agents.Agent, len(population))
	for _, a := range population {
		if a == nil {
			return nil, fmt.Errorf("%w: nil agent", ErrInvalidConfig)
		}
		if _, dup := index[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate agent id %q", ErrInvalidConfig, a.ID)
		}
		index[a.ID] = a
		if err := rep.Register(a.ID, a.InitialReputation); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	src := entropy.NewSource(cfg.Seed)
	cfg.Seed = src.Seed()

	return &Simulator{
		cfg:          cfg,
		runID:        runID(cfg.Name, cfg.Seed, population),
		agents:       population,
		index:        index,
		rep:          rep,
		untrusted:    mapset.NewThreadUnsafeSet[string](),
		pairingRNG:   src.Rand(entropy.StreamPairing),
		defectionRNG: src.Rand(entropy.StreamDefection),
		demandRNG:    src.Rand(entropy.StreamDemand),
	}, nil
}

// runID names a run by its scenario, seed and cast, so the same scenario and
// seed always map to the same run while different scenarios never collide.
func runID(name string, seed int64, population []*agents.Agent) uuid.UUID {
	cast := make([]string, 0, len(population))
	for _, a := range population {
		cast = append(cast, a.ID+":"+a.Strategy.Name())
	}
	slices.Sort(cast)
	key := fmt.Appendf(nil, "compute-market/run/%s/%d/%s", name, seed, strings.Join(cast, ","))
	return uuid.NewSHA1(uuid.NameSpaceOID, key)
}

// Config returns the effective configuration, with defaults and the chosen
// seed filled in.
func (s *Simulator) Config() Config {
	return s.cfg
}

// RunID identifies the run; it is derived from the seed.
func (s *Simulator) RunID() uuid.UUID {
	return s.runID
}

// Round returns the number of completed rounds.
func (s *Simulator) Round() int {
	return s.round
}

// Agents returns the population in configuration order.
func (s *Simulator) Agents() []*agents.Agent {
	return s.agents
}

// Agent looks up an agent by ID.
func (s *Simulator) Agent(id string) (*agents.Agent, bool) {
	a, ok := s.index[id]
	return a, ok
}

// Reputation returns the reputation model. Callers must not mutate it while
// the simulator runs.
func (s *Simulator) Reputation() *reputation.Model {
	return s.rep
}

// Untrusted returns the agents currently excluded from pairing, sorted.
func (s *Simulator) Untrusted() []string {
	out := s.untrusted.ToSlice()
	slices.Sort(out)
	return out
}

// SetRecorder attaches a recorder after construction, for recorders keyed by
// the run ID.
func (s *Simulator) SetRecorder(r Recorder) {
	s.cfg.Recorder = r
}
