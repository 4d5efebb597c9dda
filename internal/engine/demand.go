// Demand sources decide what each agent wants to acquire in a round.
package engine

import (
	"math"
	"math/rand"
	"slices"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/entropy"
)

// Demand produces the per-round needs of the agents. Agents missing from the
// result need nothing that round. rng is the simulator's demand stream.
type Demand interface {
	Round(round int, pool []*agents.Agent, rng *rand.Rand) map[string]agents.Needs
}

// StaticDemand gives every agent its configured needs each round.
type StaticDemand struct{}

func (StaticDemand) Round(_ int, pool []*agents.Agent, _ *rand.Rand) map[string]agents.Needs {
	out := make(map[string]agents.Needs, len(pool))
	for _, a := range pool {
		if !a.Needs.IsZero() {
			out[a.ID] = a.Needs
		}
	}
	return out
}

// NoiseDemand scales configured needs by a smooth "rush hour" factor
// 1 + Amplitude·noise(round·Frequency), so demand swells and ebbs across
// rounds instead of jumping.
type NoiseDemand struct {
	Amplitude float64 // 0 disables modulation; 1 lets demand double or vanish
	Frequency float64 // noise-space distance per round
	Octaves   int

	noise opensimplex.Noise
}

// NewNoiseDemand returns a NoiseDemand whose noise field is seeded from seed.
func NewNoiseDemand(seed int64, amplitude, frequency float64) *NoiseDemand {
	return &NoiseDemand{
		Amplitude: amplitude,
		Frequency: frequency,
		Octaves:   3,
		noise:     opensimplex.New(seed + 3),
	}
}

// Factor is the demand multiplier for the round, never negative.
func (d *NoiseDemand) Factor(round int) float64 {
	n := octaveNoise(d.noise, float64(round), 0, max(d.Octaves, 1), d.Frequency, 0.5)
	n = math.Max(-1, math.Min(1, n))
	return math.Max(0, 1+d.Amplitude*n)
}

func (d *NoiseDemand) Round(round int, pool []*agents.Agent, _ *rand.Rand) map[string]agents.Needs {
	f := d.Factor(round)
	out := make(map[string]agents.Needs, len(pool))
	for _, a := range pool {
		if n := a.Needs.Scale(f); !n.IsZero() {
			out[a.ID] = n
		}
	}
	return out
}

// octaveNoise sums octaves of noise for a rougher signal, normalised to
// roughly [-1, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// RotatingDemand picks Count agents from Pool each round to seek Need.
// Occasional agents additionally seek Need with their listed probability.
type RotatingDemand struct {
	Pool       []string
	Count      int
	Need       agents.Needs
	Occasional map[string]float64
}

func (d RotatingDemand) Round(_ int, _ []*agents.Agent, rng *rand.Rand) map[string]agents.Needs {
	out := make(map[string]agents.Needs, d.Count+len(d.Occasional))

	pool := slices.Clone(d.Pool)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	for _, id := range pool[:max(0, min(d.Count, len(pool)))] {
		out[id] = d.Need
	}

	// Map order is random; draw in sorted order to stay reproducible.
	ids := make([]string, 0, len(d.Occasional))
	for id := range d.Occasional {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if entropy.Chance(rng, d.Occasional[id]) {
			out[id] = d.Need
		}
	}
	return out
}
