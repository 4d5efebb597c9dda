package reputation

// Record is one agent's reputation state.
type Record struct {
	score     float64
	peers     map[string]float64
	successes int
	defaults  int
}

func newRecord(initial float64) *Record {
	return &Record{score: initial, peers: make(map[string]float64)}
}

// Score is the public score.
func (r Record) Score() float64 { return r.score }

// Successes counts completed deals observed about this agent.
func (r Record) Successes() int { return r.successes }

// Defaults counts defaults observed about this agent.
func (r Record) Defaults() int { return r.defaults }

// Peers returns a copy of this agent's private view of its counterparties.
func (r Record) Peers() map[string]float64 {
	out := make(map[string]float64, len(r.peers))
	for id, s := range r.peers {
		out[id] = s
	}
	return out
}

func (r *Record) clone() Record {
	return Record{score: r.score, peers: r.Peers(), successes: r.successes, defaults: r.defaults}
}
