// Package reputation scores agents from the outcomes of their deals.
//
// Every agent has a public score and a private view of each counterparty it
// has dealt with. Both follow the same exponential update:
//
//	score ← score + α·(target − score)
//
// where target is SuccessTarget after a completed deal and DefaultTarget after
// a default. DefaultTarget sits further from the neutral score than
// SuccessTarget so a default costs more than a success earns; an agent that
// defaults rarely enough can still hold or raise its score.
package reputation

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidConfig = errors.New("invalid reputation config")
	ErrUnknownAgent  = errors.New("unknown agent")
)

// Outcome is what an observer saw a counterparty do.
type Outcome uint8

const (
	Success Outcome = iota
	Default
)

func (o Outcome) String() string {
	if o == Default {
		return "default"
	}
	return "success"
}

// Config holds the update weights.
type Config struct {
	Alpha         float64 `mapstructure:"alpha" toml:"alpha"`
	SuccessTarget float64 `mapstructure:"success_target" toml:"success_target"`
	DefaultTarget float64 `mapstructure:"default_target" toml:"default_target"`
	Neutral       float64 `mapstructure:"neutral" toml:"neutral"` // initial score when none is given
}

// DefaultConfig returns the standard weights.
func DefaultConfig() Config {
	return Config{
		Alpha:         0.05,
		SuccessTarget: 1,
		DefaultTarget: -1,
		Neutral:       0.5,
	}
}

// Validate checks the weights.
func (c Config) Validate() error {
	switch {
	case !(c.Alpha > 0 && c.Alpha <= 1):
		return fmt.Errorf("%w: alpha %v must be in (0, 1]", ErrInvalidConfig, c.Alpha)
	case math.IsNaN(c.SuccessTarget) || math.IsNaN(c.DefaultTarget) || math.IsInf(c.SuccessTarget, 0) || math.IsInf(c.DefaultTarget, 0):
		return fmt.Errorf("%w: targets must be finite", ErrInvalidConfig)
	case c.DefaultTarget >= c.SuccessTarget:
		return fmt.Errorf("%w: default target %v must be below success target %v", ErrInvalidConfig, c.DefaultTarget, c.SuccessTarget)
	case math.IsNaN(c.Neutral) || math.IsInf(c.Neutral, 0):
		return fmt.Errorf("%w: neutral score must be finite", ErrInvalidConfig)
	case c.DefaultTarget >= 0:
		return fmt.Errorf("%w: default target %v must be negative", ErrInvalidConfig, c.DefaultTarget)
	case c.Neutral-c.DefaultTarget <= c.SuccessTarget-c.Neutral:
		return fmt.Errorf("%w: default target %v must sit further from neutral %v than success target %v",
			ErrInvalidConfig, c.DefaultTarget, c.Neutral, c.SuccessTarget)
	}
	return nil
}

// Next applies one update step to score.
func (c Config) Next(score float64, o Outcome) float64 {
	target := c.SuccessTarget
	if o == Default {
		target = c.DefaultTarget
	}
	return score + c.Alpha*(target-score)
}

// Model holds the reputation record of every registered agent.
// Scores are mutated only through Observe. Concurrent reads are safe as long
// as no Observe or Register runs at the same time.
type Model struct {
	cfg     Config
	records map[string]*Record
}

// NewModel validates cfg and returns an empty model.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, records: make(map[string]*Record)}, nil
}

// Config returns the model's weights.
func (m *Model) Config() Config {
	return m.cfg
}

// Register adds an agent with its initial public score.
func (m *Model) Register(id string, initial float64) error {
	if math.IsNaN(initial) || math.IsInf(initial, 0) {
		return fmt.Errorf("%w: initial score for %s must be finite", ErrInvalidConfig, id)
	}
	if _, ok := m.records[id]; ok {
		return fmt.Errorf("register %s: already registered", id)
	}
	m.records[id] = newRecord(initial)
	return nil
}

// Observe records that observer saw counterparty succeed or default. The
// counterparty's public score and the observer's private view of it both move.
func (m *Model) Observe(observer, counterparty string, o Outcome) error {
	subject, ok := m.records[counterparty]
	if !ok {
		return fmt.Errorf("observe: %w: %s", ErrUnknownAgent, counterparty)
	}
	watcher, ok := m.records[observer]
	if !ok {
		return fmt.Errorf("observe: %w: %s", ErrUnknownAgent, observer)
	}

	subject.score = m.cfg.Next(subject.score, o)
	if o == Default {
		subject.defaults++
	} else {
		subject.successes++
	}

	peer, known := watcher.peers[counterparty]
	if !known {
		peer = m.cfg.Neutral
	}
	watcher.peers[counterparty] = m.cfg.Next(peer, o)
	return nil
}

// Score returns an agent's public score, or the neutral score if unknown.
func (m *Model) Score(id string) float64 {
	if r, ok := m.records[id]; ok {
		return r.score
	}
	return m.cfg.Neutral
}

// PeerScore returns observer's private view of subject and whether observer
// has ever observed subject.
func (m *Model) PeerScore(observer, subject string) (float64, bool) {
	r, ok := m.records[observer]
	if !ok {
		return m.cfg.Neutral, false
	}
	s, ok := r.peers[subject]
	if !ok {
		return m.cfg.Neutral, false
	}
	return s, true
}

// Record returns a copy of an agent's record.
func (m *Model) Record(id string) (Record, bool) {
	r, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Snapshot returns every agent's public score.
func (m *Model) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(m.records))
	for id, r := range m.records {
		out[id] = r.score
	}
	return out
}

// Below returns the agents whose public score is under threshold, sorted.
func (m *Model) Below(threshold float64) []string {
	var out []string
	for id, r := range m.records {
		if r.score < threshold {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
