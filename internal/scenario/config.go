// Package scenario describes market experiments as data: a population, a
// demand pattern, a pairing policy and simulator settings. Scenarios load from
// TOML files or come from the built-in set, and Build turns one into a ready
// simulator.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/reputation"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Pairing policies.
const (
	PairingRandom = "random"
	PairingAll    = "all"
	PairingFixed  = "fixed"
)

// DefaultNoiseFrequency is the noise-space step per round for noise demand.
const DefaultNoiseFrequency = 0.1

// Demand patterns.
const (
	DemandStatic   = "static"
	DemandNoise    = "noise"
	DemandRotating = "rotating"
)

// Config is a complete experiment.
type Config struct {
	Name               string            `mapstructure:"name" toml:"name"`
	Description        string            `mapstructure:"description" toml:"description,omitempty"`
	Seed               int64             `mapstructure:"seed" toml:"seed"` // 0 = random
	Rounds             int               `mapstructure:"rounds" toml:"rounds"`
	TurnBudget         int               `mapstructure:"turn_budget" toml:"turn_budget"`
	IsolationThreshold float64           `mapstructure:"isolation_threshold" toml:"isolation_threshold"` // 0 disables
	Reputation         reputation.Config `mapstructure:"reputation" toml:"reputation"`
	Pairing            PairingConfig     `mapstructure:"pairing" toml:"pairing"`
	Demand             DemandConfig      `mapstructure:"demand" toml:"demand"`
	Agents             []AgentConfig     `mapstructure:"agents" toml:"agents"`
}

// PairingConfig selects how seekers meet providers.
type PairingConfig struct {
	Kind  string        `mapstructure:"kind" toml:"kind"`
	Pairs []engine.Pair `mapstructure:"pairs" toml:"pairs,omitempty"`
}

// DemandConfig selects where per-round needs come from. Static and noise
// demand use each agent's own needs; rotating demand draws seekers from Pool.
type DemandConfig struct {
	Kind string `mapstructure:"kind" toml:"kind"`

	Amplitude float64 `mapstructure:"amplitude" toml:"amplitude,omitempty"`
	Frequency float64 `mapstructure:"frequency" toml:"frequency,omitempty"` // 0 = DefaultNoiseFrequency

	Pool       []string           `mapstructure:"pool" toml:"pool,omitempty"`
	Count      int                `mapstructure:"count" toml:"count,omitempty"`
	Need       map[string]float64 `mapstructure:"need" toml:"need,omitempty"`
	Occasional []OccasionalSeeker `mapstructure:"occasional" toml:"occasional,omitempty"`
}

// OccasionalSeeker joins rotating demand with the given probability each
// round.
type OccasionalSeeker struct {
	Agent       string  `mapstructure:"agent" toml:"agent"`
	Probability float64 `mapstructure:"probability" toml:"probability"`
}

// AgentConfig describes one participant. Resource maps are keyed by resource
// name ("gpu", "cpu", "memory").
type AgentConfig struct {
	ID         string             `mapstructure:"id" toml:"id"`
	Strategy   string             `mapstructure:"strategy" toml:"strategy"`
	Params     map[string]float64 `mapstructure:"params" toml:"params,omitempty"`
	Holdings   map[string]float64 `mapstructure:"holdings" toml:"holdings,omitempty"`
	Wealth     float64            `mapstructure:"wealth" toml:"wealth"`
	Reputation *float64           `mapstructure:"reputation" toml:"reputation,omitempty"` // nil = neutral
	CheatRate  float64            `mapstructure:"cheat_rate" toml:"cheat_rate,omitempty"`
	Needs      map[string]float64 `mapstructure:"needs" toml:"needs,omitempty"`
}

func setDefaults(v *viper.Viper) {
	rep := reputation.DefaultConfig()
	v.SetDefault("rounds", 100)
	v.SetDefault("turn_budget", protocol.DefaultTurnBudget)
	v.SetDefault("isolation_threshold", engine.DefaultIsolationThreshold)
	v.SetDefault("reputation.alpha", rep.Alpha)
	v.SetDefault("reputation.success_target", rep.SuccessTarget)
	v.SetDefault("reputation.default_target", rep.DefaultTarget)
	v.SetDefault("reputation.neutral", rep.Neutral)
	v.SetDefault("pairing.kind", PairingRandom)
	v.SetDefault("demand.kind", DemandStatic)
}

// Load reads a TOML scenario file. Omitted settings take the simulator
// defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode renders cfg as TOML that Load reads back.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// Validate checks the settings that do not need a built simulator. Agent,
// strategy and resource checks happen in Build.
func (c Config) Validate() error {
	switch {
	case c.Rounds <= 0:
		return fmt.Errorf("%w: rounds %d", ErrInvalidScenario, c.Rounds)
	case c.TurnBudget < 0:
		return fmt.Errorf("%w: turn budget %d", ErrInvalidScenario, c.TurnBudget)
	case math.IsNaN(c.IsolationThreshold) || c.IsolationThreshold < 0 || c.IsolationThreshold > 1:
		return fmt.Errorf("%w: isolation threshold %v", ErrInvalidScenario, c.IsolationThreshold)
	case len(c.Agents) < 2:
		return fmt.Errorf("%w: need at least two agents, got %d", ErrInvalidScenario, len(c.Agents))
	}

	ids := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent with empty id", ErrInvalidScenario)
		}
		if ids[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidScenario, a.ID)
		}
		ids[a.ID] = true
	}
	known := func(id string) error {
		if !ids[id] {
			return fmt.Errorf("%w: unknown agent %q", ErrInvalidScenario, id)
		}
		return nil
	}

	switch c.Pairing.Kind {
	case PairingRandom, PairingAll:
	case PairingFixed:
		if len(c.Pairing.Pairs) == 0 {
			return fmt.Errorf("%w: fixed pairing without pairs", ErrInvalidScenario)
		}
		for _, p := range c.Pairing.Pairs {
			if err := known(p.Seeker); err != nil {
				return err
			}
			if err := known(p.Provider); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: pairing %q", ErrInvalidScenario, c.Pairing.Kind)
	}

	switch d := c.Demand; d.Kind {
	case DemandStatic:
	case DemandNoise:
		if d.Amplitude < 0 || d.Frequency < 0 {
			return fmt.Errorf("%w: noise demand amplitude %v frequency %v", ErrInvalidScenario, d.Amplitude, d.Frequency)
		}
	case DemandRotating:
		if d.Count < 0 || d.Count > len(d.Pool) {
			return fmt.Errorf("%w: rotating demand picks %d of %d", ErrInvalidScenario, d.Count, len(d.Pool))
		}
		for _, id := range d.Pool {
			if err := known(id); err != nil {
				return err
			}
		}
		for _, o := range d.Occasional {
			if err := known(o.Agent); err != nil {
				return err
			}
			if o.Probability < 0 || o.Probability > 1 {
				return fmt.Errorf("%w: %s seeks with probability %v", ErrInvalidScenario, o.Agent, o.Probability)
			}
		}
	default:
		return fmt.Errorf("%w: demand %q", ErrInvalidScenario, d.Kind)
	}
	return nil
}
