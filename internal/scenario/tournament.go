package scenario

import (
	"fmt"
	"math"
	"sort"
)

// TournamentRounds is how long each tournament trial runs.
const TournamentRounds = 50

// Standing is one agent's net worth across tournament trials.
type Standing struct {
	Agent    string
	Strategy string
	Mean     float64
	Min      float64
	Max      float64
}

// tournament is the scarcity population under steady demand: both seekers
// want 5 GPU-hours and 3 CPU-hours every round.
func tournament() Config {
	cfg := scarcity()
	cfg.Name = "tournament"
	cfg.Description = "scarcity population under steady demand, ranked by net worth"
	cfg.Rounds = TournamentRounds
	cfg.Demand = DemandConfig{Kind: DemandStatic}
	for i := range cfg.Agents {
		if len(cfg.Agents[i].Needs) > 0 {
			cfg.Agents[i].Needs = map[string]float64{"gpu": 5, "cpu": 3}
		}
	}
	return cfg
}

// Tournament runs the scarcity population once per trial, seeding trial n
// with n, and ranks agents by mean final net worth, best first.
func Tournament(trials int) ([]Standing, error) {
	if trials < 1 {
		return nil, fmt.Errorf("%w: %d tournament trials", ErrInvalidScenario, trials)
	}

	byAgent := make(map[string]*Standing)
	for trial := 1; trial <= trials; trial++ {
		cfg := tournament()
		cfg.Seed = int64(trial)
		sim, err := Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}
		if _, err := sim.Run(cfg.Rounds); err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}

		for _, a := range sim.Agents() {
			worth := a.NetWorth().InexactFloat64()
			s, ok := byAgent[a.ID]
			if !ok {
				s = &Standing{Agent: a.ID, Strategy: a.Strategy.Name(), Min: math.Inf(1), Max: math.Inf(-1)}
				byAgent[a.ID] = s
			}
			s.Mean += worth
			s.Min = min(s.Min, worth)
			s.Max = max(s.Max, worth)
		}
	}

	standings := make([]Standing, 0, len(byAgent))
	for _, s := range byAgent {
		s.Mean /= float64(trials)
		standings = append(standings, *s)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Mean != standings[j].Mean {
			return standings[i].Mean > standings[j].Mean
		}
		return standings[i].Agent < standings[j].Agent
	})
	return standings, nil
}
