package engine

import (
	"github.com/shopspring/decimal"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/resource"
)

// RoundResult is everything observable about one round.
type RoundResult struct {
	Round int `json:"round"`

	Negotiations int `json:"negotiations"`
	Accepted     int `json:"accepted"`
	Rejected     int `json:"rejected"`
	TimedOut     int `json:"timed_out"`
	Violations   int `json:"violations"`

	// Deals holds every settled deal in settlement order.
	Deals     []agents.Deal        `json:"deals"`
	Completed int                  `json:"completed"`
	Defaulted int                  `json:"defaulted"`
	Defaults  map[agents.Cause]int `json:"defaults,omitempty"`

	// Volume and AvgPrice cover completed deals only.
	Volume   [resource.NumTypes]float64 `json:"volume"`
	AvgPrice [resource.NumTypes]float64 `json:"avg_price"`

	Isolated []string           `json:"isolated,omitempty"`
	Agents   []AgentState       `json:"agents"`
	Outcomes []protocol.Outcome `json:"-"`
}

// AgentState is an agent's ledger and standing at the end of a round.
type AgentState struct {
	ID         string           `json:"id"`
	Strategy   string           `json:"strategy"`
	Wealth     decimal.Decimal  `json:"wealth"`
	Holdings   resource.Holding `json:"holdings"`
	Reputation float64          `json:"reputation"`
	Untrusted  bool             `json:"untrusted"`
	Deals      int              `json:"deals"`
}

// PricePoint is the average unit price of a round that traded.
type PricePoint struct {
	Round int
	Price float64
}

func (s *Simulator) measure(res *RoundResult) {
	var turnover [resource.NumTypes]float64
	for _, d := range res.Deals {
		if d.Status != agents.StatusCompleted {
			res.Defaulted++
			if res.Defaults == nil {
				res.Defaults = make(map[agents.Cause]int)
			}
			res.Defaults[d.Cause]++
			continue
		}
		res.Completed++
		q := d.Quantity.InexactFloat64()
		res.Volume[d.Resource] += q
		turnover[d.Resource] += d.Total().InexactFloat64()
	}
	for _, t := range resource.Types {
		if res.Volume[t] > 0 {
			res.AvgPrice[t] = turnover[t] / res.Volume[t]
		}
	}

	res.Agents = make([]AgentState, 0, len(s.agents))
	for _, a := range s.agents {
		res.Agents = append(res.Agents, AgentState{
			ID:         a.ID,
			Strategy:   a.Strategy.Name(),
			Wealth:     a.Wealth,
			Holdings:   a.Holdings,
			Reputation: s.rep.Score(a.ID),
			Untrusted:  s.untrusted.Contains(a.ID),
			Deals:      len(a.Deals),
		})
	}
}

// History returns every completed round.
func (s *Simulator) History() []RoundResult {
	return s.history
}

func (s *Simulator) agentSeries(id string, f func(AgentState) float64) []float64 {
	out := make([]float64, 0, len(s.history))
	for _, r := range s.history {
		for _, st := range r.Agents {
			if st.ID == id {
				out = append(out, f(st))
				break
			}
		}
	}
	return out
}

// ReputationSeries returns the agent's public score after each round.
func (s *Simulator) ReputationSeries(id string) []float64 {
	return s.agentSeries(id, func(st AgentState) float64 { return st.Reputation })
}

// WealthSeries returns the agent's wealth after each round.
func (s *Simulator) WealthSeries(id string) []float64 {
	return s.agentSeries(id, func(st AgentState) float64 { return st.Wealth.InexactFloat64() })
}

// AveragePriceSeries returns the average unit price of t for every round in
// which t traded.
func (s *Simulator) AveragePriceSeries(t resource.Type) []PricePoint {
	var out []PricePoint
	if !t.Valid() {
		return out
	}
	for _, r := range s.history {
		if r.Volume[t] > 0 {
			out = append(out, PricePoint{Round: r.Round, Price: r.AvgPrice[t]})
		}
	}
	return out
}

// DealCountSeries returns the number of completed deals per round.
func (s *Simulator) DealCountSeries() []int {
	out := make([]int, 0, len(s.history))
	for _, r := range s.history {
		out = append(out, r.Completed)
	}
	return out
}
