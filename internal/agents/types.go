// Package agents provides the negotiating agent: its resource ledger, wealth,
// strategy, deal history and the settlement of agreed deals.
package agents

import (
	"errors"
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/reputation"
	"github.com/talgya/compute-market/internal/resource"
	"github.com/talgya/compute-market/internal/strategy"
)

var (
	ErrInvalidConfig       = errors.New("invalid agent config")
	ErrDuplicateSettlement = errors.New("deal already settled")
)

// Config describes an agent at simulation start.
type Config struct {
	ID         string
	Holdings   map[resource.Type]float64
	Wealth     float64 // starting budget
	Reputation float64 // initial public score
	Strategy   strategy.Strategy
	CheatRate  float64 // probability of defaulting on an agreed deal, 0..1
	Needs      map[resource.Type]float64
}

// Agent is a market participant. Only the simulator mutates agents; sessions
// see them through Party snapshots.
type Agent struct {
	ID        string
	Holdings  resource.Holding
	Wealth    decimal.Decimal
	Strategy  strategy.Strategy
	CheatRate float64
	Needs     Needs // standing per-round demand

	// InitialReputation is registered with the reputation model at start.
	InitialReputation float64

	// Deals is every deal the agent took part in, in settlement order.
	Deals []Deal

	settled mapset.Set[uuid.UUID]
	prices  priceMemory
}

// New validates cfg and builds an agent.
func New(cfg Config) (*Agent, error) {
	switch {
	case cfg.ID == "":
		return nil, fmt.Errorf("%w: empty id", ErrInvalidConfig)
	case cfg.Strategy == nil:
		return nil, fmt.Errorf("%w: %s has no strategy", ErrInvalidConfig, cfg.ID)
	case !finite(cfg.Wealth) || cfg.Wealth < 0:
		return nil, fmt.Errorf("%w: %s wealth %v", ErrInvalidConfig, cfg.ID, cfg.Wealth)
	case !finite(cfg.CheatRate) || cfg.CheatRate < 0 || cfg.CheatRate > 1:
		return nil, fmt.Errorf("%w: %s cheat rate %v", ErrInvalidConfig, cfg.ID, cfg.CheatRate)
	case !finite(cfg.Reputation):
		return nil, fmt.Errorf("%w: %s reputation %v", ErrInvalidConfig, cfg.ID, cfg.Reputation)
	}

	holdings, err := resource.NewHolding(cfg.Holdings)
	if err != nil {
		return nil, fmt.Errorf("%w: %s holdings: %w", ErrInvalidConfig, cfg.ID, err)
	}
	needs, err := NewNeeds(cfg.Needs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s needs: %w", ErrInvalidConfig, cfg.ID, err)
	}

	return &Agent{
		ID:                cfg.ID,
		Holdings:          holdings,
		Wealth:            decimal.NewFromFloat(cfg.Wealth),
		Strategy:          cfg.Strategy,
		CheatRate:         cfg.CheatRate,
		Needs:             needs,
		InitialReputation: cfg.Reputation,
		settled:           mapset.NewThreadUnsafeSet[uuid.UUID](),
	}, nil
}

// Party returns the read-only snapshot a session negotiates with. Slices are
// copied so the snapshot stays valid while the agent is updated.
func (a *Agent) Party(rt resource.Type, counterparty string, rep *reputation.Model) protocol.Party {
	trust, known := rep.PeerScore(a.ID, counterparty)
	buy, sell := a.PriceHistory(rt)
	return protocol.Party{
		ID:                a.ID,
		Decider:           a.Strategy,
		Holdings:          a.Holdings,
		Wealth:            a.Wealth.InexactFloat64(),
		Reputation:        rep.Score(a.ID),
		Trust:             trust,
		KnowsCounterparty: known,
		BuyPrices:         buy,
		SellPrices:        sell,
	}
}

// Settled reports whether the agent has already settled the deal.
func (a *Agent) Settled(id uuid.UUID) bool {
	return a.settled.Contains(id)
}

// NetWorth is wealth plus one unit of value per resource unit held.
func (a *Agent) NetWorth() decimal.Decimal {
	return a.Wealth.Add(a.Holdings.Units())
}

// Seeking reports whether the agent's configured needs make it a seeker.
func (a *Agent) Seeking() bool {
	return !a.Needs.IsZero()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
