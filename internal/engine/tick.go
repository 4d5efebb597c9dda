package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/entropy"
	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/resource"
	"github.com/talgya/compute-market/internal/strategy"
)

// Run advances the simulation by rounds and returns their results. It stops
// at the first fatal error: a duplicate settlement, a recorder failure or an
// unusable pairing.
func (s *Simulator) Run(rounds int) ([]RoundResult, error) {
	if rounds < 0 {
		return nil, fmt.Errorf("%w: rounds %d", ErrInvalidConfig, rounds)
	}
	slog.Info("simulation started",
		"run", s.runID,
		"seed", s.cfg.Seed,
		"agents", len(s.agents),
		"rounds", rounds,
	)
	out := make([]RoundResult, 0, rounds)
	for i := 0; i < rounds; i++ {
		r, err := s.Step()
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	slog.Info("simulation finished", "run", s.runID, "round", s.round)
	return out, nil
}

// Step runs one round: isolation review, demand, pairing, the concurrent
// negotiation phase and the serialized commit phase.
func (s *Simulator) Step() (RoundResult, error) {
	round := s.round + 1

	isolated := s.reviewTrust(round)
	pool := make([]*agents.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if !s.untrusted.Contains(a.ID) {
			pool = append(pool, a)
		}
	}

	needs := s.cfg.Demand.Round(round, s.agents, s.demandRNG)
	reqs := s.cfg.Pairing.Pair(round, needs, pool, s.pairingRNG)

	outcomes, err := s.negotiate(round, reqs)
	if err != nil {
		return RoundResult{}, fmt.Errorf("round %d: %w", round, err)
	}

	res := RoundResult{Round: round, Isolated: isolated, Outcomes: outcomes}
	if err := s.commit(&res, outcomes); err != nil {
		return RoundResult{}, fmt.Errorf("round %d: %w", round, err)
	}
	s.measure(&res)

	s.round = round
	s.history = append(s.history, res)

	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.RecordRound(res); err != nil {
			return res, fmt.Errorf("round %d: record: %w", round, err)
		}
	}
	if s.cfg.ReportEvery > 0 && round%s.cfg.ReportEvery == 0 {
		s.report(round)
	}
	return res, nil
}

// reviewTrust refreshes the untrusted set from current public scores and
// returns agents newly isolated this round. An agent whose score recovers is
// readmitted.
func (s *Simulator) reviewTrust(round int) []string {
	if s.cfg.IsolationThreshold <= 0 {
		return nil
	}
	var isolated []string
	for _, a := range s.agents {
		score := s.rep.Score(a.ID)
		switch {
		case score < s.cfg.IsolationThreshold && !s.untrusted.Contains(a.ID):
			s.untrusted.Add(a.ID)
			isolated = append(isolated, a.ID)
			slog.Info("agent isolated", "round", round, "agent", a.ID, "reputation", fmt.Sprintf("%.3f", score))
		case score >= s.cfg.IsolationThreshold && s.untrusted.Contains(a.ID):
			s.untrusted.Remove(a.ID)
			slog.Info("agent readmitted", "round", round, "agent", a.ID, "reputation", fmt.Sprintf("%.3f", score))
		}
	}
	return isolated
}

// negotiate runs every scheduled session concurrently. Parties are snapshotted
// on the calling goroutine before any session starts, so sessions never touch
// agents or the reputation model.
func (s *Simulator) negotiate(round int, reqs []Request) ([]protocol.Outcome, error) {
	sessions := make([]*protocol.Session, len(reqs))
	for i, req := range reqs {
		seeker, ok := s.index[req.Seeker]
		if !ok {
			return nil, fmt.Errorf("pairing: unknown seeker %q", req.Seeker)
		}
		provider, ok := s.index[req.Provider]
		if !ok {
			return nil, fmt.Errorf("pairing: unknown provider %q", req.Provider)
		}
		sess, err := protocol.NewSession(protocol.Config{
			ID:         uuid.NewSHA1(s.runID, []byte(strconv.Itoa(round)+"/"+strconv.Itoa(i))),
			Round:      round,
			Resource:   req.Resource,
			Quantity:   req.Quantity,
			TurnBudget: s.cfg.TurnBudget,
		},
			seeker.Party(req.Resource, provider.ID, s.rep),
			provider.Party(req.Resource, seeker.ID, s.rep),
		)
		if err != nil {
			return nil, fmt.Errorf("pairing: %w", err)
		}
		sessions[i] = sess
	}

	outcomes := make([]protocol.Outcome, len(sessions))
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i, sess := range sessions {
		i, sess := i, sess
		g.Go(func() error {
			outcomes[i] = sess.Run()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// commit resolves outcomes in pairing order: defection draws, settlement,
// then learner feedback. It runs on the simulator goroutine only.
func (s *Simulator) commit(res *RoundResult, outcomes []protocol.Outcome) error {
	for _, out := range outcomes {
		res.Negotiations++
		res.Violations += len(out.Violations)
		switch out.State {
		case protocol.StateAccept:
			res.Accepted++
		case protocol.StateTimeout:
			res.TimedOut++
		default:
			res.Rejected++
		}

		buyer, seller := s.index[out.Seeker], s.index[out.Provider]
		if out.Agreed() {
			d, err := agents.NewDeal(out)
			if err != nil {
				return err
			}
			switch {
			case entropy.Chance(s.defectionRNG, seller.CheatRate):
				d = d.Defect(seller.ID)
			case entropy.Chance(s.defectionRNG, buyer.CheatRate):
				d = d.Defect(buyer.ID)
			}
			d, err = agents.Settle(d, buyer, seller, s.rep)
			if err != nil {
				if errors.Is(err, agents.ErrDuplicateSettlement) {
					slog.Error("duplicate settlement", "round", res.Round, "deal", d.ID)
				}
				return err
			}
			res.Deals = append(res.Deals, d)
		}

		learn(buyer, out, protocol.RoleBuyer, seller.ID)
		learn(seller, out, protocol.RoleSeller, buyer.ID)
	}
	return nil
}

func learn(a *agents.Agent, out protocol.Outcome, role protocol.Role, counterparty string) {
	l, ok := a.Strategy.(strategy.Learner)
	if !ok {
		return
	}
	fb := strategy.Feedback{
		Round:    out.Round,
		Resource: out.Resource,
		Role:     role,
		Agreed:   out.Agreed(),
	}
	if fb.Agreed {
		fb.Price = out.Terms.UnitPrice
	}
	fb.CounterpartyPrice, fb.HasCounterpartyPrice = out.LastPrice(counterparty)
	l.Learn(fb)
}

// report logs a summary of the last ReportEvery rounds.
func (s *Simulator) report(round int) {
	from := max(0, len(s.history)-s.cfg.ReportEvery)
	var negotiations, completed, defaulted, timedOut int
	for _, r := range s.history[from:] {
		negotiations += r.Negotiations
		completed += r.Completed
		defaulted += r.Defaulted
		timedOut += r.TimedOut
	}
	last := s.history[len(s.history)-1]
	slog.Info("period report",
		"round", round,
		"negotiations", negotiations,
		"completed", completed,
		"defaulted", defaulted,
		"timed_out", timedOut,
		"avg_gpu_price", fmt.Sprintf("%.4f", last.AvgPrice[resource.GPU]),
		"untrusted", s.untrusted.Cardinality(),
	)
}
