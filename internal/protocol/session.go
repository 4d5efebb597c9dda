package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/talgya/compute-market/internal/resource"
)

// ErrProtocolViolation marks an action that is illegal in the current state.
var ErrProtocolViolation = errors.New("protocol violation")

// DefaultTurnBudget is the maximum number of counter round-trips before a
// forced timeout. A round-trip is one counter from each side.
const DefaultTurnBudget = 10

// State is a negotiation session state.
type State uint8

const (
	StateInit State = iota
	StateRequest
	StateOffer
	StateCounter
	StateAccept
	StateReject
	StateTimeout
)

var stateNames = [...]string{"init", "request", "offer", "counter", "accept", "reject", "timeout"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateAccept || s == StateReject || s == StateTimeout
}

// Violation records an illegal action that the session turned into a reject.
type Violation struct {
	Party  string
	State  State
	Action ActionKind
	Err    error
}

// Outcome is the terminal result of a session.
type Outcome struct {
	Session   uuid.UUID
	Round     int
	Seeker    string
	Provider  string
	Resource  resource.Type
	Requested float64

	State State
	// Terms are the agreed terms on accept, otherwise the last standing terms.
	Terms    Terms
	ClosedBy string // who accepted or rejected; empty on timeout
	Reason   string

	Messages   []Message
	Counters   int
	Violations []Violation
}

// Agreed reports whether the session ended in accept.
func (o Outcome) Agreed() bool {
	return o.State == StateAccept
}

// LastPrice returns the most recent proposed unit price from the given party,
// used by learners to adjust after a failed negotiation.
func (o Outcome) LastPrice(party string) (float64, bool) {
	for i := len(o.Messages) - 1; i >= 0; i-- {
		m := o.Messages[i]
		if m.Sender == party && (m.Kind == KindOffer || m.Kind == KindCounter) {
			return m.Terms.UnitPrice, true
		}
	}
	return 0, false
}

// Config describes one session.
type Config struct {
	ID         uuid.UUID
	Round      int
	Resource   resource.Type
	Quantity   float64 // requested by the seeker
	TurnBudget int
}

// Session is the state machine for one negotiation between two parties.
// Sessions are single-use and not safe for concurrent use.
type Session struct {
	cfg      Config
	seeker   Party
	provider Party

	state    State
	messages []Message
	counters int

	standing Terms
	closedBy string
	lastBy   map[string]Terms

	violations []Violation
}

// NewSession creates a session in INIT.
func NewSession(cfg Config, seeker, provider Party) (*Session, error) {
	if !cfg.Resource.Valid() {
		return nil, fmt.Errorf("new session: %w", resource.ErrUnknownType)
	}
	if cfg.Quantity <= 0 {
		return nil, fmt.Errorf("new session: %w: requested %v", resource.ErrInvalidQuantity, cfg.Quantity)
	}
	if seeker.ID == "" || provider.ID == "" || seeker.ID == provider.ID {
		return nil, fmt.Errorf("new session: need two distinct parties, got %q and %q", seeker.ID, provider.ID)
	}
	if seeker.Decider == nil || provider.Decider == nil {
		return nil, errors.New("new session: party without a strategy")
	}
	if cfg.TurnBudget <= 0 {
		cfg.TurnBudget = DefaultTurnBudget
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return &Session{
		cfg:      cfg,
		seeker:   seeker,
		provider: provider,
		state:    StateInit,
		lastBy:   make(map[string]Terms, 2),
	}, nil
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Run drives the session to a terminal state and returns the outcome.
func (s *Session) Run() Outcome {
	if s.state == StateInit {
		s.emit(KindRequest, &s.seeker, Terms{Quantity: s.cfg.Quantity}, "")
		s.state = StateRequest
	}

	actor, other := &s.provider, &s.seeker
	for !s.state.Terminal() {
		act := actor.Decider.Decide(s.view(actor, other))
		if err := s.check(act); err != nil {
			s.violate(actor, act, err)
			act = Reject(err.Error())
		}
		s.apply(actor, act)
		actor, other = other, actor
	}
	return s.outcome()
}

func (s *Session) check(act Action) error {
	switch act.Kind {
	case ActOffer:
		if s.state != StateRequest {
			return fmt.Errorf("%w: offer in state %s", ErrProtocolViolation, s.state)
		}
		return act.Terms.valid(s.cfg.Quantity)
	case ActCounter:
		if s.state != StateOffer && s.state != StateCounter {
			return fmt.Errorf("%w: counter in state %s", ErrProtocolViolation, s.state)
		}
		return act.Terms.valid(s.cfg.Quantity)
	case ActAccept:
		if s.state != StateOffer && s.state != StateCounter {
			return fmt.Errorf("%w: accept with no standing offer", ErrProtocolViolation)
		}
		return nil
	case ActReject:
		return nil
	default:
		return fmt.Errorf("%w: unknown action %d", ErrProtocolViolation, act.Kind)
	}
}

func (s *Session) apply(actor *Party, act Action) {
	switch act.Kind {
	case ActOffer:
		s.propose(KindOffer, actor, act)
		s.state = StateOffer
	case ActCounter:
		if s.counters >= 2*s.cfg.TurnBudget {
			s.state = StateTimeout
			return
		}
		s.counters++
		s.propose(KindCounter, actor, act)
		s.state = StateCounter
	case ActAccept:
		s.emit(KindAccept, actor, s.standing, act.Reason)
		s.closedBy = actor.ID
		s.state = StateAccept
	case ActReject:
		s.emit(KindReject, actor, Terms{}, act.Reason)
		s.closedBy = actor.ID
		s.state = StateReject
	}
}

func (s *Session) propose(kind Kind, actor *Party, act Action) {
	s.emit(kind, actor, act.Terms, act.Reason)
	s.standing = act.Terms
	s.lastBy[actor.ID] = act.Terms
}

func (s *Session) emit(kind Kind, sender *Party, terms Terms, reason string) {
	receiver := s.provider.ID
	if sender.ID == s.provider.ID {
		receiver = s.seeker.ID
	}
	seq := len(s.messages)
	msg := Message{
		ID:       uuid.NewSHA1(s.cfg.ID, []byte(strconv.Itoa(seq))),
		Kind:     kind,
		Sender:   sender.ID,
		Receiver: receiver,
		Terms:    terms,
		Reason:   reason,
		Seq:      seq,
	}
	if seq > 0 {
		msg.ReplyTo = s.messages[seq-1].ID
	}
	s.messages = append(s.messages, msg)
}

func (s *Session) violate(actor *Party, act Action, err error) {
	s.violations = append(s.violations, Violation{
		Party:  actor.ID,
		State:  s.state,
		Action: act.Kind,
		Err:    err,
	})
	slog.Warn("protocol violation",
		"session", s.cfg.ID,
		"round", s.cfg.Round,
		"agent", actor.ID,
		"state", s.state,
		"action", act.Kind,
		"error", err,
	)
}

func (s *Session) view(self, other *Party) View {
	role := RoleBuyer
	if self.ID == s.provider.ID {
		role = RoleSeller
	}
	v := View{
		Session:                s.cfg.ID.String(),
		Round:                  s.cfg.Round,
		Seq:                    len(s.messages),
		Counters:               s.counters,
		TurnBudget:             s.cfg.TurnBudget,
		Role:                   role,
		Self:                   self.ID,
		Counterparty:           other.ID,
		Holdings:               self.Holdings,
		Wealth:                 self.Wealth,
		Reputation:             self.Reputation,
		CounterpartyReputation: other.Reputation,
		Trust:                  self.Trust,
		KnowsCounterparty:      self.KnowsCounterparty,
		Resource:               s.cfg.Resource,
		Requested:              s.cfg.Quantity,
		History:                append([]Message(nil), s.messages...),
		BuyPrices:              self.BuyPrices,
		SellPrices:             self.SellPrices,
	}
	if t, ok := s.lastBy[other.ID]; ok {
		v.Standing, v.HasStanding = t, true
	}
	if t, ok := s.lastBy[self.ID]; ok {
		v.OwnLast, v.HasOwnLast = t, true
	}
	return v
}

func (s *Session) outcome() Outcome {
	o := Outcome{
		Session:    s.cfg.ID,
		Round:      s.cfg.Round,
		Seeker:     s.seeker.ID,
		Provider:   s.provider.ID,
		Resource:   s.cfg.Resource,
		Requested:  s.cfg.Quantity,
		State:      s.state,
		Terms:      s.standing,
		Messages:   s.messages,
		Counters:   s.counters,
		Violations: s.violations,
	}
	if s.state != StateTimeout {
		o.ClosedBy = s.closedBy
		if n := len(s.messages); n > 0 {
			o.Reason = s.messages[n-1].Reason
		}
	}
	return o
}
