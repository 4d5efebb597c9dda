package protocol

import (
	"fmt"

	"github.com/talgya/compute-market/internal/resource"
)

// Role is a participant's side of the session.
type Role uint8

const (
	RoleBuyer  Role = iota // the seeker
	RoleSeller             // the provider
)

func (r Role) String() string {
	if r == RoleSeller {
		return "seller"
	}
	return "buyer"
}

// ActionKind is what a strategy wants to do on its turn.
type ActionKind uint8

const (
	ActOffer ActionKind = iota
	ActCounter
	ActAccept
	ActReject
)

var actionNames = [...]string{"offer", "counter", "accept", "reject"}

func (k ActionKind) String() string {
	if int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// Action is the single decision a strategy returns for one turn.
type Action struct {
	Kind   ActionKind
	Terms  Terms
	Reason string
}

// Offer proposes opening terms. Legal only as the provider's first move.
func Offer(quantity, unitPrice float64) Action {
	return Action{Kind: ActOffer, Terms: Terms{Quantity: quantity, UnitPrice: unitPrice}}
}

// Counter proposes revised terms.
func Counter(quantity, unitPrice float64) Action {
	return Action{Kind: ActCounter, Terms: Terms{Quantity: quantity, UnitPrice: unitPrice}}
}

// Accept takes the counterparty's standing terms.
func Accept() Action {
	return Action{Kind: ActAccept}
}

// Reject ends the session without a deal.
func Reject(reason string) Action {
	return Action{Kind: ActReject, Reason: reason}
}

// Decider is the decision contract every strategy implements. The session
// depends only on this interface.
type Decider interface {
	Decide(v View) Action
}

// Party is the read-only snapshot of one participant handed to a session.
// It carries no reference back to the agent.
type Party struct {
	ID      string
	Decider Decider

	Holdings   resource.Holding
	Wealth     float64
	Reputation float64 // own public score

	// Private trust in the counterparty, if any deals were observed.
	Trust             float64
	KnowsCounterparty bool

	// Closed-deal unit prices for the session's resource type, oldest first.
	BuyPrices  []float64
	SellPrices []float64
}

// View is everything a strategy may look at when choosing an action.
type View struct {
	Session    string
	Round      int
	Seq        int // messages exchanged so far
	Counters   int
	TurnBudget int // counter round-trips allowed

	Role         Role
	Self         string
	Counterparty string

	Holdings   resource.Holding
	Wealth     float64
	Reputation float64

	CounterpartyReputation float64
	Trust                  float64
	KnowsCounterparty      bool

	Resource  resource.Type
	Requested float64

	// Standing terms were proposed by the counterparty and are what Accept takes.
	Standing    Terms
	HasStanding bool
	OwnLast     Terms
	HasOwnLast  bool

	History    []Message
	BuyPrices  []float64
	SellPrices []float64
}

// ReferencePrice is the market-rate prior for the session's resource.
func (v View) ReferencePrice() float64 {
	return v.Resource.ReferencePrice()
}

// Available is how much of the session's resource the viewer holds.
func (v View) Available() float64 {
	return v.Holdings.Float(v.Resource)
}

// CanHonour reports whether the viewer could settle the terms from its
// current snapshot: deliver them as seller or pay for them as buyer.
func (v View) CanHonour(t Terms) bool {
	if v.Role == RoleSeller {
		return v.Available()+quantityEpsilon >= t.Quantity
	}
	return v.Wealth+quantityEpsilon >= t.Total()
}
