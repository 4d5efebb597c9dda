// Package protocol defines the negotiation vocabulary and the state machine
// that sequences one session between a seeker and a provider.
package protocol

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Kind is the type of a protocol message.
type Kind uint8

const (
	KindRequest Kind = iota // "I need compute"
	KindOffer               // "Here's what I can give you"
	KindCounter             // "How about this instead"
	KindAccept              // "Deal"
	KindReject              // "No deal"
)

var kindNames = [...]string{"request", "offer", "counter", "accept", "reject"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Terms is a proposed quantity and unit price.
type Terms struct {
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Total returns quantity × unit price.
func (t Terms) Total() float64 {
	return t.Quantity * t.UnitPrice
}

func (t Terms) String() string {
	return fmt.Sprintf("%.3f@%.4f", t.Quantity, t.UnitPrice)
}

func (t Terms) valid(maxQuantity float64) error {
	switch {
	case math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity <= 0:
		return fmt.Errorf("%w: quantity %v", ErrProtocolViolation, t.Quantity)
	case t.Quantity > maxQuantity+quantityEpsilon:
		return fmt.Errorf("%w: quantity %v exceeds requested %v", ErrProtocolViolation, t.Quantity, maxQuantity)
	case math.IsNaN(t.UnitPrice) || math.IsInf(t.UnitPrice, 0) || t.UnitPrice < 0:
		return fmt.Errorf("%w: unit price %v", ErrProtocolViolation, t.UnitPrice)
	}
	return nil
}

const quantityEpsilon = 1e-9

// Message is one entry in a session transcript.
type Message struct {
	ID       uuid.UUID `json:"id"`
	ReplyTo  uuid.UUID `json:"reply_to"`
	Kind     Kind      `json:"kind"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Terms    Terms     `json:"terms"`
	Reason   string    `json:"reason,omitempty"`
	Seq      int       `json:"seq"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s->%s %s", m.Kind, m.Sender, m.Receiver, m.Terms)
}
