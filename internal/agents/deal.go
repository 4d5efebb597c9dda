package agents

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/resource"
)

// Status is how a deal resolved.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompleted
	StatusDefaulted
)

var statusNames = [...]string{"pending", "completed", "defaulted"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Cause explains a default.
type Cause uint8

const (
	CauseNone               Cause = iota
	CauseDishonest                // the defaulter chose not to honour the deal
	CauseInsufficientSupply       // the seller no longer held the quantity
	CauseInsufficientFunds        // the buyer could not pay
)

var causeNames = [...]string{"none", "dishonest", "insufficient-supply", "insufficient-funds"}

func (c Cause) String() string {
	if int(c) < len(causeNames) {
		return causeNames[c]
	}
	return fmt.Sprintf("cause(%d)", uint8(c))
}

// Deal is an agreement produced by an accepted session. It is a value:
// settlement returns a resolved copy.
type Deal struct {
	ID        uuid.UUID       `json:"id"`
	Session   uuid.UUID       `json:"session"`
	Round     int             `json:"round"`
	Buyer     string          `json:"buyer"`
	Seller    string          `json:"seller"`
	Resource  resource.Type   `json:"resource"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Status    Status          `json:"status"`
	Cause     Cause           `json:"cause"`
	Defaulter string          `json:"defaulter,omitempty"`
}

// NewDeal builds a pending deal from an accepted session outcome. The ID is
// derived from the session ID so reruns with the same seed produce the same
// deals.
func NewDeal(out protocol.Outcome) (Deal, error) {
	if !out.Agreed() {
		return Deal{}, fmt.Errorf("new deal: session %s ended in %s", out.Session, out.State)
	}
	return Deal{
		ID:        uuid.NewSHA1(out.Session, []byte("deal")),
		Session:   out.Session,
		Round:     out.Round,
		Buyer:     out.Seeker,
		Seller:    out.Provider,
		Resource:  out.Resource,
		Quantity:  decimal.NewFromFloat(out.Terms.Quantity),
		UnitPrice: decimal.NewFromFloat(out.Terms.UnitPrice),
	}, nil
}

// Total is quantity × unit price.
func (d Deal) Total() decimal.Decimal {
	return d.Quantity.Mul(d.UnitPrice)
}

// Defect marks the deal as one the given party will not honour.
func (d Deal) Defect(party string) Deal {
	d.Status = StatusDefaulted
	d.Cause = CauseDishonest
	d.Defaulter = party
	return d
}

func (d Deal) String() string {
	s := fmt.Sprintf("%s %s->%s %s %s@%s %s", d.ID.String()[:8], d.Seller, d.Buyer,
		d.Resource, d.Quantity.StringFixed(3), d.UnitPrice.StringFixed(4), d.Status)
	if d.Status == StatusDefaulted {
		s += fmt.Sprintf(" (%s by %s)", d.Cause, d.Defaulter)
	}
	return s
}
