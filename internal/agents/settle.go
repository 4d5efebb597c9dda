package agents

import (
	"fmt"
	"log/slog"

	"github.com/talgya/compute-market/internal/reputation"
	"github.com/talgya/compute-market/internal/resource"
)

// Settle commits d for both parties and returns the resolved deal.
//
// A deal already marked dishonest (see Deal.Defect) applies only the honest
// leg: a cheating seller takes payment and delivers nothing, a cheating buyer
// takes delivery and pays nothing. Otherwise resource and payment move
// together or not at all; a seller short of the quantity or a buyer short of
// the total turns the deal into a default by that party.
//
// Both parties observe each other succeed on a completed deal. On a default
// only the victim's observation of the defaulter is recorded.
//
// Settling a deal either party has already settled returns
// ErrDuplicateSettlement and changes nothing.
func Settle(d Deal, buyer, seller *Agent, rep *reputation.Model) (Deal, error) {
	if buyer == seller || buyer.ID != d.Buyer || seller.ID != d.Seller {
		return d, fmt.Errorf("settle %s: parties %s/%s do not match deal %s/%s",
			d.ID, buyer.ID, seller.ID, d.Buyer, d.Seller)
	}
	if buyer.Settled(d.ID) || seller.Settled(d.ID) {
		return d, fmt.Errorf("settle %s: %w", d.ID, ErrDuplicateSettlement)
	}
	if _, ok := rep.Record(buyer.ID); !ok {
		return d, fmt.Errorf("settle %s: %w: %s", d.ID, reputation.ErrUnknownAgent, buyer.ID)
	}
	if _, ok := rep.Record(seller.ID); !ok {
		return d, fmt.Errorf("settle %s: %w: %s", d.ID, reputation.ErrUnknownAgent, seller.ID)
	}

	total := d.Total()
	switch {
	case d.Cause == CauseDishonest && d.Defaulter == seller.ID:
		if buyer.Wealth.GreaterThanOrEqual(total) && total.IsPositive() {
			buyer.Wealth = buyer.Wealth.Sub(total)
			seller.Wealth = seller.Wealth.Add(total)
		}
	case d.Cause == CauseDishonest && d.Defaulter == buyer.ID:
		if seller.Holdings.Covers(d.Resource, d.Quantity) {
			if err := resource.Transfer(&seller.Holdings, &buyer.Holdings, d.Resource, d.Quantity); err != nil {
				return d, fmt.Errorf("settle %s: %w", d.ID, err)
			}
		}
	case d.Cause == CauseDishonest:
		return d, fmt.Errorf("settle %s: defaulter %q is not a party", d.ID, d.Defaulter)
	case !seller.Holdings.Covers(d.Resource, d.Quantity):
		d.Status, d.Cause, d.Defaulter = StatusDefaulted, CauseInsufficientSupply, seller.ID
	case buyer.Wealth.LessThan(total):
		d.Status, d.Cause, d.Defaulter = StatusDefaulted, CauseInsufficientFunds, buyer.ID
	default:
		if err := resource.Transfer(&seller.Holdings, &buyer.Holdings, d.Resource, d.Quantity); err != nil {
			return d, fmt.Errorf("settle %s: %w", d.ID, err)
		}
		buyer.Wealth = buyer.Wealth.Sub(total)
		seller.Wealth = seller.Wealth.Add(total)
		d.Status, d.Cause, d.Defaulter = StatusCompleted, CauseNone, ""
	}

	if d.Status == StatusCompleted {
		price := d.UnitPrice.InexactFloat64()
		buyer.prices.remember(&buyer.prices.buy, d.Resource, price)
		seller.prices.remember(&seller.prices.sell, d.Resource, price)
		if err := rep.Observe(buyer.ID, seller.ID, reputation.Success); err != nil {
			return d, fmt.Errorf("settle %s: %w", d.ID, err)
		}
		if err := rep.Observe(seller.ID, buyer.ID, reputation.Success); err != nil {
			return d, fmt.Errorf("settle %s: %w", d.ID, err)
		}
	} else {
		victim := buyer.ID
		if d.Defaulter == buyer.ID {
			victim = seller.ID
		}
		if err := rep.Observe(victim, d.Defaulter, reputation.Default); err != nil {
			return d, fmt.Errorf("settle %s: %w", d.ID, err)
		}
		slog.Debug("deal defaulted", "deal", d.ID, "round", d.Round,
			"defaulter", d.Defaulter, "cause", d.Cause)
	}

	buyer.settled.Add(d.ID)
	seller.settled.Add(d.ID)
	buyer.Deals = append(buyer.Deals, d)
	seller.Deals = append(seller.Deals, d)
	return d, nil
}
