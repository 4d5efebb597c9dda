// Package strategy provides the negotiation policies agents plug in.
//
// Every variant implements protocol.Decider, so the session never depends on
// a concrete strategy. Strategies only read the View they are handed; the
// optional Learner capability is the one place they update internal state,
// and the simulator calls it while it holds exclusive write access.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/talgya/compute-market/internal/protocol"
	"github.com/talgya/compute-market/internal/resource"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidParam    = errors.New("invalid strategy parameter")
)

// Strategy is a named negotiation policy.
type Strategy interface {
	protocol.Decider
	Name() string
}

// Learner is implemented by strategies that adjust after each resolved
// session.
type Learner interface {
	Learn(fb Feedback)
}

// Feedback describes how a session the agent took part in ended.
type Feedback struct {
	Round    int
	Resource resource.Type
	Role     protocol.Role
	Agreed   bool
	// Price is the agreed unit price when Agreed.
	Price float64
	// CounterpartyPrice is the counterparty's last proposal, if it made one.
	CounterpartyPrice    float64
	HasCounterpartyPrice bool
}

// Params are numeric strategy settings keyed by name.
type Params map[string]float64

// AwarePrefix wraps a strategy in ReputationAware, e.g. "aware-fair".
const AwarePrefix = "aware-"

type factory func(Params) (Strategy, error)

var registry = map[string]factory{
	"greedy":   func(p Params) (Strategy, error) { return NewGreedy(p) },
	"fair":     func(p Params) (Strategy, error) { return NewFair(p) },
	"patient":  func(p Params) (Strategy, error) { return NewPatient(p) },
	"adaptive": func(p Params) (Strategy, error) { return NewAdaptive(p) },
	"broker":   func(p Params) (Strategy, error) { return NewBroker(p) },
}

// Names lists the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds a strategy by name. Names with AwarePrefix wrap the named
// strategy in ReputationAware; its "threshold" parameter is taken from params.
func New(name string, params Params) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if inner, ok := strings.CutPrefix(n, AwarePrefix); ok {
		threshold := DefaultTrustThreshold
		rest := make(Params, len(params))
		for k, v := range params {
			if k == "threshold" {
				threshold = v
				continue
			}
			rest[k] = v
		}
		s, err := New(inner, rest)
		if err != nil {
			return nil, err
		}
		return NewReputationAware(s, threshold)
	}
	f, ok := registry[n]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return f(params)
}

// apply copies params onto the named fields, rejecting unknown keys and
// non-finite values.
func apply(strategy string, params Params, fields map[string]*float64) error {
	for k, v := range params {
		dst, ok := fields[k]
		if !ok {
			return fmt.Errorf("%w: %s has no parameter %q", ErrInvalidParam, strategy, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s.%s=%v", ErrInvalidParam, strategy, k, v)
		}
		*dst = v
	}
	return nil
}

func paramErr(strategy, field string, v float64, want string) error {
	return fmt.Errorf("%w: %s.%s=%v, want %s", ErrInvalidParam, strategy, field, v, want)
}

func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// openingQuantity is what a provider can put on the table for the request.
func openingQuantity(v protocol.View) float64 {
	return math.Min(v.Requested, v.Available())
}

// counterQuantity trims q to what the viewer could actually honour at price.
// Affordable quantities are floored to micro-units so float error never
// pushes the total above wealth at settlement.
func counterQuantity(v protocol.View, q, price float64) float64 {
	if v.Role == protocol.RoleSeller {
		return math.Min(q, v.Available())
	}
	if price > 0 && q*price > v.Wealth {
		return math.Floor(v.Wealth/price*1e6) / 1e6
	}
	return q
}

// favourable reports whether price is at least as good as limit for the
// viewer's side.
func favourable(v protocol.View, price, limit float64) bool {
	if v.Role == protocol.RoleSeller {
		return price >= limit
	}
	return price <= limit
}

// toward moves from by at most step in the direction of target without
// passing it.
func toward(from, target, step float64) float64 {
	if target > from {
		return math.Min(from+step, target)
	}
	return math.Max(from-step, target)
}

// counterOrReject builds a counter for q at price, or a reject if nothing can
// be honoured.
func counterOrReject(v protocol.View, q, price float64) protocol.Action {
	q = counterQuantity(v, q, price)
	if q <= 0 {
		if v.Role == protocol.RoleSeller {
			return protocol.Reject("insufficient resources")
		}
		return protocol.Reject("cannot afford")
	}
	return protocol.Counter(q, price)
}

// open is the provider's first move: offer what it holds at price.
func open(v protocol.View, price float64) protocol.Action {
	q := openingQuantity(v)
	if q <= 0 {
		return protocol.Reject("insufficient resources")
	}
	return protocol.Offer(q, price)
}
