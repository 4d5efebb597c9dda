// Package resource provides the compute resource types agents trade and the
// ledger that holds them.
package resource

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownType          = errors.New("unknown resource type")
	ErrNegativeQuantity     = errors.New("negative resource quantity")
	ErrInvalidQuantity      = errors.New("invalid transfer quantity")
	ErrInsufficientResource = errors.New("insufficient resource")
)

// Type enumerates the divisible compute resources.
type Type uint8

const (
	GPU    Type = iota // GPU-hours
	CPU                // CPU-hours
	Memory             // GB-hours of memory
)

// NumTypes is the total number of resource types.
const NumTypes = 3

// Types lists every resource type in ledger order.
var Types = [NumTypes]Type{GPU, CPU, Memory}

var typeNames = [NumTypes]string{"gpu", "cpu", "memory"}

var typeUnits = [NumTypes]string{"gpu-hours", "cpu-hours", "gb-hours"}

// Reference unit prices in abstract currency. Strategies use these as their
// market-rate prior before they have closed any deals.
var referencePrices = [NumTypes]float64{1.0, 0.5, 0.1}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("resource(%d)", uint8(t))
	}
	return typeNames[t]
}

// Unit returns the unit of account for the type.
func (t Type) Unit() string {
	if !t.Valid() {
		return ""
	}
	return typeUnits[t]
}

// ReferencePrice returns the default market-rate price per unit.
func (t Type) ReferencePrice() float64 {
	if !t.Valid() {
		return 0
	}
	return referencePrices[t]
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	return t < NumTypes
}

// ParseType accepts a type name ("gpu") or its unit ("gpu-hours").
func ParseType(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i := range typeNames {
		if n == typeNames[i] || n == typeUnits[i] {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// MarshalText encodes the type by name so it can key TOML and JSON maps.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
