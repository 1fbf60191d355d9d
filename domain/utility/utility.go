// Package utility provides the closed utility-type enumeration shared by the
// registry, the price store and the billing pipeline.
package utility

import "errors"

// ErrInvalidType is returned when a wire integer does not name a utility type.
var ErrInvalidType = errors.New("invalid utility type")

// Type identifies a class of metered utility service.
// Wire values are fixed and must not be renumbered.
type Type uint8

const (
	Electricity Type = 1
	Water       Type = 2
	Gas         Type = 3
	Internet    Type = 4
	Waste       Type = 5
	PropertyTax Type = 6
	Solar       Type = 7
	EVCharging  Type = 8
)

// TypeFromWire converts the wire integer form into a Type.
// The conversion is total: every out-of-range value fails with ErrInvalidType.
func TypeFromWire(v uint8) (Type, error) {
	if v < uint8(Electricity) || v > uint8(EVCharging) {
		return 0, ErrInvalidType
	}
	return Type(v), nil
}

// Wire returns the wire integer form.
func (t Type) Wire() uint8 { return uint8(t) }

// Valid reports whether t is a known utility type.
func (t Type) Valid() bool {
	return t >= Electricity && t <= EVCharging
}

// String returns the canonical lowercase name.
func (t Type) String() string {
	switch t {
	case Electricity:
		return "electricity"
	case Water:
		return "water"
	case Gas:
		return "gas"
	case Internet:
		return "internet"
	case Waste:
		return "waste"
	case PropertyTax:
		return "property_tax"
	case Solar:
		return "solar"
	case EVCharging:
		return "ev_charging"
	}
	return "unknown"
}

// Unit returns the unit of measure consumption is expressed in.
func (t Type) Unit() string {
	switch t {
	case Electricity, Solar, EVCharging:
		return "kWh"
	case Water, Gas:
		return "m³"
	case Internet:
		return "Mbps"
	case Waste:
		return "kg"
	case PropertyTax:
		return "property"
	}
	return ""
}

// All returns every known utility type in wire order.
func All() []Type {
	return []Type{Electricity, Water, Gas, Internet, Waste, PropertyTax, Solar, EVCharging}
}
