// Package tariff provides rate-schedule value types and the pure selection
// functions the billing pipeline is built from: tiered rates, time-of-use
// windows, taxes and registered fees.
package tariff

import (
	"errors"

	"github.com/artpar/utilibill/domain/utility"
)

// Tier is a unit price that applies only within a bounded consumption
// range. Both bounds are inclusive. Tiers of one tariff are assumed
// disjoint by the provider; the engine does not enforce disjointness and
// applies the first match in stored order.
type Tier struct {
	MinUnits    int64
	MaxUnits    int64
	RatePerUnit int64
	Name        string
}

// Contains reports whether units falls inside the tier's inclusive range.
func (t Tier) Contains(units int64) bool {
	return units >= t.MinUnits && units <= t.MaxUnits
}

// TimeOfUse multiplies the base amount inside an hour window on selected
// weekdays. Multiplier is a percentage of base (150 = ×1.5). The hour
// window is inclusive on both ends.
type TimeOfUse struct {
	StartHour  uint8
	EndHour    uint8
	Days       []uint8 // 0-6, Sunday-Saturday
	Multiplier int64
	Season     string
}

// Applies reports whether the rule covers the given hour and weekday.
func (r TimeOfUse) Applies(hour, weekday int64) bool {
	if hour < int64(r.StartHour) || hour > int64(r.EndHour) {
		return false
	}
	for _, d := range r.Days {
		if int64(d) == weekday {
			return true
		}
	}
	return false
}

// Seasonal is a percentage adjustment bound to a month window.
// Carried as tariff data; the pipeline does not currently apply it.
type Seasonal struct {
	Season     string
	StartMonth uint8
	EndMonth   uint8
	Adjustment int64 // percentage of base, 110 = +10%
}

// Tax is a named percentage levy. Compound taxes apply to the running
// subtotal including previously applied compound taxes; plain taxes apply
// to the base amount. MaxAmount, when set, caps the tax's contribution.
type Tax struct {
	Name      string
	Percent   int64
	Compound  bool
	MaxAmount *int64
}

// Discount is a conditional percentage reduction.
// Carried as tariff data; the pipeline does not currently apply it.
type Discount struct {
	Name      string
	Percent   int64
	Condition string // "early_payment", "senior_citizen", ...
	Active    bool
	ExpiresAt *int64
}

// LateFee configures overdue-payment penalties.
type LateFee struct {
	Flat          int64
	Percent       int64
	Max           int64
	GraceDays     uint32
	CompoundDaily bool
}

// DefaultLateFee is the policy a new tariff starts with.
func DefaultLateFee(graceDays uint32) LateFee {
	return LateFee{
		Flat:      1_000_000,
		Percent:   500, // 5%, scaled by 100
		Max:       10_000_000,
		GraceDays: graceDays,
	}
}

// Tariff is a provider's rate schedule for one utility type in one region
// (value type). Version strictly increases on every upgrade; every upgrade
// leaves behind exactly one Version audit record.
type Tariff struct {
	ID             string
	Type           utility.Type
	ProviderID     string
	Region         string
	BaseRate       int64 // per unit, scaled by 10^Decimals
	Currency       string
	Decimals       uint32
	Tiers          []Tier
	TimeOfUse      []TimeOfUse
	Seasonal       []Seasonal
	Taxes          []Tax
	Discounts      []Discount
	LateFee        LateFee
	PaymentMethods []string
	CycleDays      uint32
	GraceDays      uint32
	MinimumPayment int64
	MaximumPayment int64
	Active         bool
	Version        uint32
	UpdatedAt      int64 // unix seconds
}

// Key builds the lookup key tariffs are resolved under during billing.
func Key(providerID, region string) string {
	return providerID + "_" + region
}

// Version is an append-only audit record written before a tariff upgrade
// overwrites the live schedule.
type Version struct {
	TariffID          string
	Type              utility.Type
	Version           uint32
	DeployedAt        int64
	Active            bool
	MigrationRequired bool
	Description       string
}

// SelectTier returns the first tier in stored order whose range contains
// consumption. First match wins even when ranges overlap.
func SelectTier(tiers []Tier, consumption int64) (Tier, bool) {
	for _, t := range tiers {
		if t.Contains(consumption) {
			return t, true
		}
	}
	return Tier{}, false
}

// SelectTimeOfUse returns the first rule in stored order covering the
// given hour and weekday.
func SelectTimeOfUse(rules []TimeOfUse, hour, weekday int64) (TimeOfUse, bool) {
	for _, r := range rules {
		if r.Applies(hour, weekday) {
			return r, true
		}
	}
	return TimeOfUse{}, false
}

// HourOfDay derives the UTC hour (0-23) from a unix timestamp.
func HourOfDay(now int64) int64 { return (now / 3600) % 24 }

// Weekday derives the day-of-week (0-6) from a unix timestamp.
// Day 0 is the unix epoch weekday (Thursday); rules use the same base.
func Weekday(now int64) int64 { return (now / 86400) % 7 }

// ErrInvalidFeeType is returned when a wire integer does not name a fee type.
var ErrInvalidFeeType = errors.New("invalid fee type")

// FeeType classifies a registered fee. Wire values are fixed.
type FeeType uint8

const (
	FeeProcessing  FeeType = 1
	FeeService     FeeType = 2
	FeeMaintenance FeeType = 3
	FeeConnection  FeeType = 4
	FeeDisconnect  FeeType = 5
	FeeReconnect   FeeType = 6
	FeeInspection  FeeType = 7
	FeeEmergency   FeeType = 8
)

// FeeTypeFromWire converts the wire integer form into a FeeType.
// The conversion is total: out-of-range values fail with ErrInvalidFeeType.
func FeeTypeFromWire(v uint8) (FeeType, error) {
	if v < uint8(FeeProcessing) || v > uint8(FeeEmergency) {
		return 0, ErrInvalidFeeType
	}
	return FeeType(v), nil
}

// Wire returns the wire integer form.
func (f FeeType) Wire() uint8 { return uint8(f) }

// String returns the canonical lowercase name.
func (f FeeType) String() string {
	switch f {
	case FeeProcessing:
		return "processing"
	case FeeService:
		return "service"
	case FeeMaintenance:
		return "maintenance"
	case FeeConnection:
		return "connection"
	case FeeDisconnect:
		return "disconnection"
	case FeeReconnect:
		return "reconnection"
	case FeeInspection:
		return "inspection"
	case FeeEmergency:
		return "emergency"
	}
	return "unknown"
}

// Fee is a fixed or percentage charge registered against a provider and
// utility type. Absence of a registered fee means no fee is applied; there
// is no implicit default.
type Fee struct {
	ID          string
	Type        utility.Type
	ProviderID  string
	FeeType     FeeType
	Amount      int64  // fixed amount when IsPercent is false
	Percent     *int64 // percentage of the running subtotal when IsPercent
	IsPercent   bool
	Description string
	Active      bool
	CreatedAt   int64
}
