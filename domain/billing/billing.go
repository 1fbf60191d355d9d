// Package billing provides the pure bill computation the payment pipeline
// orchestrates: base amount with tier and time-of-use overrides, taxes,
// registered fees, currency conversion and payment bounds.
//
// All functions are deterministic with no side effects; monetary
// arithmetic is checked and fails with money.ErrOverflow rather than
// wrapping.
package billing

import (
	"errors"

	"github.com/artpar/utilibill/domain/money"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
)

var (
	// ErrBelowMinimumPayment is returned when the final amount falls below
	// the tariff's minimum payment.
	ErrBelowMinimumPayment = errors.New("amount below minimum payment")

	// ErrAboveMaximumPayment is returned when the final amount exceeds the
	// tariff's maximum payment.
	ErrAboveMaximumPayment = errors.New("amount exceeds maximum payment")

	// ErrExchangeRateUnavailable is returned when conversion is required
	// and no price feed exists for the pair.
	ErrExchangeRateUnavailable = errors.New("exchange rate not available")
)

// Record is an immutable snapshot of one bill computation, keyed by meter
// and timestamp.
type Record struct {
	MeterID       string
	Timestamp     int64 // unix seconds, the billing key's second half
	Consumption   int64
	BaseAmount    int64
	TaxAmount     int64
	FeeAmount     int64
	FinalAmount   int64
	Type          utility.Type
	TariffVersion uint32
}

// Breakdown carries the intermediate amounts of one computation for
// logging and auditing.
type Breakdown struct {
	Base      int64
	Tax       int64
	Fee       int64
	Subtotal  int64
	Final     int64
	TierName  string // empty when no tier matched
	TimeOfUse bool   // a time-of-use rule applied
	Converted bool   // currency conversion applied
}

// BaseAmount computes consumption*rate with tier override and time-of-use
// multiplication. The first tier containing consumption replaces the base
// rate; the first time-of-use rule covering now's hour and weekday then
// multiplies the amount by Multiplier/100 with truncating division.
func BaseAmount(t tariff.Tariff, consumption, now int64) (amount int64, tierName string, touApplied bool, err error) {
	rate := t.BaseRate
	if tier, ok := tariff.SelectTier(t.Tiers, consumption); ok {
		rate = tier.RatePerUnit
		tierName = tier.Name
	}
	amount, err = money.Mul(consumption, rate)
	if err != nil {
		return 0, "", false, err
	}

	hour := tariff.HourOfDay(now)
	weekday := tariff.Weekday(now)
	if rule, ok := tariff.SelectTimeOfUse(t.TimeOfUse, hour, weekday); ok {
		amount, err = money.MulDiv(amount, rule.Multiplier, 100)
		if err != nil {
			return 0, "", false, err
		}
		touApplied = true
	}
	return amount, tierName, touApplied, nil
}

// TaxAmount sums the configured taxes over a base amount. Plain taxes
// apply to base; compound taxes apply to the running subtotal including
// previously applied compound taxes. A tax's contribution is capped at
// its MaxAmount when set.
func TaxAmount(taxes []tariff.Tax, base int64) (int64, error) {
	var total int64
	running := base
	for _, tx := range taxes {
		on := base
		if tx.Compound {
			on = running
		}
		part, err := money.Percent(on, tx.Percent)
		if err != nil {
			return 0, err
		}
		if tx.MaxAmount != nil && part > *tx.MaxAmount {
			part = *tx.MaxAmount
		}
		total, err = money.Add(total, part)
		if err != nil {
			return 0, err
		}
		if tx.Compound {
			running, err = money.Add(running, part)
			if err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

// FeeAmount sums the registered active fees: fixed amounts plus
// percentage amounts computed against the running subtotal (base + tax).
// No registered fee means no fee; there is no implicit default.
func FeeAmount(fees []tariff.Fee, subtotal int64) (int64, error) {
	var total int64
	for _, f := range fees {
		if !f.Active {
			continue
		}
		var part int64
		var err error
		if f.IsPercent && f.Percent != nil {
			part, err = money.Percent(subtotal, *f.Percent)
		} else {
			part = f.Amount
		}
		if err != nil {
			return 0, err
		}
		total, err = money.Add(total, part)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Convert applies a price feed to a subtotal: subtotal*price/10^decimals
// with truncating division.
func Convert(subtotal int64, feed oracle.PriceFeed) (int64, error) {
	scale, err := money.Pow10(feed.Decimals)
	if err != nil {
		return 0, err
	}
	return money.MulDiv(subtotal, feed.Price, scale)
}

// CheckBounds accepts amounts inside the tariff's inclusive payment
// bounds; boundary values are accepted.
func CheckBounds(final int64, t tariff.Tariff) error {
	if final < t.MinimumPayment {
		return ErrBelowMinimumPayment
	}
	if final > t.MaximumPayment {
		return ErrAboveMaximumPayment
	}
	return nil
}
