// Package oracle provides value types and pure functions for externally
// fed pricing data: price feeds, commodity rates, the reliability and
// staleness gate, and the process-wide reliability/cost trackers.
//
// Nothing in this package performs I/O. The gate is the single trust
// decision point: a datum that fails it must never influence a monetary
// transfer.
package oracle

import (
	"errors"

	"github.com/artpar/utilibill/domain/money"
	"github.com/artpar/utilibill/domain/utility"
)

var (
	// ErrDataTooOld is returned when a datum is older than the configured
	// maximum age.
	ErrDataTooOld = errors.New("oracle data too old")

	// ErrReliabilityTooLow is returned when a datum's reliability score is
	// below the configured minimum.
	ErrReliabilityTooLow = errors.New("oracle reliability too low")

	// ErrValueOutOfBounds is returned by ValidateExternalData for a
	// magnitude outside its sanity bounds.
	ErrValueOutOfBounds = errors.New("external value out of bounds")

	// ErrCostExceedsLimit is returned when a declared call cost exceeds the
	// per-call ceiling.
	ErrCostExceedsLimit = errors.New("oracle cost exceeds per-call limit")
)

// Reliability score bounds. Scores start at the neutral midpoint and are
// revised by observed call outcomes, never leaving [MinScore, MaxScore].
const (
	MinScore     = 0
	MaxScore     = 100
	InitialScore = 50
)

// PriceFeed is an asset-to-asset exchange rate pushed by an external
// source. Price is fixed-point, scaled by 10^Decimals.
type PriceFeed struct {
	ID          string
	Source      string
	Base        string
	Quote       string
	Decimals    uint32
	Price       int64
	Reliability int
	UpdatedAt   int64 // unix seconds
}

// FeedID builds the canonical feed identifier for a currency pair.
func FeedID(base, quote string) string {
	return base + "_" + quote
}

// CommodityRate is a non-exchange commodity price (rate per unit of a
// utility type in a region).
type CommodityRate struct {
	ID          string
	Type        utility.Type
	Region      string
	RatePerUnit int64
	Currency    string
	Reliability int
	UpdatedAt   int64
}

// RateID builds the canonical commodity rate identifier.
func RateID(t utility.Type, region string) string {
	return t.String() + "_" + region
}

// Config holds the trust parameters the gate enforces.
type Config struct {
	MaxAgeSeconds    int64
	MinReliability   int
	FallbackEnabled  bool
	CostLimitPerCall int64
	SlowCallMs       int64 // latency above this damps reliability gains
}

// CheckFreshness fails with ErrDataTooOld when now-updatedAt exceeds the
// configured maximum age. Equality is fresh.
func CheckFreshness(updatedAt, now int64, cfg Config) error {
	if now-updatedAt > cfg.MaxAgeSeconds {
		return ErrDataTooOld
	}
	return nil
}

// CheckReliability fails with ErrReliabilityTooLow when score is below the
// configured minimum. Equality passes.
func CheckReliability(score int, cfg Config) error {
	if score < cfg.MinReliability {
		return ErrReliabilityTooLow
	}
	return nil
}

// Gate is the combined freshness and reliability check. Freshness is
// checked first; the first violated condition decides the error.
func Gate(updatedAt int64, score int, now int64, cfg Config) error {
	if err := CheckFreshness(updatedAt, now, cfg); err != nil {
		return err
	}
	return CheckReliability(score, cfg)
}

// UsableFeed applies the gate to a price feed.
func UsableFeed(f PriceFeed, now int64, cfg Config) error {
	return Gate(f.UpdatedAt, f.Reliability, now, cfg)
}

// UsableRate applies the gate to a commodity rate.
func UsableRate(r CommodityRate, now int64, cfg Config) error {
	return Gate(r.UpdatedAt, r.Reliability, now, cfg)
}

// ValidateExternalData is the generic sanity bound check applied before
// trusting any externally supplied magnitude. Values outside [min, max]
// are rejected regardless of decimal scale; the scale itself must be
// representable.
func ValidateExternalData(value, min, max int64, decimals uint32) error {
	if decimals > money.MaxDecimals {
		return ErrValueOutOfBounds
	}
	if value < min || value > max {
		return ErrValueOutOfBounds
	}
	return nil
}

// ClampScore bounds a score into [MinScore, MaxScore].
func ClampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// NextScore revises a reliability score from one call outcome. Successes
// move the score a quarter of the remaining distance toward MaxScore
// (always at least one point); slow successes move half as far. Failures
// move a quarter of the way toward MinScore (always at least one point).
// A run of identical outcomes therefore approaches the bound
// monotonically without ever crossing it.
func NextScore(score int, success bool, latencyMs, slowMs int64) int {
	score = ClampScore(score)
	if success {
		step := (MaxScore - score) / 4
		if slowMs > 0 && latencyMs > slowMs {
			step /= 2
		}
		if step == 0 && score < MaxScore {
			step = 1
		}
		return ClampScore(score + step)
	}
	step := score / 4
	if step == 0 && score > MinScore {
		step = 1
	}
	return ClampScore(score - step)
}

// Reliability is the process-wide call-outcome tracker. It is reset only
// at re-initialization.
type Reliability struct {
	TotalCalls uint64
	Successes  uint64
	Failures   uint64
	Score      int
}

// NewReliability returns a tracker at the neutral starting score.
func NewReliability() Reliability {
	return Reliability{Score: InitialScore}
}

// Observe returns the tracker advanced by one call outcome.
func (r Reliability) Observe(success bool, latencyMs, slowMs int64) Reliability {
	r.TotalCalls++
	if success {
		r.Successes++
	} else {
		r.Failures++
	}
	r.Score = NextScore(r.Score, success, latencyMs, slowMs)
	return r
}

// Cost is the process-wide spend accumulator.
type Cost struct {
	TotalSpent  int64
	CallsMade   uint64
	AverageCost int64
}

// Track returns the accumulator advanced by one call of the declared cost,
// or fails with ErrCostExceedsLimit when the cost exceeds the per-call
// ceiling.
func (c Cost) Track(cost int64, cfg Config) (Cost, error) {
	if cost > cfg.CostLimitPerCall {
		return c, ErrCostExceedsLimit
	}
	total, err := money.Add(c.TotalSpent, cost)
	if err != nil {
		return c, err
	}
	c.TotalSpent = total
	c.CallsMade++
	c.AverageCost = c.TotalSpent / int64(c.CallsMade)
	return c, nil
}
