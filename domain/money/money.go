// Package money provides checked fixed-point arithmetic for monetary
// amounts. Amounts are int64 values with an implied decimal scale carried
// alongside them (rates and prices are scaled by 10^decimals). Every
// operation that could overflow fails with ErrOverflow instead of wrapping
// or saturating.
package money

import (
	"errors"
	"math"
	"math/big"
)

var (
	// ErrOverflow is returned when a result does not fit in int64.
	ErrOverflow = errors.New("amount overflow")

	// ErrDivideByZero is returned for a zero divisor.
	ErrDivideByZero = errors.New("divide by zero")
)

// MaxDecimals bounds the decimal scale accepted from external data.
const MaxDecimals = 18

// Add returns a+b, failing on overflow.
func Add(a, b int64) (int64, error) {
	sum := a + b
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Mul returns a*b, failing on overflow.
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a || (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, ErrOverflow
	}
	return p, nil
}

// MulDiv returns (a*b)/div with full intermediate precision and truncation
// toward zero, matching fixed-point rate application (amount * rate / 10^d).
// Only the final result must fit in int64.
func MulDiv(a, b, div int64) (int64, error) {
	if div == 0 {
		return 0, ErrDivideByZero
	}
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	p.Quo(p, big.NewInt(div))
	if !p.IsInt64() {
		return 0, ErrOverflow
	}
	return p.Int64(), nil
}

// Pow10 returns 10^n for n <= MaxDecimals.
func Pow10(n uint32) (int64, error) {
	if n > MaxDecimals {
		return 0, ErrOverflow
	}
	r := int64(1)
	for i := uint32(0); i < n; i++ {
		r *= 10
	}
	return r, nil
}

// Percent returns amount*pct/100 with truncating integer division.
func Percent(amount, pct int64) (int64, error) {
	return MulDiv(amount, pct, 100)
}
