package mathutil

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiPrecision is the number of decimals of the chain's minor unit
const WeiPrecision = 18

var (
	// ErrNegativeAmount ...
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrMalformedWeiAmount ...
	ErrMalformedWeiAmount = errors.New("wei amount must be a base 10 integer")
)

func init() {
	decimal.DivisionPrecision = WeiPrecision
}

// ToWei converts a display-decimal amount to integer minor units. The
// conversion truncates below one wei, it never rounds up funds that were
// not paid.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return amount.Shift(WeiPrecision).Truncate(0).BigInt(), nil
}

// FromWei converts integer minor units to a display-decimal amount
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -WeiPrecision)
}

// ParseWei parses a base 10 integer string into minor units
func ParseWei(s string) (*big.Int, error) {
	wei, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrMalformedWeiAmount
	}
	return wei, nil
}

// WithinTolerance tells whether observed deviates from expected by at most
// tolerance (a ratio, e.g. 0.005 for ±0.5%). The comparison happens on
// integer minor units scaled by the tolerance denominator, so display-unit
// rounding never produces floating point drift.
func WithinTolerance(expected, observed *big.Int, tolerance decimal.Decimal) bool {
	if expected.Sign() == 0 {
		return observed.Sign() == 0
	}

	diff := new(big.Int).Sub(observed, expected)
	diff.Abs(diff)

	// diff/expected <= tolerance  <=>  diff * denom <= expected * num
	num := tolerance.Shift(WeiPrecision).Truncate(0).BigInt()
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(WeiPrecision), nil)

	lhs := new(big.Int).Mul(diff, denom)
	rhs := new(big.Int).Mul(expected, num)
	return lhs.Cmp(rhs) <= 0
}
