// Package rewards implements the fixed-point reward and penalty arithmetic
// of the staking ledger. All amounts are 256-bit unsigned base units and
// every division truncates toward zero.
package rewards

import (
	"errors"

	"github.com/holiman/uint256"
)

// SecondsPerYear is the accrual year. No leap-year adjustment.
const SecondsPerYear = 365 * 86400

// ErrOverflow is returned when a result does not fit in 256 bits.
var ErrOverflow = errors.New("arithmetic overflow")

var (
	hundred   = uint256.NewInt(100)
	yearDenom = uint256.NewInt(100 * SecondsPerYear)
)

// Accrue returns amount * rate * elapsed / (100 * SecondsPerYear).
//
// rate is a whole percentage per year. The product is carried in 512 bits
// so any 256-bit amount over any elapsed time is exact until the final
// quotient itself overflows. A non-positive elapsed accrues nothing.
func Accrue(amount *uint256.Int, elapsed int64, rate uint64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || elapsed <= 0 || rate == 0 {
		return new(uint256.Int), nil
	}
	// rate and elapsed are both < 2^64, so the factor fits in 128 bits.
	factor := new(uint256.Int).Mul(uint256.NewInt(rate), uint256.NewInt(uint64(elapsed)))
	out, overflow := new(uint256.Int).MulDivOverflow(amount, factor, yearDenom)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Penalty returns amount * rate / 100.
func Penalty(amount *uint256.Int, rate uint64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || rate == 0 {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(rate), hundred)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Add returns a + b, or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Sub returns a - b, or ErrOverflow when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return out, nil
}
