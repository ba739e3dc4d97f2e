package types

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Denomination of the staked token. All ledger values are base units.
const (
	Decimals = 18
)

// OneToken is 10^18 base units.
var OneToken = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

// Tokens returns n whole tokens in base units.
func Tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), OneToken)
}

// ParseAmount parses a base-unit decimal string ("1000000000000000000").
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// ParseTokens parses a human decimal token amount ("1.5", "1000") into
// base units. At most Decimals fractional digits are accepted.
func ParseTokens(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount")
	}

	wholeStr, fracStr, hasFrac := strings.Cut(s, ".")
	if wholeStr == "" {
		wholeStr = "0"
	}
	whole, err := uint256.FromDecimal(wholeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid whole part %q: %w", wholeStr, err)
	}

	frac := new(uint256.Int)
	if hasFrac {
		if fracStr == "" || len(fracStr) > Decimals {
			return nil, fmt.Errorf("fractional part must have 1 to %d digits", Decimals)
		}
		// Pad to Decimals digits.
		fracStr += strings.Repeat("0", Decimals-len(fracStr))
		frac, err = uint256.FromDecimal(fracStr)
		if err != nil {
			return nil, fmt.Errorf("invalid fractional part: %w", err)
		}
	}

	result, overflow := new(uint256.Int).MulOverflow(whole, OneToken)
	if overflow {
		return nil, fmt.Errorf("amount too large")
	}
	if _, overflow := result.AddOverflow(result, frac); overflow {
		return nil, fmt.Errorf("amount too large")
	}
	return result, nil
}

// FormatAmount renders base units as a decimal token string, trimming
// trailing zeros from the fractional part ("1.5", "1000").
func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	whole, frac := new(uint256.Int).DivMod(v, OneToken, new(uint256.Int))
	if frac.IsZero() {
		return whole.Dec()
	}
	fs := frac.Dec()
	fs = strings.Repeat("0", Decimals-len(fs)) + fs
	fs = strings.TrimRight(fs, "0")
	return whole.Dec() + "." + fs
}
