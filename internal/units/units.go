// Package units converts between human token amounts and on-ledger base
// units. Ledger math stays in uint256; decimal is only used at the edges
// (config, JSON, CLI) so display rounding never leaks into balances.
package units

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/slimefarm/ledger-engine/internal/fault"
)

// Decimals is the number of implied decimal places of one token.
const Decimals = 18

// ParseTokens converts a token string such as "100.5" into base units.
// Fractions finer than one base unit are rejected.
func ParseTokens(s string) (uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%w: %q is not a number", fault.ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a token amount into base units.
func FromDecimal(d decimal.Decimal) (uint256.Int, error) {
	if d.IsNegative() {
		return uint256.Int{}, fmt.Errorf("%w: %s is negative", fault.ErrInvalidAmount, d)
	}
	base := d.Shift(Decimals)
	if !base.Equal(base.Truncate(0)) {
		return uint256.Int{}, fmt.Errorf("%w: %s has more than %d decimals", fault.ErrInvalidAmount, d, Decimals)
	}
	v, overflow := uint256.FromBig(base.BigInt())
	if overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s does not fit 256 bits", fault.ErrOverflow, d)
	}
	return *v, nil
}

// ToDecimal converts base units to a token amount.
func ToDecimal(v uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -Decimals)
}

// FormatTokens renders base units as a token string without trailing zeros.
func FormatTokens(v uint256.Int) string {
	return ToDecimal(v).String()
}

// Tokens returns n whole tokens in base units.
func Tokens(n uint64) uint256.Int {
	var v uint256.Int
	v.Mul(uint256.NewInt(n), oneToken())
	return v
}

// MustParse is ParseTokens for constants; it panics on bad input.
func MustParse(s string) uint256.Int {
	v, err := ParseTokens(s)
	if err != nil {
		panic(err)
	}
	return v
}

func oneToken() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))
}
