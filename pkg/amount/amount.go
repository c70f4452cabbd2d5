// Package amount implements exact arithmetic on decimal amount strings such as
// "0.01". Amounts are never converted to floating point.
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Parse parses a decimal amount string.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// IsPositive reports whether s is a valid amount greater than zero.
func IsPositive(s string) bool {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.IsPositive()
}

// Compare returns -1, 0 or 1 when a is less than, equal to or greater than b.
func Compare(a, b string) (int, error) {
	da, err := Parse(a)
	if err != nil {
		return 0, err
	}
	db, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

// ToBaseUnits scales a decimal amount into integer base units (wei, lamports,
// token units). Amounts with more fractional digits than decimals are rejected.
func ToBaseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits renders integer base units as a decimal amount string.
func FromBaseUnits(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}
