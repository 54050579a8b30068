// Package money converts between wire-level decimal amounts and the int64
// centavo values the ledger stores. Balances are fixed-point: binary floats
// never touch an amount.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrSubCentavo = errors.New("amount has sub-centavo precision")

// Parse converts a decimal string such as "20.00" into centavos.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// FromDecimal converts an exact decimal into centavos. Amounts carrying more
// than two decimal places are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, ErrSubCentavo
	}
	return shifted.IntPart(), nil
}

// ToDecimal converts centavos back into an exact decimal.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders centavos as a two-place decimal string, e.g. 2000 -> "20.00".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}
