// Package money converts between boundary decimal amounts and the int64 minor
// units the ledger stores. Floating point is never used; repeated small deltas
// must not drift.
package money

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// scales maps ISO 4217 codes to their number of fractional digits.
var scales = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CHF": 2,
	"INR": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"BHD": 3,
}

// Scale returns the fractional-digit count for a currency code.
func Scale(currency string) (int32, error) {
	s, ok := scales[currency]
	if !ok {
		return 0, domain.ErrInvalidCurrency
	}
	return s, nil
}

// Parse converts a positive decimal string like "100.00" into minor units
// (10000 for USD). It rejects unknown currencies, non-positive amounts, and
// amounts with more fractional digits than the currency allows.
func Parse(amount, currency string) (int64, error) {
	scale, err := Scale(currency)
	if err != nil {
		return 0, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, domain.ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}

	minor := d.Shift(scale)
	if !minor.IsInteger() {
		return 0, domain.ErrInvalidAmount
	}
	if minor.Cmp(decimal.NewFromInt(math.MaxInt64)) > 0 {
		return 0, domain.ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// Format renders minor units as a fixed-point decimal string with the
// currency's scale. Unknown currencies fall back to scale 0.
func Format(minor int64, currency string) string {
	scale, err := Scale(currency)
	if err != nil {
		scale = 0
	}
	return decimal.New(minor, -scale).StringFixed(scale)
}
