package brokerage

import "github.com/shopspring/decimal"

// quantityPlaces is the canonical number of fractional digits for share
// quantities. Four digits is enough to represent the fractional shares that
// dividend reinvestment produces.
const quantityPlaces = 4

// QuantizeQuantity rounds a raw quantity to the canonical number of
// fractional digits, collapsing representation noise ("17.000" and "17"
// quantize to equal values). Ties round to even. It is idempotent.
func QuantizeQuantity(raw decimal.Decimal) decimal.Decimal {
	return raw.RoundBank(quantityPlaces)
}

// ParseDecimal converts broker-native numeric text into an exact decimal,
// reporting a ValidationError naming the offending field.
func ParseDecimal(field, text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, Invalidf("field %s: cannot parse %q as a decimal", field, text)
	}
	return d, nil
}
