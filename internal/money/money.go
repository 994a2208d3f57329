// Package money formats monetary amounts for display. Formatting is fixed to
// a single display locale (en-US style symbol and digit grouping); the
// currency code selects the symbol and minor-unit precision.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// symbols holds display symbols for the currencies offered in the invoice
// form. Codes without an entry render as "CODE amount".
var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CAD": "CA$",
	"AUD": "A$",
}

// ParseCode validates an ISO 4217 currency code. Unknown or malformed codes
// are a caller error.
func ParseCode(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	return unit, nil
}

// Format renders amount as a localized display string for the given currency
// code, rounded to the currency's standard minor-unit precision.
func Format(amount float64, code string) (string, error) {
	unit, err := ParseCode(code)
	if err != nil {
		return "", err
	}
	scale, _ := currency.Standard.Rounding(unit)

	d := decimal.NewFromFloat(amount).Round(int32(scale))
	negative := d.IsNegative()
	if negative {
		d = d.Neg()
	}

	intPart, frac, _ := strings.Cut(d.StringFixed(int32(scale)), ".")
	formatted := groupThousands(intPart)
	if frac != "" {
		formatted += "." + frac
	}

	symbol, ok := symbols[unit.String()]
	if !ok {
		symbol = unit.String() + " "
	}
	if negative {
		return "-" + symbol + formatted, nil
	}
	return symbol + formatted, nil
}

// groupThousands inserts comma separators into a string of digits.
func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
