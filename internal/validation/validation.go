// Package validation collects field-level input violations at the HTTP
// boundary. An operation is only attempted when the set is empty.
package validation

import (
	"net/mail"
	"strings"
	"time"

	"github.com/invoicerhq/invoicer/internal/money"
)

// Violations maps a field name to a violation code.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Required records a violation when value is blank.
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// Email records a violation when value is not a parseable address. Blank
// values pass; combine with Required when the field is mandatory.
func Email(field, value string, v Violations) {
	if value == "" {
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		v[field] = "invalid_email"
	}
}

// RangeFloat records a violation when val falls outside [minVal, maxVal].
func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// PositiveInt records a violation when val is less than one.
func PositiveInt(field string, val int, v Violations) {
	if val < 1 {
		v[field] = "must_be_positive"
	}
}

// Currency records a violation when value is not a recognized ISO 4217
// code. Blank values pass.
func Currency(field, value string, v Violations) {
	if value == "" {
		return
	}
	if _, err := money.ParseCode(value); err != nil {
		v[field] = "invalid_currency"
	}
}

// Date records a violation when value is not a YYYY-MM-DD calendar date.
// Blank values pass.
func Date(field, value string, v Violations) {
	if value == "" {
		return
	}
	if !validDate(value) {
		v[field] = "invalid_date"
	}
}

func validDate(s string) bool {
	// time.Parse tolerates single-digit fields, so pin the width first.
	if len(s) != 10 {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
