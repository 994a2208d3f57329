package money

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		code   string
		want   string
	}{
		{"USD with grouping", 1234.5, "USD", "$1,234.50"},
		{"EUR symbol", 99.99, "EUR", "€99.99"},
		{"GBP small", 0.5, "GBP", "£0.50"},
		{"KES falls back to code", 1160, "KES", "KES 1,160.00"},
		{"JPY has no minor units", 1160.4, "JPY", "¥1,160"},
		{"CAD prefixed symbol", 20, "CAD", "CA$20.00"},
		{"large grouping", 1234567.89, "USD", "$1,234,567.89"},
		{"rounds to minor unit", 10.005, "USD", "$10.01"},
		{"negative", -42.1, "USD", "-$42.10"},
		{"zero", 0, "USD", "$0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.amount, tt.code)
			if err != nil {
				t.Fatalf("Format() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Format(%v, %q) = %q, want %q", tt.amount, tt.code, got, tt.want)
			}
		})
	}
}

func TestFormatInvalidCode(t *testing.T) {
	for _, code := range []string{"", "ksh?", "NOPE", "usd1"} {
		if _, err := Format(10, code); err == nil {
			t.Errorf("Format with code %q: expected error", code)
		}
	}
}

func TestParseCodeNormalizes(t *testing.T) {
	unit, err := ParseCode(" usd ")
	if err != nil {
		t.Fatalf("ParseCode: %v", err)
	}
	if unit.String() != "USD" {
		t.Errorf("ParseCode normalized to %q, want USD", unit.String())
	}
}
