package models

// Default values applied when settings are provisioned for a new user.
const (
	DefaultInvoicePrefix = "INV"
	DefaultSequenceStart = 1001
	DefaultPaymentTerms  = "Net 30"
	DefaultTaxPercent    = 0
	FallbackCurrency     = "USD"
)

// Settings holds per-user invoicing defaults, one-to-one with User.
type Settings struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli" json:"updated_at"`
	OwnerID   string `gorm:"uniqueIndex;size:128;not null" json:"owner_id"`

	InvoicePrefix     string  `gorm:"size:20;not null" json:"invoice_prefix"`
	NextInvoiceNumber int     `gorm:"not null" json:"next_invoice_number"`
	DefaultCurrency   string  `gorm:"size:8" json:"default_currency"`
	DefaultTax        float64 `json:"default_tax"`
	PaymentTerms      string  `gorm:"size:100" json:"payment_terms"`
	Signature         string  `gorm:"type:text" json:"signature,omitempty"`
}

// DefaultSettings returns the settings record created alongside a new user.
func DefaultSettings(ownerID, preferredCurrency string) Settings {
	currency := preferredCurrency
	if currency == "" {
		currency = FallbackCurrency
	}
	return Settings{
		OwnerID:           ownerID,
		InvoicePrefix:     DefaultInvoicePrefix,
		NextInvoiceNumber: DefaultSequenceStart,
		DefaultCurrency:   currency,
		DefaultTax:        DefaultTaxPercent,
		PaymentTerms:      DefaultPaymentTerms,
	}
}
