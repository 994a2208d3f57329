package models

// User represents an authenticated user in the system.
// SubjectID is the stable id issued by the external identity provider;
// it is the owner key for invoices and settings.
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli" json:"updated_at"`
	SubjectID string `gorm:"uniqueIndex;size:128;not null" json:"subject_id"`

	Email string `gorm:"size:255;not null" json:"email"`
	Name  string `gorm:"size:255" json:"name,omitempty"`

	// Optional business profile printed on invoices.
	BusinessName    string `gorm:"size:255" json:"business_name,omitempty"`
	BusinessEmail   string `gorm:"size:255" json:"business_email,omitempty"`
	BusinessPhone   string `gorm:"size:50" json:"business_phone,omitempty"`
	BusinessAddress string `gorm:"size:500" json:"business_address,omitempty"`

	PreferredCurrency string `gorm:"size:8" json:"preferred_currency,omitempty"`
	Theme             string `gorm:"size:16" json:"theme,omitempty"`
}
