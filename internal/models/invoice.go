package models

// InvoiceStatus represents the lifecycle stage of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is one of the four known statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// StatusCategory is the semantic display category of a status.
type StatusCategory string

const (
	CategorySuccess StatusCategory = "success"
	CategoryInfo    StatusCategory = "info"
	CategoryNeutral StatusCategory = "neutral"
	CategoryDanger  StatusCategory = "danger"
)

// Category maps a status to its display category. Unrecognized values fall
// back to the neutral category rather than failing.
func (s InvoiceStatus) Category() StatusCategory {
	switch s {
	case InvoiceStatusPaid:
		return CategorySuccess
	case InvoiceStatusSent:
		return CategoryInfo
	case InvoiceStatusDraft:
		return CategoryNeutral
	case InvoiceStatusCancelled:
		return CategoryDanger
	default:
		return CategoryNeutral
	}
}

// Invoice represents a billing document for one client.
//
// Subtotal and Total are derived fields: they are recomputed from Items and
// Tax before every write and never trusted as caller-supplied values.
type Invoice struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli" json:"updated_at"`
	OwnerID   string `gorm:"index;size:128;not null" json:"owner_id"`

	// Number is caller-supplied or allocated from the owner's settings
	// sequence. Uniqueness is not enforced.
	Number string `gorm:"size:50;not null" json:"invoice_number"`

	ClientName    string `gorm:"size:255;not null" json:"client_name"`
	ClientEmail   string `gorm:"size:255" json:"client_email"`
	ClientAddress string `gorm:"size:500" json:"client_address"`

	// Items are ordered by Position; insertion order is significant for
	// rendering.
	Items []LineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`

	Currency string  `gorm:"size:8;not null" json:"currency"`
	Tax      float64 `json:"tax"`
	Subtotal float64 `json:"subtotal"`
	Total    float64 `json:"total"`

	Status InvoiceStatus `gorm:"size:20;default:'draft'" json:"status"`

	// DueDate is a calendar date stored as YYYY-MM-DD.
	DueDate string `gorm:"size:10" json:"due_date"`
	Notes   string `gorm:"type:text" json:"notes,omitempty"`
}

// LineItem is a single billable row on an invoice. Amount is derived from
// Quantity and Rate and has no independent lifecycle.
type LineItem struct {
	ID        uint `gorm:"primaryKey" json:"-"`
	InvoiceID uint `gorm:"index;not null" json:"-"`
	Position  int  `gorm:"not null;default:0" json:"-"`

	Description string  `gorm:"size:500" json:"description"`
	Quantity    int     `gorm:"not null;default:1" json:"quantity"`
	Rate        float64 `gorm:"not null" json:"rate"`
	Amount      float64 `gorm:"not null" json:"amount"`
}
