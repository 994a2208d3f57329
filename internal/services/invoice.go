package services

import (
	"github.com/invoicerhq/invoicer/internal/models"
	"github.com/shopspring/decimal"
)

// InvoiceService encapsulates invoice arithmetic. All money math goes through
// decimal to avoid binary floating-point accumulation error; results are
// rounded to two minor-unit places for the currencies in scope.
type InvoiceService struct{}

func NewInvoiceService() *InvoiceService { return &InvoiceService{} }

// LineAmount computes quantity × rate for one line item. Quantity is clamped
// to at least 1 and negative rates are treated as zero.
func (s *InvoiceService) LineAmount(quantity int, rate float64) float64 {
	amount, _ := s.lineAmount(quantity, rate).Float64()
	return amount
}

func (s *InvoiceService) lineAmount(quantity int, rate float64) decimal.Decimal {
	if quantity < 1 {
		quantity = 1
	}
	r := decimal.NewFromFloat(rate)
	if r.IsNegative() {
		r = decimal.Zero
	}
	return r.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// Subtotal sums the line amounts. An empty item list yields zero.
func (s *InvoiceService) Subtotal(items []models.LineItem) float64 {
	subtotal, _ := s.subtotal(items).Float64()
	return subtotal
}

func (s *InvoiceService) subtotal(items []models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(s.lineAmount(item.Quantity, item.Rate))
	}
	return sum.Round(2)
}

// Total computes subtotal + subtotal * taxPercent / 100. Range validation of
// taxPercent happens at the input boundary, not here.
func (s *InvoiceService) Total(subtotal, taxPercent float64) float64 {
	sub := decimal.NewFromFloat(subtotal)
	total, _ := s.total(sub, taxPercent).Float64()
	return total
}

func (s *InvoiceService) total(subtotal decimal.Decimal, taxPercent float64) decimal.Decimal {
	tax := subtotal.Mul(decimal.NewFromFloat(taxPercent)).Div(decimal.NewFromInt(100))
	return subtotal.Add(tax).Round(2)
}

// Recompute derives every line amount, the subtotal, and the total from the
// invoice's current items and tax percentage, overwriting whatever values the
// record carried. It is invoked before every persistence write so that
// caller-supplied derived fields are never authoritative.
func (s *InvoiceService) Recompute(inv *models.Invoice) {
	for i := range inv.Items {
		if inv.Items[i].Quantity < 1 {
			inv.Items[i].Quantity = 1
		}
		if inv.Items[i].Rate < 0 {
			inv.Items[i].Rate = 0
		}
		inv.Items[i].Amount = s.LineAmount(inv.Items[i].Quantity, inv.Items[i].Rate)
		inv.Items[i].Position = i
	}
	subtotal := s.subtotal(inv.Items)
	inv.Subtotal, _ = subtotal.Float64()
	inv.Total, _ = s.total(subtotal, inv.Tax).Float64()
}
