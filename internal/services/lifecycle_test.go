package services

import (
	"errors"
	"testing"

	"github.com/invoicerhq/invoicer/internal/models"
)

var allStatuses = []models.InvoiceStatus{
	models.InvoiceStatusDraft,
	models.InvoiceStatusSent,
	models.InvoiceStatusPaid,
	models.InvoiceStatusCancelled,
}

func TestUnrestrictedAllowsAnyTransition(t *testing.T) {
	lc := NewLifecycle(false)
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			inv := &models.Invoice{Status: from}
			if err := lc.Transition(inv, to); err != nil {
				t.Errorf("%s -> %s: %v", from, to, err)
			}
			if inv.Status != to {
				t.Errorf("%s -> %s: status not applied", from, to)
			}
		}
	}
}

func TestInvalidStatusRejected(t *testing.T) {
	lc := NewLifecycle(false)
	inv := &models.Invoice{Status: models.InvoiceStatusDraft}
	err := lc.Transition(inv, "archived")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if inv.Status != models.InvoiceStatusDraft {
		t.Fatalf("status changed on rejected transition")
	}
}

func TestStrictTransitionTable(t *testing.T) {
	lc := NewLifecycle(true)
	tests := []struct {
		from, to models.InvoiceStatus
		allowed  bool
	}{
		{models.InvoiceStatusDraft, models.InvoiceStatusSent, true},
		{models.InvoiceStatusDraft, models.InvoiceStatusCancelled, true},
		{models.InvoiceStatusDraft, models.InvoiceStatusPaid, false},
		{models.InvoiceStatusSent, models.InvoiceStatusPaid, true},
		{models.InvoiceStatusSent, models.InvoiceStatusDraft, true},
		{models.InvoiceStatusPaid, models.InvoiceStatusDraft, true},
		{models.InvoiceStatusPaid, models.InvoiceStatusSent, false},
		{models.InvoiceStatusCancelled, models.InvoiceStatusDraft, true},
		{models.InvoiceStatusCancelled, models.InvoiceStatusPaid, false},
	}
	for _, tt := range tests {
		if got := lc.CanTransition(tt.from, tt.to); got != tt.allowed {
			t.Errorf("strict %s -> %s = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStrictSameStatusIsNoOp(t *testing.T) {
	lc := NewLifecycle(true)
	for _, s := range allStatuses {
		if !lc.CanTransition(s, s) {
			t.Errorf("%s -> %s should be allowed", s, s)
		}
	}
}

func TestStatusCategory(t *testing.T) {
	tests := []struct {
		status models.InvoiceStatus
		want   models.StatusCategory
	}{
		{models.InvoiceStatusPaid, models.CategorySuccess},
		{models.InvoiceStatusSent, models.CategoryInfo},
		{models.InvoiceStatusDraft, models.CategoryNeutral},
		{models.InvoiceStatusCancelled, models.CategoryDanger},
		{"bogus", models.CategoryNeutral},
	}
	for _, tt := range tests {
		if got := tt.status.Category(); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
