package services

import (
	"errors"
	"fmt"

	"github.com/invoicerhq/invoicer/internal/models"
)

var (
	// ErrInvalidStatus is returned when a status value is not one of the
	// four known literals.
	ErrInvalidStatus = errors.New("invalid invoice status")
	// ErrTransitionNotAllowed is returned in strict mode when the guarded
	// transition table forbids the requested change.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// strictTransitions is the guarded transition table used when strict mode is
// enabled. The default mode imposes no guard: any status may be set from any
// other, which matches the workflow the UI exposes.
var strictTransitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusDraft:     {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:      {models.InvoiceStatusPaid, models.InvoiceStatusCancelled, models.InvoiceStatusDraft},
	models.InvoiceStatusPaid:      {models.InvoiceStatusDraft, models.InvoiceStatusCancelled},
	models.InvoiceStatusCancelled: {models.InvoiceStatusDraft},
}

// Lifecycle governs invoice status transitions.
type Lifecycle struct {
	// Strict enables the guarded transition table.
	Strict bool
}

func NewLifecycle(strict bool) *Lifecycle { return &Lifecycle{Strict: strict} }

// CanTransition reports whether from may change to to. Setting the same
// status again is always a no-op and allowed.
func (l *Lifecycle) CanTransition(from, to models.InvoiceStatus) bool {
	if !to.Valid() {
		return false
	}
	if !l.Strict || from == to {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies the status change to the invoice, or returns an error
// describing why it is rejected.
func (l *Lifecycle) Transition(inv *models.Invoice, to models.InvoiceStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !l.CanTransition(inv.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, inv.Status, to)
	}
	inv.Status = to
	return nil
}
