package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/invoicerhq/invoicer/internal/httpx"
	"github.com/invoicerhq/invoicer/internal/identity"
	"github.com/invoicerhq/invoicer/internal/store"
	"github.com/invoicerhq/invoicer/internal/validation"
)

type SettingsHandler struct {
	store *store.Store
	log   *zap.Logger
}

func NewSettingsHandler(s *store.Store, log *zap.Logger) *SettingsHandler {
	return &SettingsHandler{store: s, log: log}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	settings, err := h.store.GetSettings(principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "settings not found", nil)
			return
		}
		h.log.Error("load settings", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to load settings", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

type settingsUpdateRequest struct {
	InvoicePrefix     *string  `json:"invoice_prefix"`
	NextInvoiceNumber *int     `json:"next_invoice_number"`
	DefaultCurrency   *string  `json:"default_currency"`
	DefaultTax        *float64 `json:"default_tax"`
	PaymentTerms      *string  `json:"payment_terms"`
	Signature         *string  `json:"signature"`
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())

	var req settingsUpdateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	v := make(validation.Violations)
	if req.DefaultCurrency != nil {
		validation.Currency("default_currency", *req.DefaultCurrency, v)
	}
	if req.DefaultTax != nil {
		validation.RangeFloat("default_tax", *req.DefaultTax, 0, 100, v)
	}
	if req.NextInvoiceNumber != nil {
		validation.PositiveInt("next_invoice_number", *req.NextInvoiceNumber, v)
	}
	if req.InvoicePrefix != nil {
		validation.Required("invoice_prefix", *req.InvoicePrefix, v)
	}
	if !v.Empty() {
		httpx.Error(w, http.StatusUnprocessableEntity, "validation failed", v)
		return
	}

	settings, err := h.store.UpdateSettings(principal.ID, store.SettingsUpdate{
		InvoicePrefix:     req.InvoicePrefix,
		NextInvoiceNumber: req.NextInvoiceNumber,
		DefaultCurrency:   req.DefaultCurrency,
		DefaultTax:        req.DefaultTax,
		PaymentTerms:      req.PaymentTerms,
		Signature:         req.Signature,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "settings not found", nil)
			return
		}
		h.log.Error("update settings", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update settings", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}
