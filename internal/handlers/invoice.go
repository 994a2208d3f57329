// Package handlers exposes the JSON API. Each handler owns one resource and
// is wired onto the mux in cmd/server; authentication has already happened by
// the time a request reaches these methods.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invoicerhq/invoicer/internal/httpx"
	"github.com/invoicerhq/invoicer/internal/identity"
	"github.com/invoicerhq/invoicer/internal/mail"
	"github.com/invoicerhq/invoicer/internal/models"
	"github.com/invoicerhq/invoicer/internal/pdf"
	"github.com/invoicerhq/invoicer/internal/services"
	"github.com/invoicerhq/invoicer/internal/store"
	"github.com/invoicerhq/invoicer/internal/validation"
)

// defaultDueDays is applied when a new invoice omits its due date.
const defaultDueDays = 30

type InvoiceHandler struct {
	store     *store.Store
	sender    mail.Sender
	lifecycle *services.Lifecycle
	log       *zap.Logger

	// render is swapped in tests to simulate generation failures.
	render func(*models.Invoice) ([]byte, error)
}

func NewInvoiceHandler(s *store.Store, sender mail.Sender, lc *services.Lifecycle, log *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{store: s, sender: sender, lifecycle: lc, log: log, render: pdf.Render}
}

// lineItemRequest mirrors models.LineItem but accepts the derived amount for
// logging purposes; the stored value is always recomputed.
type lineItemRequest struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

type invoiceRequest struct {
	Number        string            `json:"invoice_number"`
	ClientName    string            `json:"client_name"`
	ClientEmail   string            `json:"client_email"`
	ClientAddress string            `json:"client_address"`
	Items         []lineItemRequest `json:"items"`
	Currency      string            `json:"currency"`
	Tax           *float64          `json:"tax"`
	DueDate       string            `json:"due_date"`
	Notes         string            `json:"notes"`
}

func (req *invoiceRequest) validate() validation.Violations {
	v := make(validation.Violations)
	validation.Required("client_name", req.ClientName, v)
	validation.Email("client_email", req.ClientEmail, v)
	if req.Currency != "" {
		validation.Currency("currency", req.Currency, v)
	}
	if req.Tax != nil {
		validation.RangeFloat("tax", *req.Tax, 0, 100, v)
	}
	if req.DueDate != "" {
		validation.Date("due_date", req.DueDate, v)
	}
	for i, item := range req.Items {
		validation.Required(fmt.Sprintf("items.%d.description", i), item.Description, v)
	}
	return v
}

func (req *invoiceRequest) toModel(owner string) *models.Invoice {
	inv := &models.Invoice{
		OwnerID:       owner,
		Number:        strings.TrimSpace(req.Number),
		ClientName:    strings.TrimSpace(req.ClientName),
		ClientEmail:   strings.TrimSpace(req.ClientEmail),
		ClientAddress: req.ClientAddress,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		DueDate:       req.DueDate,
		Notes:         req.Notes,
	}
	if req.Tax != nil {
		inv.Tax = *req.Tax
	}
	for _, item := range req.Items {
		inv.Items = append(inv.Items, models.LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Amount:      item.Amount,
		})
	}
	return inv
}

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	invoices, err := h.store.ListInvoices(principal.ID)
	if err != nil {
		h.log.Error("list invoices", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list invoices", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())

	var req invoiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if v := req.validate(); !v.Empty() {
		httpx.Error(w, http.StatusUnprocessableEntity, "validation failed", v)
		return
	}

	inv := req.toModel(principal.ID)
	if err := h.applyDefaults(inv, req.Tax != nil); err != nil {
		h.log.Error("apply invoice defaults", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create invoice", nil)
		return
	}

	if err := h.store.CreateInvoice(inv); err != nil {
		if errors.Is(err, store.ErrUnknownOwner) {
			httpx.Error(w, http.StatusForbidden, "unknown account", nil)
			return
		}
		h.log.Error("create invoice", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create invoice", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// applyDefaults fills currency, tax, due date, and number from the owner's
// settings when the request omits them. taxSet distinguishes "tax: 0" from an
// absent tax field.
func (h *InvoiceHandler) applyDefaults(inv *models.Invoice, taxSet bool) error {
	settings, err := h.store.GetSettings(inv.OwnerID)
	if err != nil {
		return err
	}
	if inv.Currency == "" {
		inv.Currency = settings.DefaultCurrency
	}
	if !taxSet {
		inv.Tax = settings.DefaultTax
	}
	if inv.DueDate == "" {
		inv.DueDate = time.Now().UTC().AddDate(0, 0, defaultDueDays).Format("2006-01-02")
	}
	if inv.Number == "" {
		number, err := h.store.AllocateInvoiceNumber(inv.OwnerID)
		if err != nil {
			return err
		}
		inv.Number = number
	}
	return nil
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.fetch(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.fetch(w, r)
	if !ok {
		return
	}

	var req invoiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if v := req.validate(); !v.Empty() {
		httpx.Error(w, http.StatusUnprocessableEntity, "validation failed", v)
		return
	}

	next := req.toModel(inv.OwnerID)
	next.ID = inv.ID
	next.CreatedAt = inv.CreatedAt
	next.Status = inv.Status
	if next.Number == "" {
		next.Number = inv.Number
	}
	if next.Currency == "" {
		next.Currency = inv.Currency
	}
	if req.Tax == nil {
		next.Tax = inv.Tax
	}
	if next.DueDate == "" {
		next.DueDate = inv.DueDate
	}

	if err := h.store.UpdateInvoice(next); err != nil {
		h.log.Error("update invoice", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update invoice", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, next)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *InvoiceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	inv, err := h.store.SetStatus(principal.ID, id, models.InvoiceStatus(req.Status), h.lifecycle)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "invoice not found", nil)
		return
	case errors.Is(err, services.ErrInvalidStatus):
		httpx.Error(w, http.StatusUnprocessableEntity, "validation failed",
			validation.Violations{"status": "unknown status"})
		return
	case errors.Is(err, services.ErrTransitionNotAllowed):
		httpx.Error(w, http.StatusConflict, "transition not allowed", nil)
		return
	case err != nil:
		h.log.Error("set invoice status", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update status", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteInvoice(principal.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "invoice not found", nil)
			return
		}
		h.log.Error("delete invoice", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to delete invoice", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PDF streams the rendered document as a download.
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.fetch(w, r)
	if !ok {
		return
	}
	data, err := h.render(inv)
	if err != nil {
		h.log.Error("render invoice", zap.String("number", inv.Number), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to render invoice", nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "invoice-"+inv.Number+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Send renders the invoice, emails it, and marks it sent. The status changes
// only after delivery succeeds; a transport failure leaves the record as-is.
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	inv, ok := h.fetch(w, r)
	if !ok {
		return
	}

	// All fields are optional; a body-less POST falls back to defaults.
	var req sendRequest
	if err := httpx.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.To == "" {
		req.To = inv.ClientEmail
	}
	v := make(validation.Violations)
	validation.Required("to", req.To, v)
	validation.Email("to", req.To, v)
	if !v.Empty() {
		httpx.Error(w, http.StatusUnprocessableEntity, "validation failed", v)
		return
	}

	user, err := h.store.GetUserBySubject(principal.ID)
	if err != nil {
		h.log.Error("load sender profile", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to send invoice", nil)
		return
	}

	data, err := h.render(inv)
	if err != nil {
		h.log.Error("render invoice", zap.String("number", inv.Number), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to render invoice", nil)
		return
	}

	msg := buildInvoiceMail(inv, user, req)
	msg.Attachments = []mail.Attachment{
		{Filename: "invoice-" + inv.Number + ".pdf", Content: data},
	}
	if err := h.sender.Send(r.Context(), msg); err != nil {
		h.log.Error("send invoice mail", zap.String("number", inv.Number), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to send invoice", nil)
		return
	}

	if inv.Status != models.InvoiceStatusSent {
		updated, err := h.store.SetStatus(principal.ID, inv.ID, models.InvoiceStatusSent, h.lifecycle)
		if err != nil {
			h.log.Error("mark invoice sent", zap.String("number", inv.Number), zap.Error(err))
			httpx.Error(w, http.StatusInternalServerError, "sent but failed to update status", nil)
			return
		}
		inv = updated
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// buildInvoiceMail fills in the default subject and body when the request
// leaves them empty.
func buildInvoiceMail(inv *models.Invoice, user *models.User, req sendRequest) mail.Message {
	from := user.BusinessName
	if from == "" {
		from = user.Name
	}
	subject := req.Subject
	if subject == "" {
		subject = fmt.Sprintf("Invoice %s from %s", inv.Number, from)
	}
	body := req.Message
	if body == "" {
		body = fmt.Sprintf(
			"<p>Hello %s,</p><p>Please find attached invoice %s.</p><p>Thank you for your business!</p>",
			inv.ClientName, inv.Number)
	}
	return mail.Message{To: req.To, Subject: subject, HTML: body}
}

// fetch loads the invoice named in the path for the authenticated owner and
// writes the error response itself when that fails.
func (h *InvoiceHandler) fetch(w http.ResponseWriter, r *http.Request) (*models.Invoice, bool) {
	principal, _ := identity.FromContext(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	inv, err := h.store.GetInvoice(principal.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "invoice not found", nil)
			return nil, false
		}
		h.log.Error("load invoice", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to load invoice", nil)
		return nil, false
	}
	return inv, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid invoice id", nil)
		return 0, false
	}
	return uint(id), true
}
