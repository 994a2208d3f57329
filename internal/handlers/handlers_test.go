package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/invoicerhq/invoicer/internal/identity"
	"github.com/invoicerhq/invoicer/internal/mail"
	"github.com/invoicerhq/invoicer/internal/models"
	"github.com/invoicerhq/invoicer/internal/services"
	"github.com/invoicerhq/invoicer/internal/store"
)

// fakeSender records messages and optionally fails every delivery.
type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type env struct {
	store    *store.Store
	sender   *fakeSender
	invoices *InvoiceHandler
	users    *UserHandler
	settings *SettingsHandler
	owner    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Settings{}, &models.Invoice{}, &models.LineItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := store.New(db)
	sender := &fakeSender{}
	log := zap.NewNop()
	lc := services.NewLifecycle(false)

	e := &env{
		store:    s,
		sender:   sender,
		invoices: NewInvoiceHandler(s, sender, lc, log),
		users:    NewUserHandler(s, log),
		settings: NewSettingsHandler(s, log),
		owner:    "kp_handler",
	}
	if _, err := s.EnsureUser(identity.Principal{ID: e.owner, Email: "owner@example.com", GivenName: "Owner"}); err != nil {
		t.Fatalf("provision: %v", err)
	}
	return e
}

// request builds an authenticated request with an optional JSON body and
// optional {id} path value.
func (e *env) request(t *testing.T, method string, body any, id uint) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, "/", &buf)
	r = r.WithContext(identity.WithPrincipal(r.Context(), identity.Principal{ID: e.owner}))
	if id != 0 {
		r.SetPathValue("id", strconv.FormatUint(uint64(id), 10))
	}
	return r
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func (e *env) createInvoice(t *testing.T, body map[string]any) models.Invoice {
	t.Helper()
	rec := httptest.NewRecorder()
	e.invoices.Create(rec, e.request(t, http.MethodPost, body, 0))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", rec.Code, rec.Body.String())
	}
	return decode[models.Invoice](t, rec)
}

func TestCreateInvoiceAppliesSettingsDefaults(t *testing.T) {
	e := newEnv(t)
	if _, err := e.store.UpdateSettings(e.owner, store.SettingsUpdate{
		DefaultCurrency: ptr("KES"),
		DefaultTax:      ptr(16.0),
	}); err != nil {
		t.Fatal(err)
	}

	inv := e.createInvoice(t, map[string]any{
		"client_name": "Acme Ltd",
		"items": []map[string]any{
			{"description": "Design", "quantity": 2, "rate": 500},
		},
	})

	if inv.Number != "INV-1001" {
		t.Errorf("number = %q, want allocated INV-1001", inv.Number)
	}
	if inv.Currency != "KES" {
		t.Errorf("currency = %q", inv.Currency)
	}
	if inv.Tax != 16 {
		t.Errorf("tax = %v", inv.Tax)
	}
	if inv.DueDate == "" {
		t.Error("due date not defaulted")
	}
	if inv.Subtotal != 1000 || inv.Total != 1160 {
		t.Errorf("derived = %v/%v, want 1000/1160", inv.Subtotal, inv.Total)
	}
	if inv.Status != models.InvoiceStatusDraft {
		t.Errorf("status = %q", inv.Status)
	}
}

func TestCreateInvoiceExplicitZeroTaxBeatsDefault(t *testing.T) {
	e := newEnv(t)
	if _, err := e.store.UpdateSettings(e.owner, store.SettingsUpdate{DefaultTax: ptr(16.0)}); err != nil {
		t.Fatal(err)
	}

	inv := e.createInvoice(t, map[string]any{
		"client_name": "Acme Ltd",
		"tax":         0,
		"items":       []map[string]any{{"description": "Design", "quantity": 1, "rate": 100}},
	})
	if inv.Tax != 0 {
		t.Errorf("tax = %v, want explicit 0 kept", inv.Tax)
	}
	if inv.Total != 100 {
		t.Errorf("total = %v", inv.Total)
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	e := newEnv(t)
	rec := httptest.NewRecorder()
	e.invoices.Create(rec, e.request(t, http.MethodPost, map[string]any{
		"client_email": "not-an-email",
		"currency":     "NOPE",
		"tax":          150,
		"due_date":     "30/09/2026",
	}, 0))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Details map[string]string `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"client_name", "client_email", "currency", "tax", "due_date"} {
		if _, ok := resp.Details[field]; !ok {
			t.Errorf("missing violation for %s: %v", field, resp.Details)
		}
	}
}

func TestCreateInvoiceKeepsCallerNumber(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{
		"client_name":    "Acme Ltd",
		"invoice_number": "CUSTOM-7",
	})
	if inv.Number != "CUSTOM-7" {
		t.Errorf("number = %q", inv.Number)
	}
	// The sequence was not consumed.
	next := e.createInvoice(t, map[string]any{"client_name": "Acme Ltd"})
	if next.Number != "INV-1001" {
		t.Errorf("next allocated = %q, want INV-1001", next.Number)
	}
}

func TestUpdateInvoicePreservesStatusAndCreatedAt(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{
		"client_name": "Acme Ltd",
		"items":       []map[string]any{{"description": "Design", "quantity": 1, "rate": 100}},
	})
	if _, err := e.store.SetStatus(e.owner, inv.ID, models.InvoiceStatusPaid, services.NewLifecycle(false)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	e.invoices.Update(rec, e.request(t, http.MethodPut, map[string]any{
		"client_name": "Acme Renamed",
		"items":       []map[string]any{{"description": "Build", "quantity": 3, "rate": 200}},
	}, inv.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[models.Invoice](t, rec)

	if got.Status != models.InvoiceStatusPaid {
		t.Errorf("status = %q, updates must not change status", got.Status)
	}
	if got.CreatedAt != inv.CreatedAt {
		t.Errorf("createdAt changed: %d != %d", got.CreatedAt, inv.CreatedAt)
	}
	if got.Subtotal != 600 {
		t.Errorf("subtotal = %v", got.Subtotal)
	}
	if got.ClientName != "Acme Renamed" {
		t.Errorf("client = %q", got.ClientName)
	}
}

func TestSetStatusResponses(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{"client_name": "Acme Ltd"})

	rec := httptest.NewRecorder()
	e.invoices.SetStatus(rec, e.request(t, http.MethodPatch, map[string]any{"status": "paid"}, inv.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[models.Invoice](t, rec); got.Status != models.InvoiceStatusPaid {
		t.Errorf("status = %q", got.Status)
	}

	rec = httptest.NewRecorder()
	e.invoices.SetStatus(rec, e.request(t, http.MethodPatch, map[string]any{"status": "archived"}, inv.ID))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown status: code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.invoices.SetStatus(rec, e.request(t, http.MethodPatch, map[string]any{"status": "paid"}, inv.ID+99))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing invoice: code = %d", rec.Code)
	}
}

func TestStrictLifecycleConflict(t *testing.T) {
	e := newEnv(t)
	e.invoices.lifecycle = services.NewLifecycle(true)
	inv := e.createInvoice(t, map[string]any{"client_name": "Acme Ltd"})

	// draft -> paid skips "sent" and is rejected under the strict table.
	rec := httptest.NewRecorder()
	e.invoices.SetStatus(rec, e.request(t, http.MethodPatch, map[string]any{"status": "paid"}, inv.ID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409", rec.Code)
	}
}

func TestDeleteInvoice(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{"client_name": "Acme Ltd"})

	rec := httptest.NewRecorder()
	e.invoices.Delete(rec, e.request(t, http.MethodDelete, nil, inv.ID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d", rec.Code)
	}
	if _, err := e.store.GetInvoice(e.owner, inv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("invoice still present: %v", err)
	}
}

func TestPDFDownload(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{
		"client_name": "Acme Ltd",
		"currency":    "USD",
		"items":       []map[string]any{{"description": "Design", "quantity": 1, "rate": 100}},
	})

	rec := httptest.NewRecorder()
	e.invoices.PDF(rec, e.request(t, http.MethodGet, nil, inv.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF document")
	}
}

func TestSendMarksSentOnlyAfterDelivery(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{
		"client_name":  "Acme Ltd",
		"client_email": "billing@acme.example",
		"currency":     "USD",
		"items":        []map[string]any{{"description": "Design", "quantity": 1, "rate": 100}},
	})

	rec := httptest.NewRecorder()
	e.invoices.Send(rec, e.request(t, http.MethodPost, map[string]any{}, inv.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[models.Invoice](t, rec); got.Status != models.InvoiceStatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if e.sender.count() != 1 {
		t.Fatalf("sent %d messages", e.sender.count())
	}
	msg := e.sender.sent[0]
	if msg.To != "billing@acme.example" {
		t.Errorf("to = %q, want client email fallback", msg.To)
	}
	if len(msg.Attachments) != 1 || !bytes.HasPrefix(msg.Attachments[0].Content, []byte("%PDF")) {
		t.Error("missing PDF attachment")
	}
}

func TestSendFailureLeavesStatusUnchanged(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{
		"client_name":  "Acme Ltd",
		"client_email": "billing@acme.example",
		"currency":     "USD",
	})

	e.sender.fail = true
	rec := httptest.NewRecorder()
	e.invoices.Send(rec, e.request(t, http.MethodPost, map[string]any{}, inv.ID))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}

	stored, err := e.store.GetInvoice(e.owner, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InvoiceStatusDraft {
		t.Errorf("status = %q, want draft after failed delivery", stored.Status)
	}
}

func TestSendRenderFailureSkipsDelivery(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t, map[string]any{
		"client_name":  "Acme Ltd",
		"client_email": "billing@acme.example",
	})
	e.invoices.render = func(*models.Invoice) ([]byte, error) {
		return nil, errors.New("font missing")
	}

	rec := httptest.NewRecorder()
	e.invoices.Send(rec, e.request(t, http.MethodPost, map[string]any{}, inv.ID))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if e.sender.count() != 0 {
		t.Error("message sent despite render failure")
	}
}

func TestUserGetProvisionsOnFirstAccess(t *testing.T) {
	e := newEnv(t)
	e.owner = "kp_fresh"

	rec := httptest.NewRecorder()
	e.users.Get(rec, e.request(t, http.MethodGet, nil, 0))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	user := decode[models.User](t, rec)
	if user.SubjectID != "kp_fresh" {
		t.Errorf("subject = %q", user.SubjectID)
	}
	if _, err := e.store.GetSettings("kp_fresh"); err != nil {
		t.Errorf("settings not provisioned: %v", err)
	}
}

func TestUserUpdateAndDelete(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	e.users.Update(rec, e.request(t, http.MethodPatch, map[string]any{
		"business_name":      "Acme Studio",
		"preferred_currency": "EUR",
	}, 0))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	user := decode[models.User](t, rec)
	if user.BusinessName != "Acme Studio" || user.PreferredCurrency != "EUR" {
		t.Errorf("update not applied: %+v", user)
	}

	rec = httptest.NewRecorder()
	e.users.Update(rec, e.request(t, http.MethodPatch, map[string]any{
		"preferred_currency": "NOPE",
	}, 0))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid currency accepted: code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.users.Delete(rec, e.request(t, http.MethodDelete, nil, 0))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete code = %d", rec.Code)
	}
	if _, err := e.store.GetUserBySubject(e.owner); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("user still present: %v", err)
	}
}

func TestSettingsGetAndUpdate(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	e.settings.Get(rec, e.request(t, http.MethodGet, nil, 0))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	settings := decode[models.Settings](t, rec)
	if settings.InvoicePrefix != models.DefaultInvoicePrefix || settings.NextInvoiceNumber != models.DefaultSequenceStart {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	rec = httptest.NewRecorder()
	e.settings.Update(rec, e.request(t, http.MethodPatch, map[string]any{
		"invoice_prefix": "ACME",
		"default_tax":    7.5,
	}, 0))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	settings = decode[models.Settings](t, rec)
	if settings.InvoicePrefix != "ACME" || settings.DefaultTax != 7.5 {
		t.Errorf("update not applied: %+v", settings)
	}

	rec = httptest.NewRecorder()
	e.settings.Update(rec, e.request(t, http.MethodPatch, map[string]any{"default_tax": 120}, 0))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("out-of-range tax accepted: code = %d", rec.Code)
	}
}

func ptr[T any](v T) *T { return &v }
