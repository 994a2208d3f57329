// Package store is the persistence gateway. It owns every read and write for
// user, invoice, and settings records, keyed by the owner's external subject
// id. Derived invoice values are recomputed here before each write so the
// stored record never depends on caller-supplied arithmetic.
package store

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicerhq/invoicer/internal/identity"
	"github.com/invoicerhq/invoicer/internal/models"
	"github.com/invoicerhq/invoicer/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownOwner is returned for invoice writes whose owner id does
	// not correspond to an existing user. The database does not enforce
	// this relation, so it is checked here on every write.
	ErrUnknownOwner = errors.New("owner does not exist")
)

// Event describes a committed mutation, published to subscribers after the
// write succeeds.
type Event struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Owner string `json:"owner"`
	At    int64  `json:"at"`
}

// Events receives change events. Implementations must not block.
type Events interface {
	Publish(e Event)
}

// Store wraps the database connection with the gateway operations.
type Store struct {
	db     *gorm.DB
	calc   *services.InvoiceService
	events Events
	log    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEvents attaches a change event sink.
func WithEvents(e Events) Option { return func(s *Store) { s.events = e } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, calc: services.NewInvoiceService(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) publish(kind, owner string) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{
		ID:    uuid.NewString(),
		Kind:  kind,
		Owner: owner,
		At:    time.Now().UnixMilli(),
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

// EnsureUser returns the user for the authenticated principal, provisioning
// the user together with default settings on first access.
func (s *Store) EnsureUser(p identity.Principal) (*models.User, error) {
	var user models.User
	err := s.db.Where("subject_id = ?", p.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		SubjectID: p.ID,
		Email:     p.Email,
		Name:      strings.TrimSpace(p.GivenName + " " + p.FamilyName),
		Theme:     "dark",
	}
	settings := models.DefaultSettings(p.ID, user.PreferredCurrency)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&settings).Error
	})
	if err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}
	s.log.Info("provisioned user", zap.String("subject", p.ID))
	return &user, nil
}

// GetUserBySubject looks up a user by external identity id.
func (s *Store) GetUserBySubject(subject string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("subject_id = ?", subject).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserUpdate holds optional profile mutations; nil fields are left unchanged.
type UserUpdate struct {
	Name              *string
	BusinessName      *string
	BusinessEmail     *string
	BusinessPhone     *string
	BusinessAddress   *string
	PreferredCurrency *string
	Theme             *string
}

// UpdateUser applies the non-nil fields of upd to the user's record.
func (s *Store) UpdateUser(subject string, upd UserUpdate) (*models.User, error) {
	user, err := s.GetUserBySubject(subject)
	if err != nil {
		return nil, err
	}
	setString(&user.Name, upd.Name)
	setString(&user.BusinessName, upd.BusinessName)
	setString(&user.BusinessEmail, upd.BusinessEmail)
	setString(&user.BusinessPhone, upd.BusinessPhone)
	setString(&user.BusinessAddress, upd.BusinessAddress)
	setString(&user.PreferredCurrency, upd.PreferredCurrency)
	setString(&user.Theme, upd.Theme)
	if err := s.db.Save(user).Error; err != nil {
		return nil, err
	}
	s.publish("user.updated", subject)
	return user, nil
}

// DeleteUser removes the user and everything it owns. The cascade is
// best-effort sequential: a failed delete is logged and does not roll back
// the deletes that already happened.
func (s *Store) DeleteUser(subject string) error {
	user, err := s.GetUserBySubject(subject)
	if err != nil {
		return err
	}

	var invoices []models.Invoice
	if err := s.db.Where("owner_id = ?", subject).Find(&invoices).Error; err != nil {
		return err
	}
	for _, inv := range invoices {
		if err := s.deleteInvoiceRecord(inv.ID); err != nil {
			s.log.Warn("cascade: delete invoice failed",
				zap.Uint("invoice", inv.ID), zap.Error(err))
		}
	}
	if err := s.db.Where("owner_id = ?", subject).Delete(&models.Settings{}).Error; err != nil {
		s.log.Warn("cascade: delete settings failed", zap.Error(err))
	}
	if err := s.db.Delete(user).Error; err != nil {
		return err
	}
	s.publish("user.deleted", subject)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// GetSettings looks up the settings record for an owner.
func (s *Store) GetSettings(owner string) (*models.Settings, error) {
	var settings models.Settings
	if err := s.db.Where("owner_id = ?", owner).First(&settings).Error; err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// SettingsUpdate holds optional settings mutations; nil fields are left
// unchanged.
type SettingsUpdate struct {
	InvoicePrefix     *string
	NextInvoiceNumber *int
	DefaultCurrency   *string
	DefaultTax        *float64
	PaymentTerms      *string
	Signature         *string
}

// UpdateSettings applies the non-nil fields of upd to the owner's settings.
func (s *Store) UpdateSettings(owner string, upd SettingsUpdate) (*models.Settings, error) {
	settings, err := s.GetSettings(owner)
	if err != nil {
		return nil, err
	}
	setString(&settings.InvoicePrefix, upd.InvoicePrefix)
	if upd.NextInvoiceNumber != nil {
		settings.NextInvoiceNumber = *upd.NextInvoiceNumber
	}
	setString(&settings.DefaultCurrency, upd.DefaultCurrency)
	if upd.DefaultTax != nil {
		settings.DefaultTax = *upd.DefaultTax
	}
	setString(&settings.PaymentTerms, upd.PaymentTerms)
	setString(&settings.Signature, upd.Signature)
	if err := s.db.Save(settings).Error; err != nil {
		return nil, err
	}
	s.publish("settings.updated", owner)
	return settings, nil
}

// AllocateInvoiceNumber consumes the next number from the owner's sequence,
// formatted as "<prefix>-<n>". Callers may still supply their own numbers;
// uniqueness is not enforced either way.
func (s *Store) AllocateInvoiceNumber(owner string) (string, error) {
	settings, err := s.GetSettings(owner)
	if err != nil {
		return "", err
	}
	number := fmt.Sprintf("%s-%d", settings.InvoicePrefix, settings.NextInvoiceNumber)
	settings.NextInvoiceNumber++
	if err := s.db.Save(settings).Error; err != nil {
		return "", err
	}
	return number, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Invoices
// ─────────────────────────────────────────────────────────────────────────────

// CreateInvoice recomputes derived values and inserts the invoice with its
// items. The owner must refer to an existing user.
func (s *Store) CreateInvoice(inv *models.Invoice) error {
	if err := s.checkOwner(inv.OwnerID); err != nil {
		return err
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusDraft
	}
	s.recompute(inv)
	if err := s.db.Create(inv).Error; err != nil {
		return err
	}
	s.publish("invoice.created", inv.OwnerID)
	return nil
}

// GetInvoice fetches one invoice owned by owner, with items in render order.
func (s *Store) GetInvoice(owner string, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.Where("id = ? AND owner_id = ?", id, owner).
		Preload("Items", itemOrder).
		First(&inv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// ListInvoices returns all invoices for an owner, newest first.
func (s *Store) ListInvoices(owner string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.Where("owner_id = ?", owner).
		Preload("Items", itemOrder).
		Order("created_at DESC, id DESC").
		Find(&invoices).Error
	return invoices, err
}

// UpdateInvoice recomputes derived values and replaces the stored record and
// its items. CreatedAt is never touched.
func (s *Store) UpdateInvoice(inv *models.Invoice) error {
	if err := s.checkOwner(inv.OwnerID); err != nil {
		return err
	}
	s.recompute(inv)
	items := inv.Items
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = 0
			items[i].InvoiceID = inv.ID
		}
		if err := tx.Omit("Items", "CreatedAt").Save(inv).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			return tx.Create(&items).Error
		}
		return nil
	})
	if err != nil {
		return err
	}
	inv.Items = items
	s.publish("invoice.updated", inv.OwnerID)
	return nil
}

// SetStatus applies a lifecycle transition and persists it.
func (s *Store) SetStatus(owner string, id uint, to models.InvoiceStatus, lc *services.Lifecycle) (*models.Invoice, error) {
	inv, err := s.GetInvoice(owner, id)
	if err != nil {
		return nil, err
	}
	if err := lc.Transition(inv, to); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	err = s.db.Model(&models.Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]any{"status": inv.Status, "updated_at": now}).Error
	if err != nil {
		return nil, err
	}
	inv.UpdatedAt = now
	s.publish("invoice.updated", owner)
	return inv, nil
}

// DeleteInvoice removes one invoice and its items.
func (s *Store) DeleteInvoice(owner string, id uint) error {
	if _, err := s.GetInvoice(owner, id); err != nil {
		return err
	}
	if err := s.deleteInvoiceRecord(id); err != nil {
		return err
	}
	s.publish("invoice.deleted", owner)
	return nil
}

func (s *Store) deleteInvoiceRecord(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Invoice{}, id).Error
	})
}

// recompute re-derives amounts and logs when the caller sent values that
// disagree with the authoritative computation.
func (s *Store) recompute(inv *models.Invoice) {
	sentSubtotal, sentTotal := inv.Subtotal, inv.Total
	s.calc.Recompute(inv)
	if mismatch(sentSubtotal, inv.Subtotal) || mismatch(sentTotal, inv.Total) {
		s.log.Warn("client-sent derived values overwritten",
			zap.String("owner", inv.OwnerID),
			zap.String("number", inv.Number),
			zap.Float64("sent_subtotal", sentSubtotal),
			zap.Float64("subtotal", inv.Subtotal),
			zap.Float64("sent_total", sentTotal),
			zap.Float64("total", inv.Total))
	}
}

// mismatch ignores zero values (field simply omitted) and sub-cent noise.
func mismatch(sent, computed float64) bool {
	return sent != 0 && math.Abs(sent-computed) >= 0.005
}

func (s *Store) checkOwner(owner string) error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("subject_id = ?", owner).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUnknownOwner
	}
	return nil
}

func itemOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
