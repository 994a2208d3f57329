package main

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/invoicerhq/invoicer/internal/config"
	"github.com/invoicerhq/invoicer/internal/handlers"
	"github.com/invoicerhq/invoicer/internal/httpx"
	"github.com/invoicerhq/invoicer/internal/identity"
	"github.com/invoicerhq/invoicer/internal/mail"
	"github.com/invoicerhq/invoicer/internal/realtime"
	"github.com/invoicerhq/invoicer/internal/services"
	"github.com/invoicerhq/invoicer/internal/store"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux      *http.ServeMux
	provider identity.Provider
}

// NewApp wires the handlers onto the mux.
func NewApp(cfg *config.Config, db *gorm.DB, hub *realtime.Hub, log *zap.Logger) *App {
	app := &App{
		mux:      http.NewServeMux(),
		provider: identity.NewJWTProvider(cfg.Auth.JWTSecret),
	}

	st := store.New(db, store.WithEvents(hub), store.WithLogger(log))
	sender := mail.NewSenderFromConfig(cfg.Mail, log)
	lifecycle := services.NewLifecycle(cfg.App.StrictTransitions)

	ih := handlers.NewInvoiceHandler(st, sender, lifecycle, log)
	uh := handlers.NewUserHandler(st, log)
	sh := handlers.NewSettingsHandler(st, log)
	rh := handlers.NewSendHandler(sender, log)

	// ─────────────────────────────────────────────────────────────────────
	// Public routes
	// ─────────────────────────────────────────────────────────────────────
	app.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// ─────────────────────────────────────────────────────────────────────
	// Authenticated API routes
	// ─────────────────────────────────────────────────────────────────────
	app.handle("GET /api/me", uh.Get)
	app.handle("PATCH /api/me", uh.Update)
	app.handle("DELETE /api/me", uh.Delete)

	app.handle("GET /api/settings", sh.Get)
	app.handle("PATCH /api/settings", sh.Update)

	app.handle("GET /api/invoices", ih.List)
	app.handle("POST /api/invoices", ih.Create)
	app.handle("GET /api/invoices/{id}", ih.Get)
	app.handle("PUT /api/invoices/{id}", ih.Update)
	app.handle("PATCH /api/invoices/{id}/status", ih.SetStatus)
	app.handle("DELETE /api/invoices/{id}", ih.Delete)
	app.handle("GET /api/invoices/{id}/pdf", ih.PDF)
	app.handle("POST /api/invoices/{id}/send", ih.Send)

	app.handle("POST /api/send-invoice", rh.Send)

	// Websocket change feed, filtered to the authenticated owner.
	app.mux.Handle("GET /ws", identity.RequireAuth(hub))

	return app
}

// handle registers an authenticated JSON route.
func (a *App) handle(pattern string, h http.HandlerFunc) {
	a.mux.Handle(pattern, identity.RequireAuth(h))
}

// ServeHTTP implements http.Handler. The identity middleware runs on every
// request so public routes still see the principal when a token is present.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity.Middleware(a.provider)(a.mux).ServeHTTP(w, r)
}
