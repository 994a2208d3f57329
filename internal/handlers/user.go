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

type UserHandler struct {
	store *store.Store
	log   *zap.Logger
}

func NewUserHandler(s *store.Store, log *zap.Logger) *UserHandler {
	return &UserHandler{store: s, log: log}
}

// Get returns the authenticated user's profile, provisioning the account on
// first access.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	user, err := h.store.EnsureUser(principal)
	if err != nil {
		h.log.Error("ensure user", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to load profile", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type userUpdateRequest struct {
	Name              *string `json:"name"`
	BusinessName      *string `json:"business_name"`
	BusinessEmail     *string `json:"business_email"`
	BusinessPhone     *string `json:"business_phone"`
	BusinessAddress   *string `json:"business_address"`
	PreferredCurrency *string `json:"preferred_currency"`
	Theme             *string `json:"theme"`
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())

	var req userUpdateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	v := make(validation.Violations)
	if req.BusinessEmail != nil {
		validation.Email("business_email", *req.BusinessEmail, v)
	}
	if req.PreferredCurrency != nil {
		validation.Currency("preferred_currency", *req.PreferredCurrency, v)
	}
	if !v.Empty() {
		httpx.Error(w, http.StatusUnprocessableEntity, "validation failed", v)
		return
	}

	user, err := h.store.UpdateUser(principal.ID, store.UserUpdate{
		Name:              req.Name,
		BusinessName:      req.BusinessName,
		BusinessEmail:     req.BusinessEmail,
		BusinessPhone:     req.BusinessPhone,
		BusinessAddress:   req.BusinessAddress,
		PreferredCurrency: req.PreferredCurrency,
		Theme:             req.Theme,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "profile not found", nil)
			return
		}
		h.log.Error("update user", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update profile", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

// Delete removes the account and everything it owns.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.FromContext(r.Context())
	if err := h.store.DeleteUser(principal.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "profile not found", nil)
			return
		}
		h.log.Error("delete user", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to delete account", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
