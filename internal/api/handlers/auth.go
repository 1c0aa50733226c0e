// Package handlers contains the HTTP handlers for the seatscan v1 API. Each
// handler owns one resource group and registers its routes on the chi router
// via a registrar; the core chassis applies the cross-cutting middleware.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"seatscan/internal/core"
	"seatscan/internal/identity"
)

// AuthService is the identity surface the handler needs.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*identity.AuthResult, error)
	Login(ctx context.Context, email, password string) (*identity.AuthResult, error)
	GuestSession(ctx context.Context) (*identity.AuthResult, error)
	Refresh(ctx context.Context, rawToken string) (*identity.AuthResult, error)
}

// AuthHandler serves registration, login, guest sessions, and token refresh.
// All of its routes are unauthenticated except refresh, which validates the
// presented token itself.
type AuthHandler struct {
	svc       AuthService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, validator *core.Validator, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, validator: validator, logger: logger}
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.HandleRegister)
		r.Post("/login", h.HandleLogin)
		r.Post("/guest", h.HandleGuest)
		r.Post("/refresh", h.HandleRefresh)
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	Token string `json:"token" validate:"required"`
}

// HandleRegister creates a FREE-tier account and returns a token.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: result})
}

// HandleLogin verifies credentials and returns a fresh token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// HandleGuest issues an anonymous guest token. The token carries an advisory
// usage snapshot; the authoritative per-IP counter lives in the store.
func (h *AuthHandler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GuestSession(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// HandleRefresh reissues the presented token with a new expiry. Expired
// tokens are refused; the client must re-authenticate.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.svc.Refresh(r.Context(), req.Token)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

var _ AuthService = (*identity.Service)(nil)
