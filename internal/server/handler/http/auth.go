// Package http provides the HTTP handlers and routing of the casebook API.
package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/middleware"
	"github.com/atinyakov/casebook/internal/models"
)

// AuthService defines the interface for authentication operations
// required by the HTTP handlers.
type AuthService interface {
	// Register creates an account and returns a session for it.
	Register(context.Context, models.RegisterRequest) (*models.AuthResponse, error)
	// Login checks credentials and returns a new session.
	Login(context.Context, models.LoginRequest) (*models.AuthResponse, error)
	// Logout revokes the session with the given token id.
	Logout(ctx context.Context, jti string) error
}

// AuthHandler handles HTTP requests for registration, login and logout.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	Log         *zap.Logger
}

// Register handles POST /api/register.
// It expects a JSON body with "displayName", "email" and "password" and
// answers 201 with a token and the new user.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.AuthService.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("user registered", zap.String("user", resp.User.ID))
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.AuthService.Login(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/logout by revoking the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.Logout(r.Context(), middleware.GetSessionIDFromContext(r.Context())); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.Log, models.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
