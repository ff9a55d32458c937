package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/web/middleware"
)

// Authenticator logs in against the auth API and holds the resulting credential
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.User, error)
	Logout()
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth           Authenticator
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth Authenticator, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		auth:           auth,
		sessionManager: sm,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request payload, never logged
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Login exchanges credentials for a backend token and opens a web session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, faceerr.ErrAuth) {
			respondJSON(w, http.StatusUnauthorized, LoginResponse{Error: "invalid credentials"})
			return
		}
		respondErr(w, r, err)
		return
	}

	session, err := h.sessionManager.CreateSession(string(user.ID), req.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, session)

	log.WithField("user", string(user.ID)).Info("User logged in")
	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Format(timeFormat),
		UserID:    session.UserID,
	})
}

// Logout ends the web session and drops the backend credential
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(session.ID)
	}
	h.sessionManager.ClearSessionCookie(w)
	h.auth.Logout()

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Status reports whether the request carries a valid session
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       session.UserID,
		"expires_at":    session.ExpiresAt.Format(timeFormat),
	})
}
