package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/devtrack/internal/auth"
	"github.com/erazemk/devtrack/internal/model"
	"github.com/erazemk/devtrack/internal/store"
)

// AuthHandler issues and revokes sessions.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// session describes an authenticated caller. Actor is what lifecycle
// operations are attributed to.
type session struct {
	Token     string      `json:"token,omitempty"`
	Actor     model.Actor `json:"actor"`
	Username  string      `json:"username"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

var errBadCredentials = errors.New("invalid credentials")

// authenticate checks a password against an active user.
func (h *AuthHandler) authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := store.GetUserByUsername(ctx, h.DB, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}
	return user, nil
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := h.authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, errBadCredentials) {
		slog.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user)
	if err != nil {
		slog.Error("failed to generate token", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	claims, err := auth.ValidateToken(h.JWTSecret, token)
	if err != nil {
		slog.Error("failed to read back token", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("user logged in", "user", user.Username, "role", user.Role)
	s := sessionFrom(claims)
	s.Token = token
	jsonResponse(w, http.StatusOK, s)
}

// Logout handles POST /api/auth/logout. The presented token stays revoked
// until it would have expired anyway.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.Expiry()); err != nil {
		slog.Error("failed to revoke token", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	slog.Info("user logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, sessionFrom(GetClaims(r.Context())))
}

func sessionFrom(claims *auth.Claims) session {
	return session{
		Actor:     claims.Actor(),
		Username:  claims.Username,
		ExpiresAt: claims.Expiry().UTC(),
	}
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CurrentPassword == "" {
		jsonError(w, http.StatusBadRequest, "current password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.authenticate(r.Context(), claims.Username, req.CurrentPassword)
	if errors.Is(err, errBadCredentials) {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, user.ID, string(hash)); err != nil {
		userWriteError(w, err)
		return
	}

	slog.Info("user changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
