// Package auth serves the session endpoints and manages the token cookies.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/tasker-auth/handlers"
	"github.com/upb/tasker-auth/middleware"
	"github.com/upb/tasker-auth/models"
	authservice "github.com/upb/tasker-auth/services/auth"
	"github.com/upb/tasker-auth/utils"
	"go.uber.org/zap"
)

const (
	// AccessCookieName carries the access token for browser clients
	AccessCookieName = "accessToken"
	// RefreshCookieName carries the refresh token; it is never readable by scripts
	RefreshCookieName = "refreshToken"
)

// SessionService is the session manager used by the handlers
type SessionService interface {
	Register(ctx context.Context, input authservice.RegisterInput) (*models.UserView, error)
	Login(ctx context.Context, email, password string) (*authservice.LoginResult, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
	Renew(ctx context.Context, refreshToken string) (string, error)
}

// CookieConfig controls the token cookies
type CookieConfig struct {
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// LoginRequest is the body of POST /api/auth/login.
// Missing fields are reported by the session manager.
type LoginRequest struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=72"`
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	Success     bool            `json:"success"`
	AccessToken string          `json:"accessToken"`
	User        models.UserView `json:"user"`
}

// RefreshResponse is returned by a successful renewal
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

// MessageResponse is returned by logout
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserResponse is returned by registration
type UserResponse struct {
	Success bool            `json:"success"`
	User    models.UserView `json:"user"`
}

// Handler handles the session endpoints (register, login, logout, refresh).
type Handler struct {
	sessions SessionService
	cookies  CookieConfig
	logger   *zap.Logger
}

// NewHandler creates a new session handler
func NewHandler(sessions SessionService, cookies CookieConfig, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleRegister handles POST /api/auth/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.sessions.Register(r.Context(), authservice.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusCreated, UserResponse{Success: true, User: *user})
}

// HandleLogin handles POST /api/auth/login.
// The refresh token only travels in its cookie; the body carries the access token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.setCookie(w, AccessCookieName, result.AccessToken, h.cookies.AccessMaxAge)
	h.setCookie(w, RefreshCookieName, result.RefreshToken, h.cookies.RefreshMaxAge)

	_ = utils.WriteJSON(w, http.StatusOK, LoginResponse{
		Success:     true,
		AccessToken: result.AccessToken,
		User:        result.User,
	})
}

// HandleLogout handles POST /api/auth/logout.
// Both cookies are cleared whatever the outcome, so a repeated logout still succeeds.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	refreshToken := readCookie(r, RefreshCookieName)
	accessToken := middleware.ExtractBearerToken(r)

	if refreshToken != "" {
		if err := h.sessions.Logout(r.Context(), refreshToken, accessToken); err != nil {
			handlers.HandleServiceError(w, err, h.logger)
			return
		}
	} else {
		h.logger.Debug("logout without refresh cookie",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
	}

	h.clearCookie(w, AccessCookieName)
	h.clearCookie(w, RefreshCookieName)

	_ = utils.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// HandleRefresh handles POST /api/auth/refresh-token
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := readCookie(r, RefreshCookieName)

	accessToken, err := h.sessions.Renew(r.Context(), refreshToken)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.setCookie(w, AccessCookieName, accessToken, h.cookies.AccessMaxAge)
	h.setCookie(w, RefreshCookieName, refreshToken, h.cookies.RefreshMaxAge)

	_ = utils.WriteJSON(w, http.StatusOK, RefreshResponse{
		Success:     true,
		AccessToken: accessToken,
	})
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func readCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
