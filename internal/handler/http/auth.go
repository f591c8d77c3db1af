package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/internal/service"
	"github.com/tempuro/auth-service/pkg/httputil"
	"github.com/tempuro/auth-service/pkg/middleware"
	"github.com/tempuro/auth-service/pkg/validator"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// SessionService is the subset of service.SessionService used by the handlers.
type SessionService interface {
	Login(ctx context.Context, input service.LoginInput) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Register(ctx context.Context, input service.RegisterInput) error
	RevokeAllSessions(ctx context.Context, email string) (int64, error)
	ListActiveSessions(ctx context.Context, email string) ([]domain.RefreshToken, error)
}

// CookieConfig controls the refresh cookie attributes that vary by deployment.
type CookieConfig struct {
	Secure bool
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service SessionService
	cookie  CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc SessionService, cookie CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookie: cookie, logger: logger}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for login. Only presence is checked
// here; any other bad input is a credential failure.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the JSON request body for registration. Limits match the
// users table columns; the bcrypt length limit is enforced by the service.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// TokenResponse carries issued tokens. RefreshToken is omitted when none was
// issued.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// SessionResponse describes one active refresh token.
type SessionResponse struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// RevokedResponse reports how many sessions were revoked.
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

func tokenResponse(pair *domain.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
}

func (h *AuthHandler) refreshCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(domain.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// --- Handlers ---

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	pair, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	http.SetCookie(w, h.refreshCookie(pair.RefreshToken))
	httputil.WriteData(w, http.StatusOK, tokenResponse(pair))
}

// Refresh handles POST /auth/refresh. The refresh token is read from the
// cookie; the cookie is rewritten only when a new refresh token is issued.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		token = c.Value
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if pair.RefreshToken != "" {
		http.SetCookie(w, h.refreshCookie(pair.RefreshToken))
	}
	httputil.WriteData(w, http.StatusOK, tokenResponse(pair))
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	err := h.service.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, MessageResponse{Message: "account registered"})
}

// LogoutAll handles POST /auth/logout-all. It revokes every refresh token of
// the authenticated account and clears the cookie.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	revoked, err := h.service.RevokeAllSessions(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cleared := h.refreshCookie("")
	cleared.MaxAge = -1
	http.SetCookie(w, cleared)
	httputil.WriteData(w, http.StatusOK, RevokedResponse{Revoked: revoked})
}

// Sessions handles GET /auth/sessions
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.service.ListActiveSessions(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sessions := make([]SessionResponse, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionResponse{ID: t.ID, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}
	httputil.WriteData(w, http.StatusOK, sessions)
}
