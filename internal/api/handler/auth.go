package handler

import (
	"net/http"
	"time"

	"github.com/Rrens/event-chat/internal/api/middleware"
	"github.com/Rrens/event-chat/internal/api/response"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/service"
)

// CookieConfig describes the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler handles login, logout, the current user and password endpoints
type AuthHandler struct {
	authService *service.AuthService
	chatService *service.ChatService
	cookie      CookieConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, chatService *service.ChatService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		chatService: chatService,
		cookie:      cookie,
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input domain.LoginRequest
	if err := decode(w, r, &input); err != nil {
		response.FromError(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token)
	response.OK(w, map[string]any{"user": result.User})
}

// Logout handles POST /logout. It succeeds without a session too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r, h.cookie.Name)
	h.clearSessionCookie(w)

	if err := h.authService.Logout(r.Context(), token); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w)
}

// Me handles GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	conversations, err := h.chatService.Conversations(r.Context(), user.ID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, map[string]any{
		"user":          user,
		"conversations": conversations,
	})
}

// ForgotPassword handles POST /forgot-password. The answer never reveals
// whether the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var input domain.ForgotPasswordRequest
	if err := decode(w, r, &input); err != nil {
		response.FromError(w, r, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), input.Email); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w)
}

// ResetPassword handles POST /reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var input domain.ResetPasswordRequest
	if err := decode(w, r, &input); err != nil {
		response.FromError(w, r, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), input.Token, input.NewPassword); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w)
}

// ChangePassword handles POST /change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	var input domain.ChangePasswordRequest
	if err := decode(w, r, &input); err != nil {
		response.FromError(w, r, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), session, input.CurrentPassword, input.NewPassword); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Success(w)
}
