package middleware

import (
	"context"
	"net/http"

	"github.com/Rrens/event-chat/internal/api/response"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const (
	SessionKey contextKey = "session"
	UserKey    contextKey = "user"
)

// Authenticator resolves a session token to its session and attendee
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*domain.Session, *domain.Registration, error)
}

// AuthMiddleware handles cookie session authentication
type AuthMiddleware struct {
	auth       Authenticator
	cookieName string
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(auth Authenticator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, cookieName: cookieName}
}

// SessionToken returns the session cookie value, or "" when absent
func SessionToken(r *http.Request, cookieName string) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Authenticate rejects requests without a valid session cookie
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, user, err := m.auth.Resolve(r.Context(), SessionToken(r, m.cookieName))
		if err != nil {
			if domain.KindOf(err) == domain.KindUnauthorized {
				response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
				return
			}
			response.FromError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), session, user)))
	})
}

// WithIdentity stores the authenticated session and attendee in ctx
func WithIdentity(ctx context.Context, session *domain.Session, user *domain.Registration) context.Context {
	ctx = context.WithValue(ctx, SessionKey, session)
	return context.WithValue(ctx, UserKey, user)
}

// GetSession gets the session from context
func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok && session != nil
}

// GetUser gets the authenticated attendee from context
func GetUser(ctx context.Context) (*domain.Registration, bool) {
	user, ok := ctx.Value(UserKey).(*domain.Registration)
	return user, ok && user != nil
}

// GetUserID gets the authenticated attendee id from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	user, ok := GetUser(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}
