package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated chat client. A session is valid while
// now < ExpiresAt; LastActiveAt only feeds presence.
type Session struct {
	ID             uuid.UUID `json:"id"`
	RegistrationID uuid.UUID `json:"registrationId"`
	Token          string    `json:"-"`
	LastActiveAt   time.Time `json:"lastActiveAt"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// IsValid reports whether the session has not yet expired at now
func (s *Session) IsValid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SessionRepository defines the interface for chat session storage
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	// GetValidByToken returns the unexpired session and its registration, or nil, nil.
	GetValidByToken(ctx context.Context, token string, now time.Time) (*Session, *Registration, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteByToken(ctx context.Context, token string) error
	DeleteByRegistration(ctx context.Context, registrationID uuid.UUID, keepID *uuid.UUID) error
	// ActiveSince returns the subset of ids with a session heartbeat at or after since.
	ActiveSince(ctx context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]bool, error)
}
