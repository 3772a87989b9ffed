package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Credential is the per-attendee password record. PasswordHash is empty until
// the attendee claims the account with the shared site password.
type Credential struct {
	RegistrationID      uuid.UUID  `json:"registrationId"`
	PasswordHash        string     `json:"-"`
	ResetToken          *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// HasPassword reports whether a personal password has been set
func (c *Credential) HasPassword() bool {
	return c != nil && c.PasswordHash != ""
}

// CredentialRepository defines storage for password records
type CredentialRepository interface {
	Get(ctx context.Context, registrationID uuid.UUID) (*Credential, error)
	SetPassword(ctx context.Context, registrationID uuid.UUID, hash string, at time.Time) error
	// SetResetToken upserts the token, creating an empty record when none exists.
	SetResetToken(ctx context.Context, registrationID uuid.UUID, token string, expiresAt, at time.Time) error
	// CompleteReset stores the new hash and clears the token in one statement.
	// ok is false when the token is unknown, consumed or expired.
	CompleteReset(ctx context.Context, token string, hash string, now time.Time) (registrationID uuid.UUID, ok bool, err error)
}
