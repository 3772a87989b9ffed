package security

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned when a password does not match
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordHasher hashes and verifies attendee passwords with bcrypt
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher; costs below bcrypt.DefaultCost are raised to it
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of password
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare checks password against a stored hash
func (h *PasswordHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// SitePassword is the shared event password used to claim an account on first login
type SitePassword struct {
	secret []byte
}

// NewSitePassword wraps the configured shared secret
func NewSitePassword(secret string) *SitePassword {
	return &SitePassword{secret: []byte(secret)}
}

// Matches compares in constant time. An unset secret never matches.
func (p *SitePassword) Matches(password string) bool {
	if len(p.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(p.secret, []byte(password)) == 1
}
