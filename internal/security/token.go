package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// sessionTokenBytes gives 256 bits of entropy
const sessionTokenBytes = 32

// NewSessionToken returns a random hex-encoded bearer token
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewResetToken returns a single-use password reset token
func NewResetToken() string {
	return uuid.NewString()
}
