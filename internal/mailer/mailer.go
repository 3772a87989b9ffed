package mailer

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Mailer delivers transactional chat emails
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, link string) error
}

// LogMailer writes reset links to the log instead of sending them. It is used
// when no mail API is configured.
type LogMailer struct{}

// NewLogMailer creates a log-only mailer
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, name, link string) error {
	log.Info().
		Str("to", to).
		Str("link", link).
		Msg("Password reset requested (mail API not configured)")
	return nil
}
