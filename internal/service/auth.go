package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Rrens/event-chat/internal/config"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/mailer"
	"github.com/Rrens/event-chat/internal/security"
	"github.com/Rrens/event-chat/internal/worker"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TaskRunner schedules detached side effects
type TaskRunner interface {
	Go(name string, task worker.Task) bool
}

// LoginResult is the identity and the freshly created session
type LoginResult struct {
	User    *domain.Registration
	Session *domain.Session
}

// AuthService handles login, sessions and passwords
type AuthService struct {
	registrations domain.RegistrationRepository
	sessions      domain.SessionRepository
	credentials   domain.CredentialRepository
	hasher        *security.PasswordHasher
	sitePassword  *security.SitePassword
	mailer        mailer.Mailer
	runner        TaskRunner
	cfg           config.AuthConfig
	resetURLBase  string
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(
	registrations domain.RegistrationRepository,
	sessions domain.SessionRepository,
	credentials domain.CredentialRepository,
	m mailer.Mailer,
	runner TaskRunner,
	cfg config.AuthConfig,
	resetURLBase string,
) *AuthService {
	return &AuthService{
		registrations: registrations,
		sessions:      sessions,
		credentials:   credentials,
		hasher:        security.NewPasswordHasher(cfg.BcryptCost),
		sitePassword:  security.NewSitePassword(cfg.SitePassword),
		mailer:        m,
		runner:        runner,
		cfg:           cfg,
		resetURLBase:  resetURLBase,
		now:           clock,
	}
}

// clock is the service time source. Stores keep microseconds.
func clock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates an attendee and opens a new session. The first login of
// an attendee without a personal password is checked against the site
// password and claims the account with the supplied password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	reg, err := s.registrations.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	if reg == nil {
		s.burnCompare(password)
		return nil, domain.ErrInvalidCredentials
	}

	cred, err := s.credentials.Get(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	now := s.now()
	if cred.HasPassword() {
		if err := s.hasher.Compare(cred.PasswordHash, password); err != nil {
			return nil, domain.ErrInvalidCredentials
		}
	} else {
		if !s.sitePassword.Matches(password) {
			return nil, domain.ErrInvalidCredentials
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, err
		}
		if err := s.credentials.SetPassword(ctx, reg.ID, hash, now); err != nil {
			return nil, fmt.Errorf("failed to store password: %w", err)
		}
		log.Info().Str("registration_id", reg.ID.String()).Msg("Chat account claimed")
	}

	session, err := s.createSession(ctx, reg.ID, now)
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: reg, Session: session}, nil
}

// burnCompare spends one hash comparison so unknown emails fail in about the
// same time as wrong passwords
func (s *AuthService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

func (s *AuthService) createSession(ctx context.Context, registrationID uuid.UUID, now time.Time) (*domain.Session, error) {
	token, err := security.NewSessionToken()
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:             uuid.New(),
		RegistrationID: registrationID,
		Token:          token,
		LastActiveAt:   now,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Resolve returns the session and identity behind token. Missing, unknown and
// expired tokens all yield ErrNotAuthenticated. A successful resolution
// schedules a heartbeat that never delays the caller.
func (s *AuthService) Resolve(ctx context.Context, token string) (*domain.Session, *domain.Registration, error) {
	if token == "" {
		return nil, nil, domain.ErrNotAuthenticated
	}

	now := s.now()
	session, reg, err := s.sessions.GetValidByToken(ctx, token, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil || reg == nil {
		return nil, nil, domain.ErrNotAuthenticated
	}

	sessionID := session.ID
	s.runner.Go("session.touch", func(ctx context.Context) error {
		return s.sessions.Touch(ctx, sessionID, now)
	})

	return session, reg, nil
}

// Logout deletes the session behind token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ForgotPassword issues a reset token and mails the link when the email is
// registered. It reports success either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	reg, err := s.registrations.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to get registration: %w", err)
	}
	if reg == nil {
		log.Debug().Msg("Password reset requested for unknown email")
		return nil
	}

	now := s.now()
	token := security.NewResetToken()
	if err := s.credentials.SetResetToken(ctx, reg.ID, token, now.Add(s.cfg.ResetTTL), now); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link := s.resetLink(token)
	to, name := reg.Email, reg.Name
	s.runner.Go("mail.password_reset", func(ctx context.Context) error {
		return s.mailer.SendPasswordReset(ctx, to, name, link)
	})

	return nil
}

func (s *AuthService) resetLink(token string) string {
	sep := "?"
	if strings.Contains(s.resetURLBase, "?") {
		sep = "&"
	}
	return s.resetURLBase + sep + "token=" + url.QueryEscape(token)
}

// ResetPassword consumes a reset token, stores the new password and signs the
// attendee out everywhere
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.checkPasswordLength(newPassword); err != nil {
		return err
	}
	if token == "" {
		return domain.ErrValidation("Invalid or expired reset token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	registrationID, ok, err := s.credentials.CompleteReset(ctx, token, hash, s.now())
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	if !ok {
		return domain.ErrValidation("Invalid or expired reset token")
	}

	if err := s.sessions.DeleteByRegistration(ctx, registrationID, nil); err != nil {
		log.Error().Err(err).Str("registration_id", registrationID.String()).Msg("Failed to revoke sessions after reset")
	}
	return nil
}

// ChangePassword replaces the password of the session's attendee after checking
// the current one. Other sessions of the attendee are revoked.
func (s *AuthService) ChangePassword(ctx context.Context, session *domain.Session, currentPassword, newPassword string) error {
	if err := s.checkPasswordLength(newPassword); err != nil {
		return err
	}

	cred, err := s.credentials.Get(ctx, session.RegistrationID)
	if err != nil {
		return fmt.Errorf("failed to get credential: %w", err)
	}

	if cred.HasPassword() {
		if err := s.hasher.Compare(cred.PasswordHash, currentPassword); err != nil {
			if errors.Is(err, security.ErrPasswordMismatch) {
				return domain.ErrValidation("Current password is incorrect")
			}
			return err
		}
	} else if !s.sitePassword.Matches(currentPassword) {
		return domain.ErrValidation("Current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.credentials.SetPassword(ctx, session.RegistrationID, hash, s.now()); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	keep := session.ID
	if err := s.sessions.DeleteByRegistration(ctx, session.RegistrationID, &keep); err != nil {
		log.Error().Err(err).Str("registration_id", session.RegistrationID.String()).Msg("Failed to revoke other sessions")
	}
	return nil
}

func (s *AuthService) checkPasswordLength(password string) error {
	if utf8.RuneCountInString(password) < s.cfg.MinPassword {
		return domain.ErrValidation("Password must be at least %d characters", s.cfg.MinPassword)
	}
	if len(password) > security.MaxPasswordBytes {
		return domain.ErrValidation("Password is too long")
	}
	return nil
}
