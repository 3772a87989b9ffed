package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CredentialRepository implements domain.CredentialRepository
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Get(ctx context.Context, registrationID uuid.UUID) (*domain.Credential, error) {
	query := `
		SELECT registration_id, password_hash, reset_token, reset_token_expires_at, updated_at
		FROM chat_passwords
		WHERE registration_id = $1
	`
	var c domain.Credential
	err := r.db.Pool.QueryRow(ctx, query, registrationID).Scan(
		&c.RegistrationID,
		&c.PasswordHash,
		&c.ResetToken,
		&c.ResetTokenExpiresAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &c, nil
}

func (r *CredentialRepository) SetPassword(ctx context.Context, registrationID uuid.UUID, hash string, at time.Time) error {
	query := `
		INSERT INTO chat_passwords (registration_id, password_hash, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (registration_id)
		DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Pool.Exec(ctx, query, registrationID, hash, at); err != nil {
		return fmt.Errorf("failed to set password: %w", translateError(err))
	}
	return nil
}

func (r *CredentialRepository) SetResetToken(ctx context.Context, registrationID uuid.UUID, token string, expiresAt, at time.Time) error {
	query := `
		INSERT INTO chat_passwords (registration_id, password_hash, reset_token, reset_token_expires_at, updated_at)
		VALUES ($1, '', $2, $3, $4)
		ON CONFLICT (registration_id)
		DO UPDATE SET reset_token = EXCLUDED.reset_token,
		              reset_token_expires_at = EXCLUDED.reset_token_expires_at,
		              updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Pool.Exec(ctx, query, registrationID, token, expiresAt, at); err != nil {
		return fmt.Errorf("failed to set reset token: %w", translateError(err))
	}
	return nil
}

func (r *CredentialRepository) CompleteReset(ctx context.Context, token string, hash string, now time.Time) (uuid.UUID, bool, error) {
	query := `
		UPDATE chat_passwords
		SET password_hash = $1, reset_token = NULL, reset_token_expires_at = NULL, updated_at = $2
		WHERE reset_token = $3 AND reset_token_expires_at > $2
		RETURNING registration_id
	`
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx, query, hash, now, token).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to complete reset: %w", err)
	}
	return id, true, nil
}
