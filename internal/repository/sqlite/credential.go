package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
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
		WHERE registration_id = ?
	`
	var c domain.Credential
	var token sql.NullString
	var expires sql.NullInt64
	var updated int64
	err := r.db.SQL.QueryRowContext(ctx, query, registrationID.String()).Scan(
		&c.RegistrationID,
		&c.PasswordHash,
		&token,
		&expires,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if token.Valid {
		c.ResetToken = &token.String
	}
	c.ResetTokenExpiresAt = fromNullableMicros(expires)
	c.UpdatedAt = fromMicros(updated)
	return &c, nil
}

func (r *CredentialRepository) SetPassword(ctx context.Context, registrationID uuid.UUID, hash string, at time.Time) error {
	query := `
		INSERT INTO chat_passwords (registration_id, password_hash, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (registration_id)
		DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at
	`
	if _, err := r.db.SQL.ExecContext(ctx, query, registrationID.String(), hash, toMicros(at)); err != nil {
		return fmt.Errorf("failed to set password: %w", translateError(err))
	}
	return nil
}

func (r *CredentialRepository) SetResetToken(ctx context.Context, registrationID uuid.UUID, token string, expiresAt, at time.Time) error {
	query := `
		INSERT INTO chat_passwords (registration_id, password_hash, reset_token, reset_token_expires_at, updated_at)
		VALUES (?, '', ?, ?, ?)
		ON CONFLICT (registration_id)
		DO UPDATE SET reset_token = excluded.reset_token,
		              reset_token_expires_at = excluded.reset_token_expires_at,
		              updated_at = excluded.updated_at
	`
	_, err := r.db.SQL.ExecContext(ctx, query, registrationID.String(), token, toMicros(expiresAt), toMicros(at))
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", translateError(err))
	}
	return nil
}

func (r *CredentialRepository) CompleteReset(ctx context.Context, token string, hash string, now time.Time) (uuid.UUID, bool, error) {
	query := `
		UPDATE chat_passwords
		SET password_hash = ?, reset_token = NULL, reset_token_expires_at = NULL, updated_at = ?
		WHERE reset_token = ? AND reset_token_expires_at > ?
		RETURNING registration_id
	`
	var id uuid.UUID
	err := r.db.SQL.QueryRowContext(ctx, query, hash, toMicros(now), token, toMicros(now)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to complete reset: %w", err)
	}
	return id, true, nil
}
