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

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO chat_sessions (id, registration_id, token, last_active_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		session.ID,
		session.RegistrationID,
		session.Token,
		session.LastActiveAt,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", translateError(err))
	}
	return nil
}

func (r *SessionRepository) GetValidByToken(ctx context.Context, token string, now time.Time) (*domain.Session, *domain.Registration, error) {
	query := `
		SELECT s.id, s.registration_id, s.token, s.last_active_at, s.created_at, s.expires_at,
		       r.id, r.name, r.email, r.title, r.organization, r.picture_url, r.created_at
		FROM chat_sessions s
		JOIN registrations r ON r.id = s.registration_id
		WHERE s.token = $1 AND s.expires_at > $2
	`
	var s domain.Session
	var reg domain.Registration
	err := r.db.Pool.QueryRow(ctx, query, token, now).Scan(
		&s.ID,
		&s.RegistrationID,
		&s.Token,
		&s.LastActiveAt,
		&s.CreatedAt,
		&s.ExpiresAt,
		&reg.ID,
		&reg.Name,
		&reg.Email,
		&reg.Title,
		&reg.Organization,
		&reg.PictureURL,
		&reg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, &reg, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE chat_sessions SET last_active_at = $1 WHERE id = $2 AND last_active_at < $1`
	if _, err := r.db.Pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	query := `DELETE FROM chat_sessions WHERE token = $1`
	if _, err := r.db.Pool.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByRegistration(ctx context.Context, registrationID uuid.UUID, keepID *uuid.UUID) error {
	query := `DELETE FROM chat_sessions WHERE registration_id = $1 AND ($2::uuid IS NULL OR id <> $2::uuid)`

	var keep *string
	if keepID != nil {
		s := keepID.String()
		keep = &s
	}
	if _, err := r.db.Pool.Exec(ctx, query, registrationID, keep); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) ActiveSince(ctx context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]bool, error) {
	active := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return active, nil
	}

	query := `
		SELECT DISTINCT registration_id
		FROM chat_sessions
		WHERE registration_id = ANY($1::uuid[]) AND last_active_at >= $2
	`
	rows, err := r.db.Pool.Query(ctx, query, uuidStrings(ids), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		active[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate presence: %w", err)
	}
	return active, nil
}
