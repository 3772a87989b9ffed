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
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.SQL.ExecContext(ctx, query,
		session.ID.String(),
		session.RegistrationID.String(),
		session.Token,
		toMicros(session.LastActiveAt),
		toMicros(session.CreatedAt),
		toMicros(session.ExpiresAt),
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
		WHERE s.token = ? AND s.expires_at > ?
	`
	var s domain.Session
	var reg domain.Registration
	var lastActive, created, expires, regCreated int64
	err := r.db.SQL.QueryRowContext(ctx, query, token, toMicros(now)).Scan(
		&s.ID,
		&s.RegistrationID,
		&s.Token,
		&lastActive,
		&created,
		&expires,
		&reg.ID,
		&reg.Name,
		&reg.Email,
		&reg.Title,
		&reg.Organization,
		&reg.PictureURL,
		&regCreated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.LastActiveAt = fromMicros(lastActive)
	s.CreatedAt = fromMicros(created)
	s.ExpiresAt = fromMicros(expires)
	reg.CreatedAt = fromMicros(regCreated)
	return &s, &reg, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE chat_sessions SET last_active_at = ? WHERE id = ? AND last_active_at < ?`
	if _, err := r.db.SQL.ExecContext(ctx, query, toMicros(at), id.String(), toMicros(at)); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	if _, err := r.db.SQL.ExecContext(ctx, `DELETE FROM chat_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByRegistration(ctx context.Context, registrationID uuid.UUID, keepID *uuid.UUID) error {
	keep := ""
	if keepID != nil {
		keep = keepID.String()
	}
	query := `DELETE FROM chat_sessions WHERE registration_id = ? AND id <> ?`
	if _, err := r.db.SQL.ExecContext(ctx, query, registrationID.String(), keep); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) ActiveSince(ctx context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]bool, error) {
	active := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return active, nil
	}

	in, args := inClause(ids)
	query := `
		SELECT DISTINCT registration_id
		FROM chat_sessions
		WHERE registration_id IN (` + in + `) AND last_active_at >= ?
	`
	args = append(args, toMicros(since))

	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
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
