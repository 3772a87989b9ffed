package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
)

const registrationColumns = `id, name, email, title, organization, picture_url, created_at`

// RegistrationRepository implements domain.RegistrationRepository
type RegistrationRepository struct {
	db *DB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*domain.Registration, error) {
	var reg domain.Registration
	var createdAt int64
	if err := row.Scan(
		&reg.ID,
		&reg.Name,
		&reg.Email,
		&reg.Title,
		&reg.Organization,
		&reg.PictureURL,
		&createdAt,
	); err != nil {
		return nil, err
	}
	reg.CreatedAt = fromMicros(createdAt)
	return &reg, nil
}

// Create inserts a registration. The registration flow owns this table in
// production; this exists for single-node setups and fixtures.
func (r *RegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	query := `
		INSERT INTO registrations (id, name, email, title, organization, picture_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.SQL.ExecContext(ctx, query,
		reg.ID.String(),
		reg.Name,
		reg.Email,
		reg.Title,
		reg.Organization,
		reg.PictureURL,
		toMicros(reg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", translateError(err))
	}
	return nil
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = ?`

	reg, err := scanRegistration(r.db.SQL.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) GetByEmail(ctx context.Context, email string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE lower(email) = lower(?)`

	reg, err := scanRegistration(r.db.SQL.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration by email: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Registration, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inClause(ids)
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id IN (` + in + `)`

	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	return collectRegistrations(rows)
}

func (r *RegistrationRepository) Search(ctx context.Context, q string, excludeID uuid.UUID, limit int) ([]domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE id <> ?
		  AND (? = '' OR name LIKE ? ESCAPE '\' OR organization LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')
		ORDER BY name COLLATE NOCASE ASC
		LIMIT ?
	`

	q = strings.TrimSpace(q)
	pattern := "%" + likeEscaper.Replace(q) + "%"

	rows, err := r.db.SQL.QueryContext(ctx, query, excludeID.String(), q, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search registrations: %w", err)
	}
	defer rows.Close()

	return collectRegistrations(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func collectRegistrations(rows *sql.Rows) ([]domain.Registration, error) {
	var regs []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}
