package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	err := row.Scan(
		&reg.ID,
		&reg.Name,
		&reg.Email,
		&reg.Title,
		&reg.Organization,
		&reg.PictureURL,
		&reg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetByID retrieves a registration by ID
func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`

	reg, err := scanRegistration(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

// GetByEmail retrieves a registration by normalized email
func (r *RegistrationRepository) GetByEmail(ctx context.Context, email string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE lower(email) = lower($1)`

	reg, err := scanRegistration(r.db.Pool.QueryRow(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration by email: %w", err)
	}
	return reg, nil
}

// ListByIDs retrieves the registrations that exist among ids
func (r *RegistrationRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Registration, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = ANY($1::uuid[])`

	rows, err := r.db.Pool.Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	return collectRegistrations(rows)
}

// Search matches name, organization and title case-insensitively
func (r *RegistrationRepository) Search(ctx context.Context, q string, excludeID uuid.UUID, limit int) ([]domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE id <> $1
		  AND ($2 = '' OR name ILIKE $3 OR organization ILIKE $3 OR title ILIKE $3)
		ORDER BY name ASC
		LIMIT $4
	`

	q = strings.TrimSpace(q)
	pattern := "%" + likeEscaper.Replace(q) + "%"

	rows, err := r.db.Pool.Query(ctx, query, excludeID, q, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search registrations: %w", err)
	}
	defer rows.Close()

	return collectRegistrations(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func collectRegistrations(rows pgx.Rows) ([]domain.Registration, error) {
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
