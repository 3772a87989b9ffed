package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Registration is an event attendee. The registration flow owns these rows;
// the chat core only reads them.
type Registration struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Title        string    `json:"title"`
	Organization string    `json:"organization"`
	PictureURL   string    `json:"pictureUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserSummary is the public profile of an attendee as shown in chat
type UserSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Title        string    `json:"title,omitempty"`
	Organization string    `json:"organization,omitempty"`
	PictureURL   string    `json:"pictureUrl,omitempty"`
}

// Summary strips private fields such as the email address
func (r *Registration) Summary() UserSummary {
	return UserSummary{
		ID:           r.ID,
		Name:         r.Name,
		Title:        r.Title,
		Organization: r.Organization,
		PictureURL:   r.PictureURL,
	}
}

// Attendee is a search result entry
type Attendee struct {
	UserSummary
	IsOnline bool `json:"isOnline"`
}

// RegistrationRepository defines read access to attendee registrations
type RegistrationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Registration, error)
	GetByEmail(ctx context.Context, email string) (*Registration, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]Registration, error)
	Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]Registration, error)
}
