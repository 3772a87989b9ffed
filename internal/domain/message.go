package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is a direct message between two attendees. Content never changes
// after insert; ReadAt is set once, by the receiver opening the conversation.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"senderId"`
	ReceiverID uuid.UUID  `json:"receiverId"`
	Content    string     `json:"content"`
	ReadAt     *time.Time `json:"readAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// PartnerOf returns the other participant from userID's point of view
func (m *Message) PartnerOf(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// SendMessageRequest is the body of POST /messages
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required,uuid"`
	Content    string `json:"content"`
}

// MessageRepository defines the interface for direct message storage
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	// ListBetween returns up to limit messages exchanged by a and b that are
	// strictly older than before (when set), oldest first.
	ListBetween(ctx context.Context, a, b uuid.UUID, before *time.Time, limit int) ([]Message, error)
	// MarkRead sets read_at on unread messages from senderID to receiverID.
	MarkRead(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) (int64, error)
	// LatestPerPartner returns the newest message with each partner of userID,
	// most recent first.
	LatestPerPartner(ctx context.Context, userID uuid.UUID) ([]Message, error)
	// UnreadCounts counts unread messages addressed to receiverID grouped by
	// sender. A nil senders slice counts all senders.
	UnreadCounts(ctx context.Context, receiverID uuid.UUID, senders []uuid.UUID) (map[uuid.UUID]int, error)
	// ListSince returns messages involving userID created strictly after since,
	// oldest first.
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]Message, error)
}
