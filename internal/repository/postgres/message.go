package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, sender_id, receiver_id, content, read_at, created_at`

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO chat_messages (id, sender_id, receiver_id, content, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		message.ID,
		message.SenderID,
		message.ReceiverID,
		message.Content,
		message.ReadAt,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", translateError(err))
	}
	return nil
}

// ListBetween retrieves one page of the conversation between a and b
func (r *MessageRepository) ListBetween(ctx context.Context, a, b uuid.UUID, before *time.Time, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND ($3::timestamptz IS NULL OR created_at < $3::timestamptz)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`
	rows, err := r.db.Pool.Query(ctx, query, a, b, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to return chronological order (oldest first)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead stamps unread messages from sender to receiver. Rows that are
// already read do not match the predicate, so the first read wins.
func (r *MessageRepository) MarkRead(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE chat_messages
		SET read_at = $1
		WHERE sender_id = $2 AND receiver_id = $3 AND read_at IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, at, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LatestPerPartner ranks messages per partner key and keeps rank 1, so ties
// on created_at still yield exactly one row that belongs to its partner.
func (r *MessageRepository) LatestPerPartner(ctx context.Context, userID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM (
			SELECT ` + messageColumns + `,
			       ROW_NUMBER() OVER (
			           PARTITION BY CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
			           ORDER BY created_at DESC, id DESC
			       ) AS rn
			FROM chat_messages
			WHERE sender_id = $1 OR receiver_id = $1
		) ranked
		WHERE rn = 1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// UnreadCounts groups unread messages addressed to receiverID by sender
func (r *MessageRepository) UnreadCounts(ctx context.Context, receiverID uuid.UUID, senders []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	if senders != nil && len(senders) == 0 {
		return counts, nil
	}

	query := `
		SELECT sender_id, COUNT(*)
		FROM chat_messages
		WHERE receiver_id = $1 AND read_at IS NULL
		  AND ($2::uuid[] IS NULL OR sender_id = ANY($2::uuid[]))
		GROUP BY sender_id
	`
	var filter []string
	if senders != nil {
		filter = uuidStrings(senders)
	}

	rows, err := r.db.Pool.Query(ctx, query, receiverID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sender uuid.UUID
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, fmt.Errorf("failed to scan unread count: %w", err)
		}
		counts[sender] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unread counts: %w", err)
	}
	return counts, nil
}

// ListSince retrieves messages involving userID newer than since
func (r *MessageRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE (sender_id = $1 OR receiver_id = $1) AND created_at > $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list new messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.ReceiverID,
			&m.Content,
			&m.ReadAt,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
