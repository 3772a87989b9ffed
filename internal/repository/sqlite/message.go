package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
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

func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO chat_messages (id, sender_id, receiver_id, content, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.SQL.ExecContext(ctx, query,
		message.ID.String(),
		message.SenderID.String(),
		message.ReceiverID.String(),
		message.Content,
		nullableMicros(message.ReadAt),
		toMicros(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", translateError(err))
	}
	return nil
}

func (r *MessageRepository) ListBetween(ctx context.Context, a, b uuid.UUID, before *time.Time, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND (? IS NULL OR created_at < ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	cursor := nullableMicros(before)
	rows, err := r.db.SQL.QueryContext(ctx, query,
		a.String(), b.String(), b.String(), a.String(),
		cursor, cursor,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE chat_messages
		SET read_at = ?
		WHERE sender_id = ? AND receiver_id = ? AND read_at IS NULL
	`
	res, err := r.db.SQL.ExecContext(ctx, query, toMicros(at), senderID.String(), receiverID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepository) LatestPerPartner(ctx context.Context, userID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM (
			SELECT ` + messageColumns + `,
			       ROW_NUMBER() OVER (
			           PARTITION BY CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
			           ORDER BY created_at DESC, id DESC
			       ) AS rn
			FROM chat_messages
			WHERE sender_id = ? OR receiver_id = ?
		)
		WHERE rn = 1
		ORDER BY created_at DESC
	`
	id := userID.String()
	rows, err := r.db.SQL.QueryContext(ctx, query, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, receiverID uuid.UUID, senders []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	if senders != nil && len(senders) == 0 {
		return counts, nil
	}

	query := `
		SELECT sender_id, COUNT(*)
		FROM chat_messages
		WHERE receiver_id = ? AND read_at IS NULL
	`
	args := []any{receiverID.String()}
	if senders != nil {
		in, senderArgs := inClause(senders)
		query += ` AND sender_id IN (` + in + `)`
		args = append(args, senderArgs...)
	}
	query += ` GROUP BY sender_id`

	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
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

func (r *MessageRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE (sender_id = ? OR receiver_id = ?) AND created_at > ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	rows, err := r.db.SQL.QueryContext(ctx, query, userID.String(), userID.String(), toMicros(since), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list new messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]domain.Message, error) {
	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var readAt sql.NullInt64
		var createdAt int64
		if err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.ReceiverID,
			&m.Content,
			&readAt,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ReadAt = fromNullableMicros(readAt)
		m.CreatedAt = fromMicros(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
