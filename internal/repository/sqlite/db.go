package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	email        TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	organization TEXT NOT NULL DEFAULT '',
	picture_url  TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_registrations_email ON registrations (lower(email));

CREATE TABLE IF NOT EXISTS chat_passwords (
	registration_id        TEXT PRIMARY KEY REFERENCES registrations(id) ON DELETE CASCADE,
	password_hash          TEXT NOT NULL DEFAULT '',
	reset_token            TEXT UNIQUE,
	reset_token_expires_at INTEGER,
	updated_at             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id) ON DELETE CASCADE,
	token           TEXT NOT NULL UNIQUE,
	last_active_at  INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	expires_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_presence ON chat_sessions (registration_id, last_active_at);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          TEXT PRIMARY KEY,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	content     TEXT NOT NULL CHECK (length(content) BETWEEN 1 AND 2000),
	read_at     INTEGER,
	created_at  INTEGER NOT NULL,
	CHECK (sender_id <> receiver_id)
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_pair ON chat_messages (sender_id, receiver_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chat_messages_receiver ON chat_messages (receiver_id, created_at);
`

// DB wraps a single-node SQLite database. Timestamps are stored as unix
// microseconds so that ordering and range predicates stay numeric.
type DB struct {
	SQL *sql.DB
}

// Open opens (and creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database file path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection: SQLite serializes writers, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{SQL: db}, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.SQL.Close()
}

// Ping verifies database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

func translateError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		unique := code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
		if unique {
			return fmt.Errorf("%w: %s", domain.ErrConflict, sqliteErr.Error())
		}
	}
	return err
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func fromNullableMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

// inClause expands ids into "?, ?, ..." and the matching arguments
func inClause(ids []uuid.UUID) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	return strings.Join(placeholders, ", "), args
}
