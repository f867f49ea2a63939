package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements TranscriptStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed transcript store.
func NewSQLite(dbPath string) (TranscriptStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		user_role TEXT NOT NULL,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertSession creates or refreshes a session record.
func (s *SQLiteStore) UpsertSession(ctx context.Context, rec *SessionRecord) error {
	query := `
	INSERT INTO chat_sessions (session_id, user_role, started_at)
	VALUES (?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		user_role = excluded.user_role`

	_, err := s.execRetry(ctx, query, rec.SessionID, rec.UserRole, rec.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AppendMessage inserts a new message at the end of its session's log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, rec *MessageRecord) error {
	query := `
	INSERT INTO chat_messages (id, session_id, sender, body, status, complete, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.execRetry(ctx, query,
		rec.ID, rec.SessionID, rec.Sender, rec.Body, rec.Status,
		boolToInt(rec.Complete), rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// UpdateMessage rewrites body, status, and completion of an existing message.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, rec *MessageRecord) error {
	query := `UPDATE chat_messages SET body = ?, status = ?, complete = ? WHERE id = ?`

	result, err := s.execRetry(ctx, query, rec.Body, rec.Status, boolToInt(rec.Complete), rec.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateMessage affected 0 rows", "message_id", rec.ID)
	}
	return nil
}

// ListMessages returns a session's messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*MessageRecord, error) {
	query := `
	SELECT seq, id, session_id, sender, body, status, complete, created_at
	FROM chat_messages WHERE session_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []*MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var complete int
		var createdAt int64

		if err := rows.Scan(
			&rec.Seq, &rec.ID, &rec.SessionID, &rec.Sender,
			&rec.Body, &rec.Status, &complete, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		rec.Complete = complete != 0
		rec.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// ListSessions returns all recorded sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	query := `SELECT session_id, user_role, started_at FROM chat_sessions ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var startedAt int64
		if err := rows.Scan(&rec.SessionID, &rec.UserRole, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.StartedAt = time.Unix(startedAt, 0)
		sessions = append(sessions, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execRetry retries writes that hit transient SQLite locking errors with
// exponential backoff: 100ms, 200ms, 400ms.
func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var result sql.Result
	var err error
	for i := 0; i < maxRetries; i++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !isSQLiteBusy(err) {
			return result, err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("SQLite busy, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return result, err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
