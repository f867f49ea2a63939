// Package store persists chat transcripts.
package store

import (
	"context"
	"time"
)

// SessionRecord is one persisted conversation.
type SessionRecord struct {
	SessionID string
	UserRole  string
	StartedAt time.Time
}

// MessageRecord is one persisted log entry. Seq reflects insertion order
// within the session.
type MessageRecord struct {
	ID        string
	SessionID string
	Sender    string
	Body      string
	Status    string
	Complete  bool
	CreatedAt time.Time
	Seq       int64
}

// TranscriptStore defines the interface for persisting sessions and their
// message logs.
type TranscriptStore interface {
	// UpsertSession creates or refreshes a session record.
	UpsertSession(ctx context.Context, rec *SessionRecord) error

	// AppendMessage inserts a new message at the end of its session's log.
	AppendMessage(ctx context.Context, rec *MessageRecord) error

	// UpdateMessage rewrites body, status, and completion of an existing
	// message.
	UpdateMessage(ctx context.Context, rec *MessageRecord) error

	// ListMessages returns a session's messages in insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]*MessageRecord, error)

	// ListSessions returns all recorded sessions, newest first.
	ListSessions(ctx context.Context) ([]*SessionRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
