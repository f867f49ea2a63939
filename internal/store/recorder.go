package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/gestproy/console/internal/chat"
)

// Recorder mirrors a session's log mutations into a TranscriptStore.
// Failures are logged and swallowed: persistence never disturbs the chat.
type Recorder struct {
	store   TranscriptStore
	logger  *slog.Logger
	timeout time.Duration
}

var _ chat.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing through store.
func NewRecorder(store TranscriptStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, timeout: 5 * time.Second}
}

// RecordSession registers the session itself; call it once before opening.
func (r *Recorder) RecordSession(sessionID string, role chat.Role) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := r.store.UpsertSession(ctx, &SessionRecord{
		SessionID: sessionID,
		UserRole:  string(role),
		StartedAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn("Failed to record session", "session_id", sessionID, "error", err)
	}
}

// ConnectionStateChanged implements chat.Observer; connection state is not
// persisted.
func (r *Recorder) ConnectionStateChanged(sessionID string, state chat.ConnectionState) {}

// MessageAppended implements chat.Observer.
func (r *Recorder) MessageAppended(sessionID string, msg chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.AppendMessage(ctx, toRecord(sessionID, msg)); err != nil {
		r.logger.Warn("Failed to record message", "session_id", sessionID, "message_id", msg.ID, "error", err)
	}
}

// MessageUpdated implements chat.Observer.
func (r *Recorder) MessageUpdated(sessionID string, msg chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.UpdateMessage(ctx, toRecord(sessionID, msg)); err != nil {
		r.logger.Warn("Failed to record message update", "session_id", sessionID, "message_id", msg.ID, "error", err)
	}
}

func toRecord(sessionID string, msg chat.Message) *MessageRecord {
	return &MessageRecord{
		ID:        msg.ID,
		SessionID: sessionID,
		Sender:    string(msg.Sender),
		Body:      msg.Body,
		Status:    string(msg.Status),
		Complete:  msg.Complete,
		CreatedAt: msg.Timestamp,
	}
}
