// Package chat implements the chat session protocol: one session per
// conversation, an append-only message log, and incremental assembly of
// streamed assistant responses.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a message.
type Sender string

const (
	// SenderUser marks messages written by the human participant.
	SenderUser Sender = "user"
	// SenderBot marks messages produced by the assistant.
	SenderBot Sender = "bot"
)

// Status tracks the delivery/processing state of a message.
type Status string

const (
	// StatusSending means the user message was appended but not yet transmitted.
	StatusSending Status = "sending"
	// StatusSent means the user message was handed to the channel.
	StatusSent Status = "sent"
	// StatusProcessing means the assistant acknowledged the request but has not
	// started streaming an answer.
	StatusProcessing Status = "processing"
	// StatusStreaming means the assistant message is accumulating fragments.
	StatusStreaming Status = "streaming"
	// StatusCompleted means the message is final.
	StatusCompleted Status = "completed"
	// StatusError means transmission failed; the message stays in the log for retry.
	StatusError Status = "error"
)

// Role is the participant role attached to every outbound request.
type Role string

const (
	// RoleCoordinator is the default console role.
	RoleCoordinator Role = "coordinador"
	// RoleProfessor is the teaching-staff role.
	RoleProfessor Role = "profesor"
)

// Valid reports whether r is one of the enumerated participant roles.
func (r Role) Valid() bool {
	return r == RoleCoordinator || r == RoleProfessor
}

// Label returns the display name used when formatting context lines.
func (r Role) Label() string {
	switch r {
	case RoleCoordinator:
		return "Coordinador"
	case RoleProfessor:
		return "Profesor"
	default:
		return "Usuario"
	}
}

// botLabel is the display name for assistant lines in the context window.
const botLabel = "Asistente"

// Message is one entry in a session's ordered log.
type Message struct {
	ID        string    `json:"id"`
	Body      string    `json:"message"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Complete  bool      `json:"complete"`
}

func newMessage(sender Sender, body string, status Status) *Message {
	return &Message{
		ID:        NewMessageID(),
		Body:      body,
		Sender:    sender,
		Timestamp: time.Now(),
		Status:    status,
	}
}

// Envelope is the outbound request published for every send. It is built
// fresh per call and never persisted.
type Envelope struct {
	Message          string   `json:"message"`
	SessionID        string   `json:"sessionId"`
	UserRole         string   `json:"userRole"`
	PreviousMessages []string `json:"previousMessages"`
}

// Fragment message-type tags.
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
	MessageTypeStatus    = "status"
)

// Fragment is one inbound payload delivered on the session topic: a full
// answer, a streamed chunk, or a transient status update.
type Fragment struct {
	Message     string `json:"message"`
	Status      string `json:"status,omitempty"`
	Complete    bool   `json:"complete,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// NewSessionID generates an opaque client-side session identifier.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

// NewMessageID generates an opaque message identifier, unique within a session.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// TopicDestination returns the per-session delivery topic.
func TopicDestination(sessionID string) string {
	return "/topic/chat/" + sessionID
}

// SendDestination is the destination outbound envelopes are published to.
const SendDestination = "/app/chat.sendMessage"

// contextWindow formats the most recent qualifying messages as
// "<RoleLabel>: <text>" lines, oldest first, capped at limit. User messages
// qualify when sent or still sending; assistant messages only once
// completed, so in-flight or failed content never leaks into context.
func contextWindow(prior []*Message, limit int, role Role) []string {
	if limit <= 0 {
		return nil
	}
	picked := make([]*Message, 0, limit)
	for i := len(prior) - 1; i >= 0 && len(picked) < limit; i-- {
		m := prior[i]
		switch m.Sender {
		case SenderUser:
			if m.Status != StatusSent && m.Status != StatusSending {
				continue
			}
		case SenderBot:
			if m.Status != StatusCompleted {
				continue
			}
		default:
			continue
		}
		picked = append(picked, m)
	}

	lines := make([]string, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		m := picked[i]
		label := botLabel
		if m.Sender == SenderUser {
			label = role.Label()
		}
		lines = append(lines, label+": "+m.Body)
	}
	return lines
}
