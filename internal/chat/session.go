package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ConnectionState is the session's view of the transport link.
type ConnectionState string

const (
	// StateDisconnected is the initial state and the terminal state after Close.
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting means a handshake is in progress.
	StateConnecting ConnectionState = "connecting"
	// StateConnected means the link is up and the session topic is subscribed.
	StateConnected ConnectionState = "connected"
	// StateError means the link failed; a reconnect is pending unless the
	// session was closed.
	StateError ConnectionState = "error"
)

var (
	// ErrSendInFlight is returned when Send is called while a previous call
	// is still transmitting. The rejected call has no side effects.
	ErrSendInFlight = errors.New("chat: a send is already in flight")

	// ErrNotConnected is returned when a send is attempted without a
	// connected channel.
	ErrNotConnected = errors.New("chat: channel not connected")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("chat: session closed")
)

// sendFailureText is appended as a synthetic assistant message when a send
// cannot be transmitted.
const sendFailureText = "Error al enviar el mensaje. Verifica que el canal de chat esté conectado e inténtalo de nuevo."

const (
	defaultContextWindow  = 10
	defaultReconnectDelay = 5 * time.Second
)

// Config tunes a Session. Zero values fall back to the protocol defaults.
type Config struct {
	// SessionID overrides the generated session identifier.
	SessionID string
	// Role is the participant role attached to every outbound envelope.
	Role Role
	// ContextWindow caps how many prior completed messages accompany a send.
	ContextWindow int
	// ReconnectDelay is the backoff before re-entering connecting after an
	// unexpected close.
	ReconnectDelay time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session owns one conversation: its identifier, the channel to the
// messaging endpoint, and the ordered message log. All mutation of the log
// and of the in-progress assistant message is funneled through one mutex.
type Session struct {
	id             string
	role           Role
	channel        Channel
	logger         *slog.Logger
	contextWindow  int
	reconnectDelay time.Duration
	observers      []Observer

	mu         sync.Mutex
	state      ConnectionState
	log        []*Message
	inProgress *Message
	sending    bool
	closed     bool
}

// NewSession creates a session over ch. Observers are fixed for the
// session's lifetime.
func NewSession(ch Channel, cfg Config, observers ...Observer) *Session {
	id := cfg.SessionID
	if id == "" {
		id = NewSessionID()
	}
	role := cfg.Role
	if !role.Valid() {
		role = RoleCoordinator
	}
	window := cfg.ContextWindow
	if window <= 0 {
		window = defaultContextWindow
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		id:             id,
		role:           role,
		channel:        ch,
		logger:         logger,
		contextWindow:  window,
		reconnectDelay: delay,
		observers:      observers,
		state:          StateDisconnected,
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Role returns the participant role.
func (s *Session) Role() Role { return s.role }

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the ordered message log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.log))
	for i, m := range s.log {
		out[i] = *m
	}
	return out
}

// Open connects the channel and subscribes to the session topic. On
// handshake failure the state becomes error, a reconnect is scheduled, and
// the error is returned.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	if err := s.channel.Connect(ctx); err != nil {
		s.setState(StateError)
		s.scheduleReconnect()
		return fmt.Errorf("connect channel: %w", err)
	}

	topic := TopicDestination(s.id)
	if err := s.channel.Subscribe(topic, s.handleFragment); err != nil {
		s.setState(StateError)
		s.scheduleReconnect()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.setState(StateConnected)
	s.logger.Info("Chat session connected", "session_id", s.id, "topic", topic)

	go s.watch(s.channel.Done())
	return nil
}

// watch waits for the current link to go away and decides between a clean
// stop and a backoff reconnect.
func (s *Session) watch(done <-chan struct{}) {
	<-done

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if err := s.channel.Err(); err != nil {
		s.logger.Warn("Chat channel lost", "session_id", s.id, "error", err)
		s.setState(StateError)
		s.scheduleReconnect()
		return
	}

	s.logger.Info("Chat channel closed by remote", "session_id", s.id)
	s.setState(StateDisconnected)
}

func (s *Session) scheduleReconnect() {
	time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		skip := s.closed || s.state == StateConnecting || s.state == StateConnected
		s.mu.Unlock()
		if skip {
			return
		}
		if err := s.connect(context.Background()); err != nil {
			// connect scheduled the next attempt already.
			s.logger.Warn("Chat reconnect attempt failed", "session_id", s.id, "error", err)
		}
	})
}

// Close tears the channel down and suppresses all future reconnects.
// Idempotent; an in-progress assistant assembly stays in the log
// un-finalized.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.channel.Close(); err != nil {
		s.logger.Debug("Chat channel close failed", "session_id", s.id, "error", err)
	}
	s.setState(StateDisconnected)
	s.logger.Info("Chat session closed", "session_id", s.id)
}

// Send appends a user message, builds the outbound envelope with the
// bounded context window, and publishes it. Empty or whitespace-only text
// is a no-op. A call arriving while another is still transmitting is
// rejected with ErrSendInFlight and no side effects. Transmission failure
// leaves the user message in the log with status error and appends a
// synthetic assistant message explaining the failure.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.sending {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.sending = true
	// A new exchange always starts a fresh assembly.
	s.inProgress = nil

	msg := newMessage(SenderUser, text, StatusSending)
	s.log = append(s.log, msg)
	prior := contextWindow(s.log[:len(s.log)-1], s.contextWindow, s.role)
	connected := s.state == StateConnected
	appended := *msg
	s.mu.Unlock()

	s.notifyAppended(appended)

	var sendErr error
	if !connected {
		sendErr = ErrNotConnected
	} else {
		env := Envelope{
			Message:          text,
			SessionID:        s.id,
			UserRole:         string(s.role),
			PreviousMessages: prior,
		}
		body, err := json.Marshal(env)
		if err != nil {
			sendErr = fmt.Errorf("encode envelope: %w", err)
		} else {
			sendErr = s.channel.Publish(SendDestination, body)
		}
	}

	s.mu.Lock()
	s.sending = false
	if sendErr != nil {
		msg.Status = StatusError
		updated := *msg
		failure := newMessage(SenderBot, sendFailureText, StatusCompleted)
		failure.Complete = true
		s.log = append(s.log, failure)
		failureCopy := *failure
		s.mu.Unlock()

		s.notifyUpdated(updated)
		s.notifyAppended(failureCopy)
		s.logger.Warn("Chat send failed", "session_id", s.id, "error", sendErr)
		return fmt.Errorf("send message: %w", sendErr)
	}
	msg.Status = StatusSent
	updated := *msg
	s.mu.Unlock()

	s.notifyUpdated(updated)
	return nil
}

// handleFragment is invoked for every payload delivered on the session
// topic. Malformed payloads are dropped; user echoes are discarded. The
// rules guarantee at most one message with Complete == false exists in the
// log at any time.
func (s *Session) handleFragment(payload []byte) {
	var frag Fragment
	if err := json.Unmarshal(payload, &frag); err != nil {
		s.logger.Warn("Dropping malformed chat fragment", "session_id", s.id, "error", err)
		return
	}
	if frag.MessageType == MessageTypeUser {
		return
	}

	s.mu.Lock()
	var appended, updated *Message
	if s.inProgress == nil {
		status := StatusStreaming
		if frag.MessageType == MessageTypeStatus {
			status = StatusProcessing
		}
		msg := newMessage(SenderBot, frag.Message, status)
		s.inProgress = msg
		s.log = append(s.log, msg)
		copyMsg := *msg
		appended = &copyMsg
	} else if frag.Complete {
		// The final fragment carries the authoritative full text.
		s.inProgress.Body = frag.Message
		copyMsg := *s.inProgress
		updated = &copyMsg
	} else {
		s.inProgress.Body += "\n" + frag.Message
		copyMsg := *s.inProgress
		updated = &copyMsg
	}

	if frag.Complete {
		s.inProgress.Status = StatusCompleted
		s.inProgress.Complete = true
		copyMsg := *s.inProgress
		if appended != nil {
			appended = &copyMsg
		} else {
			updated = &copyMsg
		}
		s.inProgress = nil
	}
	s.mu.Unlock()

	if appended != nil {
		s.notifyAppended(*appended)
	}
	if updated != nil {
		s.notifyUpdated(*updated)
	}
}

func (s *Session) setState(state ConnectionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	for _, o := range s.observers {
		o.ConnectionStateChanged(s.id, state)
	}
}

func (s *Session) notifyAppended(msg Message) {
	for _, o := range s.observers {
		o.MessageAppended(s.id, msg)
	}
}

func (s *Session) notifyUpdated(msg Message) {
	for _, o := range s.observers {
		o.MessageUpdated(s.id, msg)
	}
}
