package chat

import "context"

// Channel is the duplex, topic-based transport a session talks through.
// Implementations must support repeated Connect calls so the session can
// re-establish the link after an unexpected close.
type Channel interface {
	// Connect opens the transport and completes the protocol handshake.
	Connect(ctx context.Context) error

	// Subscribe routes payloads delivered on destination to fn until the
	// current link goes away. Must be called after a successful Connect.
	Subscribe(destination string, fn func(payload []byte)) error

	// Publish sends body to destination on the current link.
	Publish(destination string, body []byte) error

	// Done returns a channel closed when the current link has gone away.
	Done() <-chan struct{}

	// Err reports why the last link ended. A nil error means a clean local
	// or remote close; anything else is an unexpected failure.
	Err() error

	// Close tears the transport down. Idempotent.
	Close() error
}

// Observer is notified of every state or log mutation of a session. All
// callbacks receive value copies and run outside the session's lock, but on
// the goroutine that caused the mutation, so implementations should return
// quickly.
type Observer interface {
	// ConnectionStateChanged fires on every connection state transition.
	ConnectionStateChanged(sessionID string, state ConnectionState)

	// MessageAppended fires when a new message enters the log.
	MessageAppended(sessionID string, msg Message)

	// MessageUpdated fires when an existing message's body or status changed.
	MessageUpdated(sessionID string, msg Message)
}
