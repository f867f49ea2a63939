// Package transport provides the STOMP-over-WebSocket implementation of
// the chat channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"

	"github.com/gestproy/console/internal/chat"
)

// Options configure a STOMP channel.
type Options struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Heartbeat is the requested bidirectional keep-alive interval. The
	// effective value is negotiated with the broker; 0 requests none.
	Heartbeat time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// link is one established WebSocket+STOMP connection. A channel goes
// through a fresh link on every reconnect.
type link struct {
	ws    *websocket.Conn
	conn  *stomp.Conn
	done  chan struct{}
	once  sync.Once
	errMu sync.Mutex
	err   error
}

func (l *link) finish(err error) {
	l.once.Do(func() {
		l.errMu.Lock()
		l.err = err
		l.errMu.Unlock()
		close(l.done)
	})
}

func (l *link) finished() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// STOMPChannel implements chat.Channel by speaking STOMP over a WebSocket
// connection.
type STOMPChannel struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	cur    *link
	closed bool
}

var _ chat.Channel = (*STOMPChannel)(nil)

// NewSTOMPChannel creates an unconnected channel for the given endpoint.
func NewSTOMPChannel(opts Options) *STOMPChannel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &STOMPChannel{opts: opts, logger: logger}
}

// Connect dials the WebSocket endpoint and completes the STOMP handshake.
// Calling Connect while a live link exists is a no-op; after the link went
// away a new one is established.
func (c *STOMPChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("stomp channel closed")
	}
	if c.cur != nil && !c.cur.finished() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return fmt.Errorf("parse endpoint %q: %w", c.opts.URL, err)
	}

	ws, _, err := websocket.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	// The net.Conn must outlive the dial context; the link is torn down
	// explicitly via Close.
	netConn := websocket.NetConn(context.Background(), ws, websocket.MessageText)

	conn, err := stompConnect(netConn, u.Host, c.opts.Heartbeat)
	if err != nil {
		_ = ws.Close(websocket.StatusProtocolError, "stomp handshake failed")
		return fmt.Errorf("stomp handshake: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Disconnect()
		_ = ws.Close(websocket.StatusNormalClosure, "channel closed")
		return errors.New("stomp channel closed")
	}
	c.cur = &link{ws: ws, conn: conn, done: make(chan struct{})}
	c.mu.Unlock()

	c.logger.Debug("STOMP channel connected", "endpoint", c.opts.URL)
	return nil
}

func stompConnect(conn net.Conn, host string, heartbeat time.Duration) (*stomp.Conn, error) {
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(host),
		stomp.ConnOpt.HeartBeat(heartbeat, heartbeat),
	}
	return stomp.Connect(conn, opts...)
}

// Subscribe registers a subscription on the current link and pumps
// delivered bodies into fn until the link dies.
func (c *STOMPChannel) Subscribe(destination string, fn func(payload []byte)) error {
	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil || l.finished() {
		return errors.New("stomp channel not connected")
	}

	sub, err := l.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", destination, err)
	}

	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				l.finish(msg.Err)
				return
			}
			fn(msg.Body)
		}
		// Channel drained without an error frame: clean close.
		l.finish(nil)
	}()
	return nil
}

// Publish sends body to destination as application/json.
func (c *STOMPChannel) Publish(destination string, body []byte) error {
	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil || l.finished() {
		return errors.New("stomp channel not connected")
	}

	if err := l.conn.Send(destination, "application/json", body); err != nil {
		return fmt.Errorf("publish %s: %w", destination, err)
	}
	return nil
}

// Done reports the current link's lifetime.
func (c *STOMPChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.cur.done
}

// Err reports why the current link ended; nil while it is alive or when it
// closed cleanly.
func (c *STOMPChannel) Err() error {
	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil || !l.finished() {
		return nil
	}
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// Close tears the transport down. Idempotent; safe with no live link.
func (c *STOMPChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	l := c.cur
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	if !l.finished() {
		if err := l.conn.Disconnect(); err != nil {
			c.logger.Debug("STOMP disconnect failed", "error", err)
		}
	}
	if err := l.ws.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
		c.logger.Debug("WebSocket close failed", "error", err)
	}
	l.finish(nil)
	return nil
}
