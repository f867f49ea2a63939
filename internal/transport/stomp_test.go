package transport

import (
	"context"
	"testing"
	"time"
)

func TestUnconnectedChannelSemantics(t *testing.T) {
	t.Parallel()

	c := NewSTOMPChannel(Options{URL: "ws://localhost:0/ws"})

	// With no link the lifetime channel is already closed and there is no error.
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed without a link")
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}

	if err := c.Publish("/app/chat.sendMessage", []byte("{}")); err == nil {
		t.Error("Publish succeeded without a connection")
	}
	if err := c.Subscribe("/topic/chat/x", func([]byte) {}); err == nil {
		t.Error("Subscribe succeeded without a connection")
	}
}

func TestCloseIdempotentAndFinal(t *testing.T) {
	t.Parallel()

	c := NewSTOMPChannel(Options{URL: "ws://localhost:0/ws"})
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Error("Connect succeeded on a closed channel")
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	t.Parallel()

	c := NewSTOMPChannel(Options{URL: "://not-a-url"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Error("Connect accepted a malformed endpoint")
	}
}
