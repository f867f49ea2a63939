// Package relay implements a development STOMP relay: it accepts WebSocket
// connections, routes envelopes published to the chat send destination to a
// responder, and fans fragments out on per-session topics.
package relay

import (
	"log/slog"
	"sync"
)

// deliverer receives payloads for a destination it subscribed to.
type deliverer interface {
	deliver(destination, subID string, payload []byte) error
}

type subscriber struct {
	dest string
	id   string
	dst  deliverer
}

// Broker routes published payloads to topic subscribers.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*subscriber)}
}

// Subscribe registers dst for destination under the client-chosen
// subscription id. A re-subscription with the same id replaces the old one.
func (b *Broker) Subscribe(destination, subID string, dst deliverer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[destination]
	for i, s := range list {
		if s.dst == dst && s.id == subID {
			list[i] = &subscriber{dest: destination, id: subID, dst: dst}
			return
		}
	}
	b.subs[destination] = append(list, &subscriber{dest: destination, id: subID, dst: dst})
	slog.Debug("Relay subscription registered", "destination", destination, "sub_id", subID)
}

// Unsubscribe removes one subscription of dst.
func (b *Broker) Unsubscribe(destination, subID string, dst deliverer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[destination]
	for i, s := range list {
		if s.dst == dst && s.id == subID {
			b.subs[destination] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[destination]) == 0 {
		delete(b.subs, destination)
	}
}

// UnsubscribeAll removes every subscription of dst, used when its
// connection goes away.
func (b *Broker) UnsubscribeAll(dst deliverer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for dest, list := range b.subs {
		kept := list[:0]
		for _, s := range list {
			if s.dst != dst {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, dest)
		} else {
			b.subs[dest] = kept
		}
	}
}

// Publish delivers payload to every subscriber of destination. Delivery
// failures only drop the failing subscriber's copy; its connection reader
// handles the actual teardown.
func (b *Broker) Publish(destination string, payload []byte) {
	b.mu.RLock()
	list := make([]*subscriber, len(b.subs[destination]))
	copy(list, b.subs[destination])
	b.mu.RUnlock()

	for _, s := range list {
		if err := s.dst.deliver(destination, s.id, payload); err != nil {
			slog.Debug("Relay delivery failed", "destination", destination, "sub_id", s.id, "error", err)
		}
	}
}
