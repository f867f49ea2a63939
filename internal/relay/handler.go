package relay

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// Handler upgrades HTTP requests to WebSocket and serves the STOMP wire
// protocol on them.
type Handler struct {
	broker        *Broker
	responder     Responder
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a relay handler around broker and responder.
func NewHandler(broker *Broker, responder Responder, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		broker:        broker,
		responder:     responder,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        slog.Default(),
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	activeConnections.Inc()
	defer activeConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	nc := websocket.NetConn(ctx, ws, websocket.MessageText)
	wire := newWire(nc, h.broker, h.responder, h.logger)
	wire.serve(ctx)

	h.logger.Info("Relay connection ended", "ip", r.RemoteAddr)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
