package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	messagesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_in_total",
		Help: "Envelopes received on the chat send destination.",
	})

	fragmentsOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_fragments_out_total",
		Help: "Fragments fanned out on session topics.",
	})

	activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_connections",
		Help: "Currently open WebSocket connections.",
	})
)

// RegisterMetrics registers the relay collectors with reg. Safe to call
// more than once.
func RegisterMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		reg.MustRegister(messagesIn, fragmentsOut, activeConnections)
	})
}
