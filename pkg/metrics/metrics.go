package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoomsActive tracks rooms currently in the registry.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rooms_active",
		Help: "Number of rooms currently registered.",
	})

	// ConnectionsActive tracks viewer connections bound to a room.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_connections_active",
		Help: "Number of viewer connections currently joined to a room.",
	})

	// RoomsReaped counts rooms evicted by the reaper (empty or idle).
	RoomsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rooms_reaped_total",
		Help: "Rooms evicted by the periodic reaper.",
	})

	// FanoutTotal counts messages delivered to room members.
	FanoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_fanout_messages_total",
		Help: "Messages delivered to room members via broadcast.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
