// Package metrics provides Prometheus metrics for swarmd.
// Counters and gauges for sessions, swarms, relayed frames, fan-out and
// liveness.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionsActive tracks currently connected peers.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "swarmd",
	Name:      "sessions_active",
	Help:      "Number of currently connected peer sessions.",
})

// SessionsTotal counts accepted sessions.
var SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "sessions_total",
	Help:      "Total peer sessions accepted.",
})

// Terminations counts session terminations by cause.
var Terminations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "terminations_total",
	Help:      "Total session terminations by cause.",
}, []string{"cause"})

// SessionDuration tracks how long sessions stay connected.
var SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "swarmd",
	Name:      "session_duration_seconds",
	Help:      "Peer session lifetime in seconds.",
	Buckets:   []float64{1, 10, 30, 60, 300, 900, 3600, 14400},
})

// HandshakeRejected counts upgrade requests refused by the access key check.
var HandshakeRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "handshake_rejected_total",
	Help:      "Total WebSocket upgrades rejected during the handshake.",
})

// ─── Swarms ─────────────────────────────────────────────────────────────────

// SwarmsActive tracks non-empty swarms across all domains.
var SwarmsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "swarmd",
	Name:      "swarms_active",
	Help:      "Number of non-empty swarms across all domains.",
})

// SwarmJoins counts JOIN_SWARM requests that added a new membership.
var SwarmJoins = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "swarm_joins_total",
	Help:      "Total swarm memberships created.",
})

// ─── Frames ─────────────────────────────────────────────────────────────────

// FramesReceived counts inbound frames by opcode.
var FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "frames_received_total",
	Help:      "Total inbound frames by opcode.",
}, []string{"opcode"})

// FramesDropped counts inbound frames discarded as protocol errors.
var FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "frames_dropped_total",
	Help:      "Total inbound frames dropped by reason.",
}, []string{"reason"})

// RelayMisses counts relays whose target peer was not connected.
var RelayMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "relay_misses_total",
	Help:      "Total relays addressed to an unknown peer.",
}, []string{"opcode"})

// ─── Fan-out ────────────────────────────────────────────────────────────────

// BroadcastSends counts individual fan-out deliveries by result.
var BroadcastSends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "broadcast_sends_total",
	Help:      "Total fan-out deliveries by result (ok, failed).",
}, []string{"result"})

// ─── Liveness ───────────────────────────────────────────────────────────────

// LivenessTimeouts counts sessions reclaimed by the heartbeat.
var LivenessTimeouts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "liveness_timeouts_total",
	Help:      "Total sessions terminated for missing a heartbeat.",
})

// PingFailures counts pings that could not be written.
var PingFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "swarmd",
	Name:      "ping_failures_total",
	Help:      "Total heartbeat pings that failed to write.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "swarmd",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
