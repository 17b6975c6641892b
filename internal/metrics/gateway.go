package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	startTime = time.Now()

	Uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sessiond_uptime_seconds",
			Help: "Gateway uptime in seconds",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		})

	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_connections_open",
			Help: "Current number of open websocket connections",
		})

	ConnectionsAuthenticated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_connections_authenticated",
			Help: "Current number of authenticated websocket connections",
		})

	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_connections_total",
			Help: "Total number of websocket connections ever accepted",
		})

	ConnectionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_connections_rejected_total",
			Help: "Total number of rejected connections by reason",
		},
		[]string{"reason"},
	)

	ConnectionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_connections_evicted_total",
			Help: "Total number of connections evicted by the heartbeat sweep",
		})

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_sessions_active",
			Help: "Current number of sessions not in the ended state",
		})

	SessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_created_total",
			Help: "Total number of sessions ever created",
		})

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_messages_received_total",
			Help: "Total number of messages received by type",
		},
		[]string{"type"},
	)

	MessagesBroadcast = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_messages_broadcast_total",
			Help: "Total number of frames fanned out to session members",
		})

	FailedSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_failed_sends_total",
			Help: "Total number of failed frame sends by reason",
		},
		[]string{"reason"},
	)

	HandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_handler_errors_total",
			Help: "Total number of handler errors by error code",
		},
		[]string{"code"},
	)

	TurnTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_turn_timeouts_total",
			Help: "Total number of turns advanced by the deadline timer",
		})

	SnapshotWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_snapshot_writes_total",
			Help: "Total number of session snapshots persisted",
		})

	SnapshotFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiond_snapshot_failures_total",
			Help: "Total number of session snapshot writes that gave up",
		})
)

func InitGateway() {
	prometheus.MustRegister(
		Uptime,
		ConnectionsOpen,
		ConnectionsAuthenticated,
		ConnectionsTotal,
		ConnectionsRejected,
		ConnectionsEvicted,
		ActiveSessions,
		SessionsCreated,
		MessagesReceived,
		MessagesBroadcast,
		FailedSends,
		HandlerErrors,
		TurnTimeouts,
		SnapshotWrites,
		SnapshotFailures,
	)
}
