package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime connection metrics
var (
	// ActivePonds tracks the number of ponds with at least one subscriber
	ActivePonds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_ponds",
			Help: "Number of ponds with at least one active connection",
		},
	)

	// ConnectedClients tracks the total number of live connections
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connected_clients",
			Help: "Total number of live WebSocket connections across all ponds",
		},
	)

	// AdmissionsTotal tracks connection admissions by outcome
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_admissions_total",
			Help: "Connection admission attempts by outcome (admitted/rejected)",
		},
		[]string{"outcome"},
	)

	// ConnectionsClosedTotal tracks connection teardowns by reason
	ConnectionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_closed_total",
			Help: "Connections closed by reason",
		},
		[]string{"reason"},
	)
)

// Broadcast metrics
var (
	// MessagesSentTotal tracks frames successfully delivered to clients
	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_messages_sent_total",
			Help: "Total frames successfully written to client connections",
		},
	)

	// MessagesReceivedTotal tracks inbound frames from clients
	MessagesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_messages_received_total",
			Help: "Total frames received from client connections",
		},
	)

	// SendFailuresTotal tracks per-connection delivery failures
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_send_failures_total",
			Help: "Total per-connection send failures during broadcast",
		},
	)

	// PublishDuration tracks broadcast fan-out latency per publish call
	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_publish_duration_seconds",
			Help:    "Duration of a single publish fan-out in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// EventsPublishedTotal tracks publishes by event type
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total events published by event type",
		},
		[]string{"event_type"},
	)
)

// Heartbeat metrics
var (
	// HeartbeatProbesTotal tracks liveness probes sent to idle connections
	HeartbeatProbesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_heartbeat_probes_total",
			Help: "Total liveness probes sent to idle connections",
		},
	)

	// HeartbeatEvictionsTotal tracks connections evicted for missed heartbeats
	HeartbeatEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_heartbeat_evictions_total",
			Help: "Total connections evicted after missing the heartbeat grace window",
		},
	)
)

// Event source metrics
var (
	// EventQueueDroppedTotal tracks events dropped because a pond queue was full
	EventQueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsource_queue_dropped_total",
			Help: "Total events dropped because the per-pond queue was full",
		},
	)

	// EventQueueDepth tracks the number of pond queues currently active
	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsource_active_pond_queues",
			Help: "Number of per-pond event queues currently active",
		},
	)
)
