package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubActiveConnections tracks the number of registered connections.
	HubActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_connections",
			Help: "Number of registered WebSocket connections",
		},
	)

	// HubActiveRooms tracks the number of rooms with at least one member.
	HubActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_rooms",
			Help: "Number of rooms with at least one subscribed connection",
		},
	)

	// HubEventsPublishedTotal tracks events entering the hub by kind.
	HubEventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_published_total",
			Help: "Total events published to the hub by kind",
		},
		[]string{"kind"},
	)

	// HubDeliveriesTotal tracks per-connection enqueues by kind.
	HubDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_deliveries_total",
			Help: "Total event deliveries enqueued to connection send queues by kind",
		},
		[]string{"kind"},
	)

	// HubSlowClientsEvictedTotal tracks connections dropped for full send queues.
	HubSlowClientsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total connections force-closed because their send queue overflowed",
		},
	)

	// HubCommandChannelDepth tracks current coordinator command channel depth.
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current coordinator command channel depth",
		},
	)

	// HubPanicsTotal tracks coordinator panic recoveries.
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_panics_total",
			Help: "Total hub coordinator panic recoveries",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsTotal tracks connection attempts by result.
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason.
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketMessageSendDuration tracks message send duration.
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketPingFailures tracks ping write failures.
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketControlMessagesTotal tracks client control messages by action.
	WebSocketControlMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_control_messages_total",
			Help: "Total client control messages by action (subscribe/unsubscribe/invalid)",
		},
		[]string{"action"},
	)
)

// Producer Bridge Metrics
var (
	// BridgeMessagesReceived tracks envelopes received on the producer channel.
	BridgeMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_messages_received_total",
			Help: "Total producer envelopes received over Redis pub/sub",
		},
	)

	// BridgeDecodeErrors tracks envelopes that failed to decode.
	BridgeDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_decode_errors_total",
			Help: "Total producer envelopes dropped due to decode errors",
		},
	)

	// BridgeSubscriptionActive tracks whether the pub/sub subscription is up.
	BridgeSubscriptionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_subscription_active",
			Help: "1 if the producer pub/sub subscription is active, 0 if disconnected",
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "go_version"},
	)
)
