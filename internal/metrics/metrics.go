package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Send pipeline metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages successfully persisted",
		},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_send_failures_total",
			Help: "Sends rejected or rolled back",
		},
		[]string{"reason"}, // "validation", "busy", "remote"
	)

	// Log metrics
	MessagesMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_merged_total",
			Help: "Messages inserted or replaced by merge",
		},
	)

	MessagesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_pruned_total",
			Help: "Messages evicted by retention",
		},
	)

	LogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_log_size",
			Help: "Current number of messages in the local log",
		},
	)

	// Subscription metrics
	BatchesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_batches_received_total",
			Help: "Push batches delivered by the subscription",
		},
	)

	BatchesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_batches_skipped_total",
			Help: "Push batches suppressed while a local send was in flight",
		},
	)

	// Transport metrics
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_reconnects_total",
			Help: "Websocket reconnect attempts scheduled",
		},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_frames_dropped_total",
			Help: "Malformed inbound websocket frames dropped",
		},
	)

	// Server (chatd) metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Currently attached websocket sessions",
		},
	)
)
