// Package observability provides logging and metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts messages successfully persisted.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jurutani_chat_messages_sent_total",
		Help: "Total number of chat messages sent",
	})

	// RealtimeEvents counts realtime events applied to open sessions,
	// by event type.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jurutani_chat_realtime_events_total",
		Help: "Total realtime events applied by type",
	}, []string{"event_type"})

	// RealtimeEventsDropped counts stale events discarded by the epoch
	// check after a conversation switch.
	RealtimeEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jurutani_chat_realtime_events_dropped_total",
		Help: "Total realtime events dropped as stale",
	})

	// AttachmentUploads counts attachment uploads by outcome.
	AttachmentUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jurutani_chat_attachment_uploads_total",
		Help: "Total attachment uploads by outcome",
	}, []string{"outcome"})

	// WebSocketConnections is the gauge of active chat sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jurutani_chat_websocket_connections",
		Help: "Number of active chat WebSocket connections",
	})
)
