package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sellchat_connections_open",
			Help: "Currently open WebSocket connections",
		},
	)

	IdentitiesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sellchat_identities_registered",
			Help: "Identity keys currently held by the connection registry",
		},
	)

	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellchat_messages_routed_total",
			Help: "Chat messages accepted by the gateway",
		},
		[]string{"receiver"}, // "online" or "offline"
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellchat_frames_dropped_total",
			Help: "Inbound frames dropped by the gateway",
		},
		[]string{"reason"}, // "malformed", "incomplete", "unregistered", "backpressure"
	)

	LogPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sellchat_log_publish_failures_total",
			Help: "Failed appends to the durable message log",
		},
	)

	// Batch consumer metrics
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellchat_batch_flushes_total",
			Help: "Batch persistence flush attempts",
		},
		[]string{"result"}, // "ok", "error", "empty"
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sellchat_messages_persisted_total",
			Help: "Messages written to the relational store",
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sellchat_batch_size",
			Help:    "Messages per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)
