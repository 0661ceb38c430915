package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsReceived counts items accepted into the store by category
	// and source (live|pending).
	NotificationsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentconsole_notifications_received_total",
			Help: "Total number of notifications accepted into the store",
		},
		[]string{"category", "source"},
	)

	// NotificationsResolved counts accept/reject/assignment removals.
	NotificationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentconsole_notifications_resolved_total",
			Help: "Total number of notifications resolved or claimed elsewhere",
		},
		[]string{"category", "outcome"},
	)

	// AlertTransitions counts alert state machine transitions (looping|idle).
	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentconsole_alert_transitions_total",
			Help: "Total number of alert signal state transitions",
		},
		[]string{"state"},
	)

	// UpstreamReconnects counts socket reconnection attempts.
	UpstreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentconsole_upstream_reconnects_total",
			Help: "Total number of upstream socket reconnect attempts",
		},
	)

	// PendingBacklog tracks the pending count per category.
	PendingBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentconsole_pending_backlog",
			Help: "Pending notification count per category",
		},
		[]string{"category"},
	)

	// APILatency measures local HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentconsole_api_latency_seconds",
			Help:    "Local API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
