// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campusguard"

var (
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_created_total",
		Help:      "Alerts created, by kind.",
	}, []string{"kind"})

	AlertTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_transitions_total",
		Help:      "Alert state transitions, by kind and target status.",
	}, []string{"kind", "status"})

	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_escalations_total",
		Help:      "Alerts escalated, by kind and cause.",
	}, []string{"kind", "cause"})

	ThrottleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttle_rejections_total",
		Help:      "Submissions rejected by the per-requester throttle.",
	})

	RealtimeDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_deliveries_total",
		Help:      "Realtime messages handed to connected sessions, by event type.",
	}, []string{"event"})

	OutboundNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_notifications_total",
		Help:      "Out-of-band notifications, by channel and result.",
	}, []string{"channel", "result"})

	WebsocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_sessions",
		Help:      "Currently connected websocket sessions.",
	})

	PersistencePending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "persistence_pending_ops",
		Help:      "Write-behind operations waiting to reach MongoDB.",
	})

	RateLimitDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_denied_total",
		Help:      "Requests denied by the network rate limiter, by route.",
	}, []string{"route"})
)
