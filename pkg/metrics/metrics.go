package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all sync agent metrics
type Metrics struct {
	// Pull metrics
	PullsTotal  *prometheus.CounterVec
	PullLatency *prometheus.HistogramVec

	// Push metrics
	PushEventsTotal  *prometheus.CounterVec
	DuplicateDropped *prometheus.CounterVec

	// Transport metrics
	Reconnects   prometheus.Counter
	EmitsDropped prometheus.Counter

	// Store gauges
	UnreadNotifications prometheus.Gauge
	Threads             prometheus.Gauge
}

// New creates and registers all sync agent metrics
func New(namespace string) *Metrics {
	return &Metrics{
		PullsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulls_total",
			Help:      "Total number of pull requests by resource and status",
		}, []string{"resource", "status"}),
		PullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pull_duration_seconds",
			Help:      "Duration of pull requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"resource"}),
		PushEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_total",
			Help:      "Total number of push events received by event name",
		}, []string{"event"}),
		DuplicateDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_events_dropped_total",
			Help:      "Push events dropped by idempotence guards",
		}, []string{"event"}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Total number of transport reconnect attempts",
		}),
		EmitsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_emits_dropped_total",
			Help:      "Outbound events dropped because the transport was disconnected",
		}),
		UnreadNotifications: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_notifications",
			Help:      "Current unread notification count",
		}),
		Threads: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "Current number of message threads in the store",
		}),
	}
}
