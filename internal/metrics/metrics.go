// Package metrics declares the Prometheus instrumentation shared by every
// service in the system.
//
// Grounded on RoseWrightdev/Video-Conferencing backend/go/internal/v1/session/metrics.go
// and internal/v1/metrics/metrics.go: namespace_subsystem_name naming, one
// package so metric identity is never duplicated across registration sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveDuplexConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "duplex",
		Name:      "connections_active",
		Help:      "Current number of active duplex (chat/video) sessions.",
	}, []string{"engine"})

	ActiveRooms = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of in-memory room registries.",
	}, []string{"engine"})

	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of subscribed sessions in each room.",
	}, []string{"engine", "room_id"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "duplex",
		Name:      "events_total",
		Help:      "Total duplex events processed.",
	}, []string{"engine", "event", "status"})

	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "realtime",
		Subsystem: "duplex",
		Name:      "event_processing_seconds",
		Help:      "Time spent processing one duplex event.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"engine", "event"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "0=closed 1=open 2=half-open.",
	}, []string{"dependency"})

	CircuitBreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "circuit_breaker",
		Name:      "rejections_total",
		Help:      "Requests rejected while a breaker was open.",
	}, []string{"dependency"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Requests rejected for exceeding their rate limit.",
	}, []string{"endpoint", "scope"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "realtime",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Store operations that needed a retry before success or giving up.",
	}, []string{"operation"})

	GatewayUpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "gateway",
		Name:      "upstream_errors_total",
		Help:      "Failed upstream dials/handshakes by backend.",
	}, []string{"backend"})
)

// BreakerStateValue maps a breaker state name to the gauge value convention
// used across this codebase (0 closed, 1 open, 2 half-open).
func BreakerStateValue(name string) float64 {
	switch name {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
