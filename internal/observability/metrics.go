package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTransitions counts friend request state machine transitions.
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_request_transitions_total",
		Help: "Friend request transitions by kind and outcome",
	}, []string{"transition", "outcome"})

	// StoreErrors counts store failures by operation and error code.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_store_errors_total",
		Help: "Total number of store errors by operation and code",
	}, []string{"operation", "code"})

	// DatabaseQueryLatency records transaction latency by operation.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialgraph_store_batch_latency_seconds",
		Help:    "Store batch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// RedisErrorRate counts Redis errors by command.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// PresenceWrites counts presence upserts by result (applied, superseded, error).
	PresenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_presence_writes_total",
		Help: "Presence record writes by result",
	}, []string{"result"})

	// PresenceReaped counts stale online records flipped offline by the reaper.
	PresenceReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialgraph_presence_reaped_total",
		Help: "Stale presence records marked offline by the reaper",
	})

	// EventsPublished counts graph events by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_events_published_total",
		Help: "Graph events published by type",
	}, []string{"event_type"})

	// EventDrops counts events dropped for slow subscribers.
	EventDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_event_drops_total",
		Help: "Events dropped due to subscriber backpressure",
	}, []string{"subscriber", "reason"})

	// ActiveSubscriptions is the gauge of live event subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialgraph_active_subscriptions",
		Help: "Number of live event subscriptions",
	})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialgraph_websocket_connections",
		Help: "Total number of active WebSocket connections",
	})
)

// TrackBatch returns a function that records batch latency when called (e.g. defer).
func TrackBatch(operation string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
