package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_phase_transitions_total",
			Help: "Queue phase transitions",
		},
		[]string{"from", "to"},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Queue operations by outcome",
		},
		[]string{"op", "result"}, // result: ok|validation|capacity|persistence|invariant|unknown
	)

	TimerExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_timer_expirations_total",
			Help: "Bounded waits resolved by their deadline",
		},
		[]string{"phase"},
	)

	RosterSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_roster_size",
			Help: "Participants currently on each queue roster",
		},
		[]string{"queue"},
	)

	PersistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recorder_persist_duration_seconds",
			Help:    "Duration of match recorder writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "result"}, // result: success|failure
	)

	PointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recorder_points_awarded_total",
			Help: "Points awarded to winning players",
		},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_events_received_total",
			Help: "Inbound platform events by source",
		},
		[]string{"source", "type"}, // source: http|ws|pubsub
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open websocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(PhaseTransitions)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(TimerExpirations)
	prometheus.MustRegister(RosterSize)
	prometheus.MustRegister(PersistDuration)
	prometheus.MustRegister(PointsAwarded)
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(WSConnections)
}

func Handler() http.Handler { return promhttp.Handler() }
