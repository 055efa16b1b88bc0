package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "innkeeper"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Committed booking status changes by target status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Rejected booking operations by error kind.",
		},
		[]string{"kind"},
	)

	sweepResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_bookings_total",
			Help:      "Overdue checked-in bookings processed by the sweep, by outcome.",
		},
		[]string{"result"},
	)

	sideTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_tasks_total",
			Help:      "Outbox side tasks by type and result.",
		},
		[]string{"type", "result"},
	)

	sideTaskBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "side_task_backlog",
			Help:      "Outbox rows by status.",
		},
		[]string{"status"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rate_limited_total",
			Help:      "Booking creations rejected by the per-customer rate limit.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingTransitions, bookingConflicts, sweepResults, sideTasks, sideTaskBacklog, rateLimited)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTransition(status string) {
	bookingTransitions.WithLabelValues(status).Inc()
}

func IncConflict(kind string) {
	bookingConflicts.WithLabelValues(kind).Inc()
}

// IncSweep records one sweep outcome: closed, cancelled, skipped or failed.
func IncSweep(result string) {
	sweepResults.WithLabelValues(result).Inc()
}

func IncSideTask(taskType, result string) {
	sideTasks.WithLabelValues(taskType, result).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}

// SetSideTaskBacklog replaces the backlog gauge with counts keyed by status.
func SetSideTaskBacklog(counts map[string]int) {
	sideTaskBacklog.Reset()
	for status, n := range counts {
		sideTaskBacklog.WithLabelValues(status).Set(float64(n))
	}
}
