package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shareit"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings successfully created.",
		},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decisions_total",
			Help:      "Owner decisions on bookings by resulting status.",
		},
		[]string{"status"},
	)

	classificationQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_queries_total",
			Help:      "Booking list queries by side (booker/owner) and category.",
		},
		[]string{"side", "category"},
	)

	eventsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_forwarded_total",
			Help:      "Lifecycle events pushed to the external sink by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			bookingDecisions,
			classificationQueries,
			eventsForwarded,
		)
	})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

func IncBookingDecision(status string) {
	bookingDecisions.WithLabelValues(status).Inc()
}

func IncClassification(side, category string) {
	classificationQueries.WithLabelValues(side, category).Inc()
}

func IncEventForwarded(outcome string) {
	eventsForwarded.WithLabelValues(outcome).Inc()
}
