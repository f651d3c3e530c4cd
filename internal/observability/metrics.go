package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	realtimeConnectionsActive prometheus.Gauge
	realtimeEventsTotal       *prometheus.CounterVec
	realtimeSendFailuresTotal prometheus.Counter
	webhookDeliveriesTotal    *prometheus.CounterVec
	notificationsFanoutTotal  *prometheus.CounterVec
	scheduledCardsCreated     prometheus.Counter
	backoffResetsTotal        prometheus.Counter

	requestsTotal  *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the sync pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		realtimeConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of live websocket connections across all spaces.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Total realtime events broadcast, labelled by event type.",
		}, []string{"type"})

		realtimeSendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_send_failures_total",
			Help: "Connections dropped from their space after a failed send.",
		})

		webhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts, labelled by outcome.",
		}, []string{"outcome"})

		notificationsFanoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_fanout_total",
			Help: "Notification records created by fanout, labelled by type.",
		}, []string{"type"})

		scheduledCardsCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduled_cards_created_total",
			Help: "Cards materialized from recurring templates.",
		})

		backoffResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backoff_resets_total",
			Help: "Backoff counters reset after a sufficiently quiet period.",
		})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(
			realtimeConnectionsActive,
			realtimeEventsTotal,
			realtimeSendFailuresTotal,
			webhookDeliveriesTotal,
			notificationsFanoutTotal,
			scheduledCardsCreated,
			backoffResetsTotal,
			requestsTotal,
			latencySeconds,
			errorsTotal,
		)
	})
}

// RealtimeConnectionsActive exposes the live connection gauge.
func RealtimeConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnectionsActive
}

// RealtimeEvents exposes the broadcast counter.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// RealtimeSendFailures exposes the dropped-connection counter.
func RealtimeSendFailures() prometheus.Counter {
	RegisterMetrics()
	return realtimeSendFailuresTotal
}

// WebhookDeliveries exposes the delivery attempt counter.
func WebhookDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return webhookDeliveriesTotal
}

// NotificationsFanout exposes the fanout counter.
func NotificationsFanout() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsFanoutTotal
}

// ScheduledCardsCreated exposes the materialization counter.
func ScheduledCardsCreated() prometheus.Counter {
	RegisterMetrics()
	return scheduledCardsCreated
}

// BackoffResets exposes the rehabilitation counter.
func BackoffResets() prometheus.Counter {
	RegisterMetrics()
	return backoffResetsTotal
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}
