package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors shared across the saga services. All vectors
// keep low-cardinality labels: routing keys, step names, route templates.
type Metrics struct {
	EventsConsumed   *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	PublishFailures  *prometheus.CounterVec
	RetriesScheduled *prometheus.CounterVec
	DeadLetters      prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_events_consumed_total",
				Help: "Deliveries handled, by routing key and outcome.",
			},
			[]string{"routing_key", "outcome"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saga_handler_duration_seconds",
				Help:    "Duration of event handler execution in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"routing_key"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_publish_failed_total",
				Help: "Count of event publish failures, by routing key.",
			},
			[]string{"routing_key"},
		),
		RetriesScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_retries_scheduled_total",
				Help: "Delayed confirmation retries scheduled, by step.",
			},
			[]string{"step"},
		),
		DeadLetters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "saga_dead_letters_total",
				Help: "Messages captured from the dead-letter queue.",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests, by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.EventsConsumed,
		m.HandlerDuration,
		m.PublishFailures,
		m.RetriesScheduled,
		m.DeadLetters,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}
