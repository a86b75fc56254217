package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paynotify_events_enqueued_total",
		Help: "Total number of payment events placed on the intake queue.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paynotify_events_dropped_total",
		Help: "Total number of payment events rejected due to a full intake queue.",
	})

	EventsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paynotify_events_routed_total",
		Help: "Total number of routing decisions, labelled by outcome.",
	}, []string{"outcome"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paynotify_deliveries_total",
		Help: "Total number of delivery attempts, labelled by transport, origin (live|retry) and status.",
	}, []string{"transport", "origin", "status"})

	DeliveriesExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paynotify_deliveries_exhausted_total",
		Help: "Total number of deliveries that ran out of retries, labelled by transport.",
	}, []string{"transport"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paynotify_delivery_duration_ms",
		Help:    "Delivery attempt latency in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"transport"})

	RetrySweepDue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paynotify_retry_sweep_due",
		Help: "Number of due records picked up by the last retry sweep, labelled by transport.",
	}, []string{"transport"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paynotify_http_requests_total",
		Help: "Total number of API requests, labelled by method and status class.",
	}, []string{"method", "status"})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paynotify_queue_utilization_ratio",
		Help: "Current intake queue utilization (0–1).",
	})
)

// Routing outcomes used as EventsRouted labels.
const (
	OutcomeDelivered        = "delivered"
	OutcomeFailed           = "failed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeNotRegistered    = "not_registered"
	OutcomeInactive         = "inactive"
	OutcomeConfigError      = "config_error"
	OutcomeExhausted        = "exhausted"
)
