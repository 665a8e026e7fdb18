package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation metrics
	SamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralarm_samples_total",
			Help: "Total number of samples fed to alarms",
		},
		[]string{"alarm", "classification"}, // classification: good, bad, missing, ignored
	)

	NaNSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralarm_nan_samples_total",
			Help: "Total number of NaN samples fed to alarms (classified as good)",
		},
		[]string{"alarm"},
	)

	AlarmState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ralarm_alarm_state",
			Help: "Current alarm state (0 = OK, 1 = ALARM)",
		},
		[]string{"alarm"},
	)

	BadDatapoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ralarm_window_bad_datapoints",
			Help: "Datapoints in the window currently counting toward the alarm",
		},
		[]string{"alarm"},
	)

	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralarm_state_transitions_total",
			Help: "Total number of alarm state transitions",
		},
		[]string{"alarm", "to"},
	)

	// Dispatcher metrics
	DispatcherQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ralarm_dispatcher_queue_size",
			Help: "Current number of samples waiting in dispatcher queues",
		},
	)

	DispatcherQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ralarm_dispatcher_queue_capacity",
			Help: "Total capacity of dispatcher queues",
		},
	)

	DispatcherProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ralarm_dispatcher_processed_total",
			Help: "Total number of samples evaluated by dispatcher workers",
		},
	)

	DispatcherRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralarm_dispatcher_rejected_total",
			Help: "Total number of samples rejected by the dispatcher",
		},
		[]string{"reason"}, // reason: unknown_alarm, stopped, dropped, canceled
	)

	HandlerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ralarm_transition_handler_duration_seconds",
			Help:    "Time spent in the transition handler",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// HTTP listener metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralarm_http_requests_total",
			Help: "Total number of requests served by the metrics listener",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ralarm_http_request_duration_seconds",
			Help:    "Request latency of the metrics listener",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ralarm_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
