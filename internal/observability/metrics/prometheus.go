// Package metrics provides Prometheus metrics for the adherence and
// safety services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	SchedulesBuilt        prometheus.Counter
	DosesLogged           *prometheus.CounterVec
	AdherenceComputed     prometheus.Counter
	SafetyChecks          *prometheus.CounterVec
	SafetyFallbacks       prometheus.Counter
	PrescriptionsParsed   *prometheus.CounterVec
	ReportsAnalyzed       *prometheus.CounterVec
	RemindersDispatched   *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		SchedulesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedules_built_total",
			Help: "Total daily schedules computed",
		}),
		DosesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doses_logged_total",
			Help: "Total dose logs recorded, by status",
		}, []string{"status"}),
		AdherenceComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adherence_reports_total",
			Help: "Total adherence reports computed",
		}),
		SafetyChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_checks_total",
			Help: "Total interaction checks, by verdict level",
		}, []string{"level"}),
		SafetyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_failsafe_verdicts_total",
			Help: "Interaction checks that degraded to the fail-safe verdict",
		}),
		PrescriptionsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescriptions_parsed_total",
			Help: "Total prescriptions parsed, by mode (model or offline)",
		}, []string{"mode"}),
		ReportsAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reports_analyzed_total",
			Help: "Total lab reports analyzed, by mode (model or offline)",
		}, []string{"mode"}),
		RemindersDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_dispatched_total",
			Help: "Total reminders handed to the notify boundary, by channel",
		}, []string{"channel"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.SchedulesBuilt,
		m.DosesLogged,
		m.AdherenceComputed,
		m.SafetyChecks,
		m.SafetyFallbacks,
		m.PrescriptionsParsed,
		m.ReportsAnalyzed,
		m.RemindersDispatched,
		m.RequestDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
