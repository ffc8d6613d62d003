package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certificate pipeline. All methods
// are nil-receiver safe so components can run unmetered in tests.
type Metrics struct {
	// Step latencies by pipeline step
	StepLatency *prometheus.HistogramVec

	// Step outcomes by step and result
	StepOutcome *prometheus.CounterVec

	// Notifications by type and delivery status
	Notifications *prometheus.CounterVec
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certflow_pipeline_step_duration_seconds",
			Help:    "Duration of pipeline steps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
		}, []string{"step"}), // step: "check", "generate", "replace", "notify"

		StepOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_pipeline_step_outcomes_total",
			Help: "Total pipeline step outcomes by step and result",
		}, []string{"step", "outcome"}),

		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_notifications_total",
			Help: "Total notifications by type and status",
		}, []string{"type", "status"}),
	}
}

// ObserveStep records the duration of one pipeline step.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m != nil {
		m.StepLatency.WithLabelValues(step).Observe(d.Seconds())
	}
}

// IncrementOutcome records a step outcome ("satisfied", "needs_action",
// "success", "failure", "error").
func (m *Metrics) IncrementOutcome(step, outcome string) {
	if m != nil {
		m.StepOutcome.WithLabelValues(step, outcome).Inc()
	}
}

// IncrementNotification records a routed or sent notification.
func (m *Metrics) IncrementNotification(notificationType, status string) {
	if m != nil {
		m.Notifications.WithLabelValues(notificationType, status).Inc()
	}
}
