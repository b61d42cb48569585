package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the finding module.
type Metrics struct {
	// Registrations by severity
	Registered *prometheus.CounterVec

	// Successful stage transitions by target stage
	StageTransitions *prometheus.CounterVec

	// Rejected transitions by attempted target stage
	InvalidTransitions *prometheus.CounterVec

	// Recurrence verdicts that came back positive
	RecurrenceDetected prometheus.Counter

	// Closed findings sent back to root-cause analysis
	Reopened prometheus.Counter
}

// New creates a new Metrics instance with all finding module metrics registered.
func New() *Metrics {
	return &Metrics{
		Registered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_findings_registered_total",
			Help: "Total findings registered by severity",
		}, []string{"severity"}),

		StageTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_finding_stage_transitions_total",
			Help: "Successful finding stage transitions by target stage",
		}, []string{"stage"}),

		InvalidTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_finding_invalid_transitions_total",
			Help: "Rejected finding stage transitions by attempted target stage",
		}, []string{"stage"}),

		RecurrenceDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_finding_recurrences_detected_total",
			Help: "Findings flagged as recurrent at root-cause analysis",
		}),

		Reopened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_findings_reopened_total",
			Help: "Closed findings reopened after a failed effectiveness check",
		}),
	}
}

// IncrementRegistered records a successful registration.
func (m *Metrics) IncrementRegistered(severity string) {
	if m != nil {
		m.Registered.WithLabelValues(severity).Inc()
	}
}

// IncrementStageTransition records a successful transition into a stage.
func (m *Metrics) IncrementStageTransition(stage string) {
	if m != nil {
		m.StageTransitions.WithLabelValues(stage).Inc()
	}
}

// IncrementInvalidTransition records a rejected transition attempt.
func (m *Metrics) IncrementInvalidTransition(stage string) {
	if m != nil {
		m.InvalidTransitions.WithLabelValues(stage).Inc()
	}
}

// IncrementRecurrenceDetected records a positive recurrence verdict.
func (m *Metrics) IncrementRecurrenceDetected() {
	if m != nil {
		m.RecurrenceDetected.Inc()
	}
}

// IncrementReopened records a finding returned to root-cause analysis.
func (m *Metrics) IncrementReopened() {
	if m != nil {
		m.Reopened.Inc()
	}
}
