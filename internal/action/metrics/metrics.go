package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the action module.
type Metrics struct {
	Created               *prometheus.CounterVec
	StatusTransitions     *prometheus.CounterVec
	InvalidTransitions    *prometheus.CounterVec
	EffectivenessVerdicts *prometheus.CounterVec
}

// New creates a new Metrics instance with all action module metrics registered.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_actions_created_total",
			Help: "Total actions created by type",
		}, []string{"type"}),

		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_action_status_transitions_total",
			Help: "Successful action status transitions by target status",
		}, []string{"status"}),

		InvalidTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_action_invalid_transitions_total",
			Help: "Rejected action status transitions by attempted target status",
		}, []string{"status"}),

		EffectivenessVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_action_effectiveness_verdicts_total",
			Help: "Effectiveness verification outcomes",
		}, []string{"verdict"}),
	}
}

// IncrementCreated records a successful action creation.
func (m *Metrics) IncrementCreated(actionType string) {
	if m != nil {
		m.Created.WithLabelValues(actionType).Inc()
	}
}

// IncrementStatusTransition records a successful transition into a status.
func (m *Metrics) IncrementStatusTransition(status string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(status).Inc()
	}
}

// IncrementInvalidTransition records a rejected transition attempt.
func (m *Metrics) IncrementInvalidTransition(status string) {
	if m != nil {
		m.InvalidTransitions.WithLabelValues(status).Inc()
	}
}

// IncrementEffectivenessVerdict records an effectiveness outcome.
func (m *Metrics) IncrementEffectivenessVerdict(verdict string) {
	if m != nil {
		m.EffectivenessVerdicts.WithLabelValues(verdict).Inc()
	}
}
