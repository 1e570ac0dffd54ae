package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes aggregation counters via Prometheus. Absorbed failures
// (invalid responses, provider errors, budget skips) are only visible here and
// in the logs, so the recorder is wired even though dashboards live elsewhere.
type Recorder struct {
	aggregations       *prometheus.CounterVec
	quorumFailures     prometheus.Counter
	validationFailures *prometheus.CounterVec
	escalationTriggers *prometheus.CounterVec
	premiumCalls       *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder on the default registry.
func New() *Recorder {
	return &Recorder{
		aggregations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisorquorum_aggregations_total",
				Help: "Total aggregation calls by outcome",
			},
			[]string{"outcome"},
		),
		quorumFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "advisorquorum_quorum_failures_total",
				Help: "Total phase-1 quorum failures",
			},
		),
		validationFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisorquorum_validation_failures_total",
				Help: "Total invalid provider responses",
			},
			[]string{"provider"},
		),
		escalationTriggers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisorquorum_escalation_triggers_total",
				Help: "Total escalation trigger firings",
			},
			[]string{"trigger"},
		),
		premiumCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisorquorum_premium_calls_total",
				Help: "Total premium provider invocations",
			},
			[]string{"provider", "path"},
		),
	}
}

// RecordAggregation records one completed aggregation call.
func (r *Recorder) RecordAggregation(outcome string) {
	r.aggregations.WithLabelValues(outcome).Inc()
}

// RecordQuorumFailure records a phase-1 quorum failure.
func (r *Recorder) RecordQuorumFailure() {
	r.quorumFailures.Inc()
}

// RecordValidationFailure records an invalid response from a provider.
func (r *Recorder) RecordValidationFailure(provider string) {
	r.validationFailures.WithLabelValues(provider).Inc()
}

// RecordEscalationTrigger records one trigger firing.
func (r *Recorder) RecordEscalationTrigger(trigger string) {
	r.escalationTriggers.WithLabelValues(trigger).Inc()
}

// RecordPremiumCall records one premium invocation on a given path
// (primary, fallback, or tiebreak).
func (r *Recorder) RecordPremiumCall(provider, path string) {
	r.premiumCalls.WithLabelValues(provider, path).Inc()
}
