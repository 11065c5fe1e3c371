// Package telemetry exposes decisioncore's operational metrics.
// Prometheus is the wired implementation; Noop is the zero-value
// default so Agent construction never requires a metrics backend.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the recording surface the agent pipeline and the CLI's
// version/abtest commands call into. Swappable so tests and CLI one-shots can
// use Noop instead of registering against the default registry.
type Metrics interface {
	// RecordDecision records one completed decide() call.
	RecordDecision(strategy, decision string, confidence float64)
	// RecordEvaluatorFault records an isolated evaluator error or panic.
	RecordEvaluatorFault(evaluatorName string)
	// RecordVersionCreated records a new rule version being created.
	RecordVersionCreated(ruleID string)
	// RecordAssignment records an A/B test variant assignment.
	RecordAssignment(testID string, variant string)
}

// Noop discards every call; the default when metrics are disabled.
type Noop struct{}

func (Noop) RecordDecision(string, string, float64) {}
func (Noop) RecordEvaluatorFault(string)             {}
func (Noop) RecordVersionCreated(string)             {}
func (Noop) RecordAssignment(string, string)         {}

// namespace is the metric name prefix, following the pack's
// "<product>_<subsystem>_" naming convention.
const namespace = "decisioncore"

// Prometheus is the wired implementation. Its constructor registers the
// metrics against the supplied registry, or prometheus.DefaultRegisterer
// when nil, so it is built once per registry.
type Prometheus struct {
	decisionsTotal    *prometheus.CounterVec
	confidence        *prometheus.HistogramVec
	evaluatorFaults   *prometheus.CounterVec
	versionsCreated   *prometheus.CounterVec
	assignmentsTotal  *prometheus.CounterVec
}

// NewPrometheus registers the decisioncore metric family against reg
// (prometheus.DefaultRegisterer when reg is nil) and returns a
// Metrics implementation backed by it.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total decide() calls, by scoring strategy and resulting decision.",
		}, []string{"strategy", "decision"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_confidence",
			Help:      "Confidence of each decide() result.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		}, []string{"strategy"}),
		evaluatorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluator_faults_total",
			Help:      "Evaluator errors or panics isolated by the agent pipeline.",
		}, []string{"evaluator"}),
		versionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_versions_created_total",
			Help:      "Rule versions created, by rule_id.",
		}, []string{"rule_id"}),
		assignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abtest_assignments_total",
			Help:      "A/B test variant assignments, by test_id and variant.",
		}, []string{"test_id", "variant"}),
	}
	reg.MustRegister(p.decisionsTotal, p.confidence, p.evaluatorFaults, p.versionsCreated, p.assignmentsTotal)
	return p
}

func (p *Prometheus) RecordDecision(strategy, decision string, confidence float64) {
	p.decisionsTotal.WithLabelValues(strategy, decision).Inc()
	p.confidence.WithLabelValues(strategy).Observe(confidence)
}

func (p *Prometheus) RecordEvaluatorFault(evaluatorName string) {
	p.evaluatorFaults.WithLabelValues(evaluatorName).Inc()
}

func (p *Prometheus) RecordVersionCreated(ruleID string) {
	p.versionsCreated.WithLabelValues(ruleID).Inc()
}

func (p *Prometheus) RecordAssignment(testID, variant string) {
	p.assignmentsTotal.WithLabelValues(testID, variant).Inc()
}
