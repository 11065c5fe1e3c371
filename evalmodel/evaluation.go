// Package evalmodel defines the frozen value objects produced and
// consumed by the decision pipeline: a single evaluator's Evaluation
// and the aggregated Decision. Both validate at construction, rejecting
// bad input in the constructor rather than deep in a call chain.
package evalmodel

import (
	"math"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// confidenceTolerance is the ±1e-4 slack allowed when comparing two
// Decisions for equality.
const confidenceTolerance = 1e-4

// Evaluation is a single evaluator's judgment. Immutable once built.
type Evaluation struct {
	decision      string
	weight        float64
	reason        string
	evaluatorName string
	metadata      map[string]any
}

// New validates weight ∈ [0,1] and returns a frozen Evaluation.
func New(decision string, weight float64, reason, evaluatorName string, metadata map[string]any) (*Evaluation, error) {
	if weight < 0 || weight > 1 || math.IsNaN(weight) {
		return nil, internalerr.New(internalerr.ValidationError, "evaluation weight %v out of range [0,1]", weight)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	frozen := make(map[string]any, len(metadata))
	for k, v := range metadata {
		frozen[k] = v
	}
	return &Evaluation{
		decision:      decision,
		weight:        weight,
		reason:        reason,
		evaluatorName: evaluatorName,
		metadata:      frozen,
	}, nil
}

func (e *Evaluation) Decision() string           { return e.decision }
func (e *Evaluation) Weight() float64            { return e.weight }
func (e *Evaluation) Reason() string             { return e.reason }
func (e *Evaluation) EvaluatorName() string      { return e.evaluatorName }
func (e *Evaluation) Metadata() map[string]any {
	out := make(map[string]any, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// MetadataValue returns a single metadata key, used by the explain
// package to pull out RuleTrace payloads without exposing the map.
func (e *Evaluation) MetadataValue(key string) (any, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// Decision is the pipeline's final, immutable output.
type Decision struct {
	decision      string
	confidence    float64
	explanations  []string
	evaluations   []*Evaluation
	auditPayload  map[string]any
}

// NewDecision validates confidence ∈ [0,1] and returns a frozen Decision.
func NewDecision(decision string, confidence float64, explanations []string, evaluations []*Evaluation, auditPayload map[string]any) (*Decision, error) {
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return nil, internalerr.New(internalerr.ValidationError, "decision confidence %v out of range [0,1]", confidence)
	}
	expl := append([]string(nil), explanations...)
	evals := append([]*Evaluation(nil), evaluations...)
	payload := make(map[string]any, len(auditPayload))
	for k, v := range auditPayload {
		payload[k] = v
	}
	return &Decision{
		decision:     decision,
		confidence:   confidence,
		explanations: expl,
		evaluations:  evals,
		auditPayload: payload,
	}, nil
}

func (d *Decision) Decision() string        { return d.decision }
func (d *Decision) Confidence() float64     { return d.confidence }
func (d *Decision) Explanations() []string  { return append([]string(nil), d.explanations...) }
func (d *Decision) Evaluations() []*Evaluation {
	return append([]*Evaluation(nil), d.evaluations...)
}
func (d *Decision) AuditPayload() map[string]any {
	out := make(map[string]any, len(d.auditPayload))
	for k, v := range d.auditPayload {
		out[k] = v
	}
	return out
}

// Equal implements the ±1e-4 confidence tolerance rule.
func (d *Decision) Equal(o *Decision) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.decision != o.decision {
		return false
	}
	return math.Abs(d.confidence-o.confidence) <= confidenceTolerance
}
