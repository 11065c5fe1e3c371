// Package agent implements the decision pipeline orchestrator: fan out
// to evaluators, score, explain, audit.
//
// Evaluators run concurrently via golang.org/x/sync/errgroup, each
// writing into its own preallocated result slot so the evaluators'
// declaration order survives in the output regardless of goroutine
// finish order. Per-evaluator faults are isolated (logged and dropped)
// rather than aborting the whole call.
package agent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelrules/decisioncore/audit"
	"github.com/kestrelrules/decisioncore/evalmodel"
	"github.com/kestrelrules/decisioncore/internalerr"
	"github.com/kestrelrules/decisioncore/rulectx"
	"github.com/kestrelrules/decisioncore/scoring"
)

// Evaluator is the polymorphic evaluator capability: any evaluator kind
// (json-rule, feel decision tree, or a future composite) implements
// this and nothing more.
type Evaluator interface {
	Name() string
	Evaluate(ctx *rulectx.Context, feedback map[string]any) (*evalmodel.Evaluation, error)
}

// AuditSink receives the frozen Decision and Context after every
// decide() call. Implementations must not mutate either. The default
// Agent uses NoopSink.
type AuditSink interface {
	Record(decision *evalmodel.Decision, ctx *rulectx.Context) error
}

// NoopSink discards every record; it is the default.
type NoopSink struct{}

func (NoopSink) Record(*evalmodel.Decision, *rulectx.Context) error { return nil }

// Metrics is the recording surface Decide reports into. Defined here
// (rather than depending on internal/telemetry) so any metrics
// backend satisfying this small structural interface can be injected;
// internal/telemetry.Prometheus and internal/telemetry.Noop both do.
type Metrics interface {
	RecordDecision(strategy, decision string, confidence float64)
	RecordEvaluatorFault(evaluatorName string)
}

type noopMetrics struct{}

func (noopMetrics) RecordDecision(string, string, float64) {}
func (noopMetrics) RecordEvaluatorFault(string)             {}

// Agent is the pipeline: a fixed set of evaluators, one scoring
// strategy, and one audit sink, constructed once and reused
// concurrently (all collaborators are either immutable or internally
// synchronized).
type Agent struct {
	evaluators     []Evaluator
	strategy       scoring.Strategy
	sink           AuditSink
	logger         zerolog.Logger
	metrics        Metrics
	productionMode bool
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithLogger overrides the zerolog.Logger used for the evaluator-fault
// warning channel (open question: route warnings through
// a configurable sink).
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithProductionMode turns off evaluation validation: on by default in
// non-production, off when the production flag is set.
func WithProductionMode(production bool) Option {
	return func(a *Agent) { a.productionMode = production }
}

// WithMetrics wires a Metrics recorder. Defaults to a discarding noop.
func WithMetrics(m Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New validates that evaluators is non-empty and collaborators are
// present, then builds an Agent. strategy and sink default to
// scoring.WeightedAverage{} and NoopSink{} when nil.
func New(evaluators []Evaluator, strategy scoring.Strategy, sink AuditSink, opts ...Option) (*Agent, error) {
	if len(evaluators) == 0 {
		return nil, internalerr.New(internalerr.InvalidConfiguration, "agent requires at least one evaluator")
	}
	for _, e := range evaluators {
		if e == nil {
			return nil, internalerr.New(internalerr.InvalidConfiguration, "agent evaluator list contains a nil evaluator")
		}
	}
	if strategy == nil {
		strategy = scoring.WeightedAverage{}
	}
	if sink == nil {
		sink = NoopSink{}
	}
	a := &Agent{
		evaluators: append([]Evaluator(nil), evaluators...),
		strategy:   strategy,
		sink:       sink,
		logger:     zerolog.Nop(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Decide runs the full pipeline: dispatch, isolate faults, score,
// explain, audit, return.
func (a *Agent) Decide(ctx context.Context, rc *rulectx.Context, feedback map[string]any) (*evalmodel.Decision, error) {
	evaluations, err := a.dispatch(ctx, rc, feedback)
	if err != nil {
		return nil, err
	}
	if len(evaluations) == 0 {
		return nil, internalerr.New(internalerr.NoEvaluations, "no evaluator produced a usable evaluation")
	}
	if !a.productionMode {
		if err := validateEvaluations(evaluations); err != nil {
			return nil, err
		}
	}

	result, err := a.strategy.Score(evaluations)
	if err != nil {
		return nil, err
	}

	explanations := buildExplanations(result, evaluations)

	subject := audit.Subject{
		Context:             rc.AsMapping(),
		Evaluations:         evaluationsToAny(evaluations),
		Decision:            result.Decision,
		Confidence:          result.Confidence,
		ScoringStrategyName: a.strategy.Name(),
	}
	hash, err := audit.Hash(subject)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"context":               subject.Context,
		"evaluations":           subject.Evaluations,
		"decision":              subject.Decision,
		"confidence":            subject.Confidence,
		"scoring_strategy_name": subject.ScoringStrategyName,
		"hash":                  hash,
	}

	decision, err := evalmodel.NewDecision(result.Decision, result.Confidence, explanations, evaluations, payload)
	if err != nil {
		return nil, err
	}
	if err := a.sink.Record(decision, rc); err != nil {
		return nil, err
	}
	a.metrics.RecordDecision(a.strategy.Name(), decision.Decision(), decision.Confidence())
	return decision, nil
}

// dispatch evaluates every evaluator concurrently via errgroup, slotting
// each result into its declaration-order position so the output order
// never depends on goroutine scheduling. A panicking or erroring
// evaluator is isolated: logged as a warning, contributes nothing.
func (a *Agent) dispatch(ctx context.Context, rc *rulectx.Context, feedback map[string]any) ([]*evalmodel.Evaluation, error) {
	slots := make([]*evalmodel.Evaluation, len(a.evaluators))
	g, _ := errgroup.WithContext(ctx)
	for i, e := range a.evaluators {
		i, e := i, e
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Warn().
						Str("evaluator", e.Name()).
						Interface("panic", r).
						Msg("evaluator panicked; dropping its evaluation")
					a.metrics.RecordEvaluatorFault(e.Name())
				}
			}()
			eval, evalErr := e.Evaluate(rc, feedback)
			if evalErr != nil {
				a.logger.Warn().
					Str("evaluator", e.Name()).
					Err(evalErr).
					Msg("evaluator returned an error; dropping its evaluation")
				a.metrics.RecordEvaluatorFault(e.Name())
				return nil
			}
			slots[i] = eval
			return nil
		})
	}
	// errgroup.Go's worker never actually returns a non-nil error above
	// (faults are isolated, not propagated), so this can't fail; kept
	// for symmetry with the errgroup contract.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]*evalmodel.Evaluation, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func validateEvaluations(evaluations []*evalmodel.Evaluation) error {
	for _, e := range evaluations {
		if e == nil {
			return internalerr.New(internalerr.ValidationError, "nil evaluation in evaluation set")
		}
		if e.Weight() < 0 || e.Weight() > 1 {
			return internalerr.New(internalerr.ValidationError, "evaluation %q weight out of range", e.EvaluatorName())
		}
	}
	return nil
}

// buildExplanations renders the explanation lines: a summary line, one
// line per matching evaluator, then a conflict-resolution summary when
// evaluators disagreed.
func buildExplanations(result scoring.Result, evaluations []*evalmodel.Evaluation) []string {
	lines := []string{
		fmt.Sprintf("Decision: %s (confidence: %s)", result.Decision, roundTo2(result.Confidence)),
	}
	disagreeing := map[string]float64{}
	for _, e := range evaluations {
		lines = append(lines, fmt.Sprintf("%s: %s (weight: %.2f)", e.EvaluatorName(), e.Reason(), e.Weight()))
		if e.Decision() != result.Decision {
			disagreeing[e.Decision()] += e.Weight()
		}
	}
	if len(disagreeing) > 0 {
		decisions := make([]string, 0, len(disagreeing))
		for d := range disagreeing {
			decisions = append(decisions, d)
		}
		sort.Strings(decisions)
		others := make([]string, len(decisions))
		for i, d := range decisions {
			others[i] = fmt.Sprintf("%s (weight: %s)", d, roundTo2(disagreeing[d]))
		}
		lines = append(lines, fmt.Sprintf("Conflict: evaluators suggested %d other decision(s): %v", len(others), others))
	}
	return lines
}

// roundTo2 renders a confidence rounded to two decimals with trailing
// zeros trimmed down to one decimal place: 1.0, 0.7, 0.75.
func roundTo2(f float64) string {
	s := fmt.Sprintf("%.2f", math.Round(f*100)/100)
	return strings.TrimSuffix(s, "0")
}

func evaluationsToAny(evaluations []*evalmodel.Evaluation) []any {
	out := make([]any, len(evaluations))
	for i, e := range evaluations {
		out[i] = map[string]any{
			"decision":       e.Decision(),
			"weight":         e.Weight(),
			"reason":         e.Reason(),
			"evaluator_name": e.EvaluatorName(),
		}
	}
	return out
}
