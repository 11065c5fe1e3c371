// Package scoring implements pluggable aggregation strategies: pure
// functions combining multiple Evaluations into a single decision and
// confidence.
package scoring

import (
	"sort"

	"github.com/kestrelrules/decisioncore/evalmodel"
	"github.com/kestrelrules/decisioncore/internalerr"
)

// Result is a scoring strategy's output.
type Result struct {
	Decision   string
	Confidence float64
}

// Strategy combines a non-empty set of Evaluations into a Result. Name
// identifies the strategy in the audit hash's "scoring_strategy_name"
// field.
type Strategy interface {
	Name() string
	Score(evaluations []*evalmodel.Evaluation) (Result, error)
}

func validateNonEmpty(evaluations []*evalmodel.Evaluation) error {
	if len(evaluations) == 0 {
		return internalerr.New(internalerr.ValidationError, "scoring requires at least one evaluation")
	}
	return nil
}

// WeightedAverage is the default strategy: partition by
// decision, sum weights per group, pick the largest group (ties broken
// lexicographically), confidence = group weight / total weight.
type WeightedAverage struct{}

func (WeightedAverage) Name() string { return "weighted_average" }

func (WeightedAverage) Score(evaluations []*evalmodel.Evaluation) (Result, error) {
	if err := validateNonEmpty(evaluations); err != nil {
		return Result{}, err
	}
	sums := map[string]float64{}
	var total float64
	for _, e := range evaluations {
		sums[e.Decision()] += e.Weight()
		total += e.Weight()
	}
	if total == 0 {
		return Result{Decision: evaluations[0].Decision(), Confidence: 0}, nil
	}
	decisions := make([]string, 0, len(sums))
	for d := range sums {
		decisions = append(decisions, d)
	}
	sort.Strings(decisions)
	best := decisions[0]
	for _, d := range decisions[1:] {
		if sums[d] > sums[best] {
			best = d
		}
	}
	return Result{Decision: best, Confidence: sums[best] / total}, nil
}

// MajorityVote picks the decision with the most evaluations backing it
// (not weight-sum), ties broken lexicographically; confidence is the
// winning group's share of the evaluation count.
type MajorityVote struct{}

func (MajorityVote) Name() string { return "majority_vote" }

func (MajorityVote) Score(evaluations []*evalmodel.Evaluation) (Result, error) {
	if err := validateNonEmpty(evaluations); err != nil {
		return Result{}, err
	}
	counts := map[string]int{}
	for _, e := range evaluations {
		counts[e.Decision()]++
	}
	decisions := make([]string, 0, len(counts))
	for d := range counts {
		decisions = append(decisions, d)
	}
	sort.Strings(decisions)
	best := decisions[0]
	for _, d := range decisions[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return Result{Decision: best, Confidence: float64(counts[best]) / float64(len(evaluations))}, nil
}

// HighestSingleWeight picks the decision of whichever single Evaluation
// carries the greatest weight, ties broken lexicographically by
// decision; confidence is that evaluation's own weight.
type HighestSingleWeight struct{}

func (HighestSingleWeight) Name() string { return "highest_single_weight" }

func (HighestSingleWeight) Score(evaluations []*evalmodel.Evaluation) (Result, error) {
	if err := validateNonEmpty(evaluations); err != nil {
		return Result{}, err
	}
	best := evaluations[0]
	for _, e := range evaluations[1:] {
		if e.Weight() > best.Weight() || (e.Weight() == best.Weight() && e.Decision() < best.Decision()) {
			best = e
		}
	}
	return Result{Decision: best.Decision(), Confidence: best.Weight()}, nil
}
