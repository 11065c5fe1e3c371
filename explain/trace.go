// Package explain implements the audit trail: per-condition traces an
// evaluator can attach to an Evaluation's
// metadata under the "explainability" key, and the Because /
// FailedConditions helpers that flatten them into strings.
package explain

import (
	"fmt"

	"github.com/kestrelrules/decisioncore/evalmodel"
)

// MetadataKey is where an evaluator publishes its RuleTrace list on an
// Evaluation's metadata map.
const MetadataKey = "explainability"

// ConditionTrace records one leaf condition's evaluation.
type ConditionTrace struct {
	Field         string
	Operator      string
	ExpectedValue any
	ActualValue   any
	Result        bool
}

// RuleTrace records one rule's evaluation against a context.
type RuleTrace struct {
	RuleID          string
	Matched         bool
	ConditionTraces []ConditionTrace
	Decision        string
	Weight          float64
	Reason          string
}

func (t RuleTrace) shortString() string {
	return fmt.Sprintf("%s -> %s (weight: %.2f)", t.RuleID, t.Decision, t.Weight)
}

func (t RuleTrace) verboseString() string {
	s := fmt.Sprintf("%s -> %s (weight: %.2f, reason: %s)", t.RuleID, t.Decision, t.Weight, t.Reason)
	for _, ct := range t.ConditionTraces {
		s += fmt.Sprintf("\n    %s %s %v (actual: %v) => %v", ct.Field, ct.Operator, ct.ExpectedValue, ct.ActualValue, ct.Result)
	}
	return s
}

// TracesFromEvaluation extracts the RuleTrace slice an evaluator may
// have attached to an Evaluation's metadata. Missing explainability
// metadata yields an empty slice, never an error.
func TracesFromEvaluation(e *evalmodel.Evaluation) []RuleTrace {
	if e == nil {
		return nil
	}
	raw, ok := e.MetadataValue(MetadataKey)
	if !ok {
		return nil
	}
	traces, ok := raw.([]RuleTrace)
	if !ok {
		return nil
	}
	return traces
}

// Because flattens the matched traces across a set of evaluations into
// human-readable strings. verbose=true includes condition-level detail.
func Because(evaluations []*evalmodel.Evaluation, verbose bool) []string {
	var out []string
	for _, e := range evaluations {
		for _, t := range TracesFromEvaluation(e) {
			if !t.Matched {
				continue
			}
			if verbose {
				out = append(out, t.verboseString())
			} else {
				out = append(out, t.shortString())
			}
		}
	}
	return out
}

// FailedConditions flattens the unmatched traces, mirroring Because.
func FailedConditions(evaluations []*evalmodel.Evaluation, verbose bool) []string {
	var out []string
	for _, e := range evaluations {
		for _, t := range TracesFromEvaluation(e) {
			if t.Matched {
				continue
			}
			if verbose {
				out = append(out, t.verboseString())
			} else {
				out = append(out, t.shortString())
			}
		}
	}
	return out
}
