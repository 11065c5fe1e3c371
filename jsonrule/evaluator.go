package jsonrule

import (
	"github.com/kestrelrules/decisioncore/evalmodel"
	"github.com/kestrelrules/decisioncore/explain"
	"github.com/kestrelrules/decisioncore/rulectx"
)

// minSharedLiteralsForIndex: a field needs at least this many literal
// "contains" conditions before building a shared Aho-Corasick matcher
// is worth the compile cost.
const minSharedLiteralsForIndex = 4

// Evaluator is the JSON rule DSL evaluator. Immutable after
// construction: Evaluate never mutates the ruleset.
type Evaluator struct {
	name    string
	ruleset *Ruleset
}

// NewEvaluator builds an Evaluator from an already-parsed Ruleset,
// interning its condition trees and wiring any Aho-Corasick indexes
// the ruleset's "contains" conditions make worthwhile.
func NewEvaluator(name string, rs *Ruleset) *Evaluator {
	factory := NewFactory()
	factory.InternRuleset(rs)
	buildStringIndex(rs)
	return &Evaluator{name: name, ruleset: rs}
}

// Name returns the evaluator's name, used as Evaluation.EvaluatorName
// and in explanation lines.
func (e *Evaluator) Name() string { return e.name }

// Evaluate returns the Evaluation produced by the first rule whose `if`
// condition matches, or (nil, nil) if no rule matches. feedback is
// accepted for interface symmetry with other evaluator kinds
// ("evaluate(context, feedback)") but the JSON rule DSL doesn't
// currently consult it.
func (e *Evaluator) Evaluate(ctx *rulectx.Context, feedback map[string]any) (*evalmodel.Evaluation, error) {
	var traces []explain.RuleTrace
	for _, rule := range e.ruleset.Rules {
		matched, leafTraces := rule.Condition.Evaluate(ctx)
		weight := 1.0
		if rule.Weight != nil {
			weight = *rule.Weight
		}
		reason := rule.Reason
		if reason == "" {
			reason = "Rule matched"
		}
		traces = append(traces, explain.RuleTrace{
			RuleID:          rule.ID,
			Matched:         matched,
			ConditionTraces: toConditionTraces(leafTraces),
			Decision:        rule.Decision,
			Weight:          weight,
			Reason:          reason,
		})
		if !matched {
			continue
		}
		metadata := map[string]any{
			"type":              "json_rule",
			"rule_id":           rule.ID,
			"ruleset":           e.ruleset.Name,
			explain.MetadataKey: traces,
		}
		return evalmodel.New(rule.Decision, weight, reason, e.name, metadata)
	}
	return nil, nil
}

func toConditionTraces(leaf []conditionTrace) []explain.ConditionTrace {
	out := make([]explain.ConditionTrace, len(leaf))
	for i, t := range leaf {
		out[i] = explain.ConditionTrace{
			Field:         t.field,
			Operator:      t.operator,
			ExpectedValue: t.expected,
			ActualValue:   t.actual,
			Result:        t.result,
		}
	}
	return out
}

// buildStringIndex walks every rule's condition tree, groups literal
// "contains" FieldConditions by field, and for any field with at least
// minSharedLiteralsForIndex occurrences builds one shared StringMatcher
// across them.
func buildStringIndex(rs *Ruleset) {
	byField := map[string][]*FieldCondition{}
	for _, rule := range rs.Rules {
		walkConditions(rule.Condition, func(c Condition) {
			fc, ok := c.(*FieldCondition)
			if !ok || fc.Op != OpContains {
				return
			}
			if _, ok := fc.Value.(string); !ok {
				return
			}
			byField[fc.Field] = append(byField[fc.Field], fc)
		})
	}
	for _, conds := range byField {
		if len(conds) < minSharedLiteralsForIndex {
			continue
		}
		matcher := NewStringMatcher()
		for i, fc := range conds {
			matcher.AddPattern(fc.Value.(string), i)
		}
		matcher.Build()
		for i, fc := range conds {
			fc.bindMatcher(matcher, i)
		}
	}
}

func walkConditions(c Condition, visit func(Condition)) {
	visit(c)
	switch v := c.(type) {
	case *AllCondition:
		for _, op := range v.Operands {
			walkConditions(op, visit)
		}
	case *AnyCondition:
		for _, op := range v.Operands {
			walkConditions(op, visit)
		}
	}
}
