package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrules/decisioncore/evalmodel"
	"github.com/kestrelrules/decisioncore/jsonrule"
	"github.com/kestrelrules/decisioncore/rulectx"
	"github.com/kestrelrules/decisioncore/scoring"
)

// staticEvaluator always returns the same preconfigured Evaluation,
// used to compose conflicting evaluators without a ruleset.
type staticEvaluator struct {
	name string
	eval *evalmodel.Evaluation
}

func (s staticEvaluator) Name() string { return s.name }
func (s staticEvaluator) Evaluate(*rulectx.Context, map[string]any) (*evalmodel.Evaluation, error) {
	return s.eval, nil
}

func mustEvaluation(t *testing.T, decision string, weight float64) *evalmodel.Evaluation {
	t.Helper()
	e, err := evalmodel.New(decision, weight, "reason", "static", nil)
	require.NoError(t, err)
	return e
}

// E1: single-rule approval.
func TestAgent_SingleRuleApproval(t *testing.T) {
	rs, err := jsonrule.ParseRuleset(map[string]any{
		"version": "1.0", "ruleset": "r",
		"rules": []any{
			map[string]any{
				"id":   "hv",
				"if":   map[string]any{"field": "amount", "op": "gt", "value": 1000.0},
				"then": map[string]any{"decision": "approve", "weight": 0.9, "reason": "High value"},
			},
		},
	})
	require.NoError(t, err)
	evaluator := jsonrule.NewEvaluator("hv-evaluator", rs)

	a, err := New([]Evaluator{evaluator}, nil, nil)
	require.NoError(t, err)

	decision, err := a.Decide(context.Background(), rulectx.New(map[string]any{"amount": 1500.0}), nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", decision.Decision())
	assert.InDelta(t, 1.0, decision.Confidence(), 1e-4)
	assert.Contains(t, decision.Explanations()[0], "Decision: approve (confidence: 1.0)")
	joined := strings.Join(decision.Explanations(), "\n")
	assert.Contains(t, joined, "hv")
}

// E2: composite condition, including the no-match -> NoEvaluationsError case.
func TestAgent_CompositeCondition(t *testing.T) {
	rs, err := jsonrule.ParseRuleset(map[string]any{
		"version": "1.0", "ruleset": "r",
		"rules": []any{
			map[string]any{
				"id": "vip",
				"if": map[string]any{"all": []any{
					map[string]any{"field": "priority", "op": "eq", "value": "high"},
					map[string]any{"field": "user.role", "op": "eq", "value": "admin"},
				}},
				"then": map[string]any{"decision": "approve", "weight": 0.95},
			},
		},
	})
	require.NoError(t, err)
	evaluator := jsonrule.NewEvaluator("vip-evaluator", rs)
	a, err := New([]Evaluator{evaluator}, nil, nil)
	require.NoError(t, err)

	decision, err := a.Decide(context.Background(), rulectx.New(map[string]any{
		"priority": "high",
		"user":     map[string]any{"role": "admin"},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", decision.Decision())

	_, err = a.Decide(context.Background(), rulectx.New(map[string]any{
		"priority": "high",
		"user":     map[string]any{"role": "user"},
	}), nil)
	require.Error(t, err)
}

// E3: conflict resolution between two static evaluations.
func TestAgent_ConflictResolution(t *testing.T) {
	approve := staticEvaluator{name: "approver", eval: mustEvaluation(t, "approve", 0.7)}
	reject := staticEvaluator{name: "rejecter", eval: mustEvaluation(t, "reject", 0.3)}

	a, err := New([]Evaluator{approve, reject}, scoring.WeightedAverage{}, nil)
	require.NoError(t, err)

	decision, err := a.Decide(context.Background(), rulectx.New(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", decision.Decision())
	assert.InDelta(t, 0.7, decision.Confidence(), 1e-4)

	joined := strings.Join(decision.Explanations(), "\n")
	assert.Contains(t, joined, "Conflict")
	assert.Contains(t, joined, "reject (weight: 0.3)")
}

func TestAgent_RequiresAtLeastOneEvaluator(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
}

func TestAgent_EvaluatorFaultIsolated(t *testing.T) {
	faulty := erroringEvaluator{name: "faulty"}
	ok := staticEvaluator{name: "ok", eval: mustEvaluation(t, "approve", 1.0)}

	a, err := New([]Evaluator{faulty, ok}, nil, nil)
	require.NoError(t, err)

	decision, err := a.Decide(context.Background(), rulectx.New(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", decision.Decision())
}

type erroringEvaluator struct{ name string }

func (e erroringEvaluator) Name() string { return e.name }
func (e erroringEvaluator) Evaluate(*rulectx.Context, map[string]any) (*evalmodel.Evaluation, error) {
	return nil, assertErr
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
