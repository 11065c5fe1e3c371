package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrules/decisioncore/evalmodel"
)

func eval(t *testing.T, decision string, weight float64) *evalmodel.Evaluation {
	t.Helper()
	e, err := evalmodel.New(decision, weight, "", "e", nil)
	require.NoError(t, err)
	return e
}

func TestWeightedAverage(t *testing.T) {
	evals := []*evalmodel.Evaluation{
		eval(t, "approve", 0.6),
		eval(t, "deny", 0.4),
	}
	result, err := WeightedAverage{}.Score(evals)
	require.NoError(t, err)
	assert.Equal(t, "approve", result.Decision)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
}

func TestWeightedAverageTieBreaksLexicographically(t *testing.T) {
	evals := []*evalmodel.Evaluation{
		eval(t, "zeta", 0.5),
		eval(t, "alpha", 0.5),
	}
	result, err := WeightedAverage{}.Score(evals)
	require.NoError(t, err)
	assert.Equal(t, "alpha", result.Decision)
}

func TestWeightedAverageRequiresNonEmpty(t *testing.T) {
	_, err := WeightedAverage{}.Score(nil)
	require.Error(t, err)
}

func TestWeightedAverageZeroTotalWeight(t *testing.T) {
	evals := []*evalmodel.Evaluation{eval(t, "approve", 0), eval(t, "deny", 0)}
	result, err := WeightedAverage{}.Score(evals)
	require.NoError(t, err)
	assert.Equal(t, "approve", result.Decision)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestMajorityVote(t *testing.T) {
	evals := []*evalmodel.Evaluation{
		eval(t, "approve", 0.1),
		eval(t, "approve", 0.9),
		eval(t, "deny", 0.5),
	}
	result, err := MajorityVote{}.Score(evals)
	require.NoError(t, err)
	assert.Equal(t, "approve", result.Decision)
	assert.InDelta(t, 2.0/3.0, result.Confidence, 1e-9)
}

func TestHighestSingleWeight(t *testing.T) {
	evals := []*evalmodel.Evaluation{
		eval(t, "approve", 0.3),
		eval(t, "deny", 0.9),
	}
	result, err := HighestSingleWeight{}.Score(evals)
	require.NoError(t, err)
	assert.Equal(t, "deny", result.Decision)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestHighestSingleWeightTieBreak(t *testing.T) {
	evals := []*evalmodel.Evaluation{
		eval(t, "zeta", 0.5),
		eval(t, "alpha", 0.5),
	}
	result, err := HighestSingleWeight{}.Score(evals)
	require.NoError(t, err)
	assert.Equal(t, "alpha", result.Decision)
}

func TestStrategyNames(t *testing.T) {
	assert.Equal(t, "weighted_average", WeightedAverage{}.Name())
	assert.Equal(t, "majority_vote", MajorityVote{}.Name())
	assert.Equal(t, "highest_single_weight", HighestSingleWeight{}.Name())
}
