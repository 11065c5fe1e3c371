package abtest

import (
	"crypto/sha256"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrules/decisioncore/internalerr"
)

func validTest(t *testing.T) *ABTest {
	t.Helper()
	test, err := NewABTest("checkout-rules", "v-champ", "v-chall",
		TrafficSplit{Champion: 90, Challenger: 10},
		time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	return test
}

func TestNewABTestValidation(t *testing.T) {
	start := time.Now()
	past := start.Add(-time.Hour)

	cases := []struct {
		name       string
		champion   string
		challenger string
		split      TrafficSplit
		end        *time.Time
	}{
		{"same versions", "v1", "v1", TrafficSplit{Champion: 50, Challenger: 50}, nil},
		{"split does not sum to 100", "v1", "v2", TrafficSplit{Champion: 60, Challenger: 30}, nil},
		{"negative split", "v1", "v2", TrafficSplit{Champion: 110, Challenger: -10}, nil},
		{"end before start", "v1", "v2", TrafficSplit{Champion: 50, Challenger: 50}, &past},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewABTest("t", tc.champion, tc.challenger, tc.split, start, tc.end)
			require.Error(t, err)
			assert.True(t, internalerr.Is(err, internalerr.ValidationError))
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	test := validTest(t)
	assert.Equal(t, StatusScheduled, test.Status)

	require.NoError(t, test.Start())
	assert.Equal(t, StatusRunning, test.Status)

	// start is only permitted from scheduled
	err := test.Start()
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.InvalidStatusTransition))

	require.NoError(t, test.Complete())
	assert.Equal(t, StatusCompleted, test.Status)

	// completed cannot be cancelled
	err = test.Cancel()
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.InvalidStatusTransition))
}

func TestCancelPermittedFromScheduledAndRunning(t *testing.T) {
	scheduled := validTest(t)
	require.NoError(t, scheduled.Cancel())
	assert.Equal(t, StatusCancelled, scheduled.Status)

	running := validTest(t)
	require.NoError(t, running.Start())
	require.NoError(t, running.Cancel())
	assert.Equal(t, StatusCancelled, running.Status)
}

func TestCompleteOnlyFromRunning(t *testing.T) {
	test := validTest(t)
	err := test.Complete()
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.InvalidStatusTransition))
}

func TestEffectivelyRunning(t *testing.T) {
	now := time.Now()
	end := now.Add(time.Hour)

	test := validTest(t)
	assert.False(t, test.EffectivelyRunning(now), "scheduled is never effectively running")

	require.NoError(t, test.Start())
	assert.True(t, test.EffectivelyRunning(now))

	test.EndDate = &end
	assert.True(t, test.EffectivelyRunning(now))
	assert.False(t, test.EffectivelyRunning(end.Add(time.Minute)))

	future := validTest(t)
	future.StartDate = now.Add(time.Hour)
	require.NoError(t, future.Start())
	assert.False(t, future.EffectivelyRunning(now), "before start_date")
}

func expectedVariant(testID, userID string, split TrafficSplit) Variant {
	sum := sha256.Sum256([]byte(testID + ":" + userID))
	bucket := int(new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), big.NewInt(100)).Int64())
	if bucket < split.Champion {
		return Champion
	}
	return Challenger
}

func TestResolveVariantConsistentHashing(t *testing.T) {
	split := TrafficSplit{Champion: 90, Challenger: 10}
	want := expectedVariant("7", "u-42", split)
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, ResolveVariant(split, "7", "u-42", i*13))
	}
}

func TestResolveVariantSplitExtremes(t *testing.T) {
	for r := 0; r < 100; r += 7 {
		assert.Equal(t, Champion, ResolveVariant(TrafficSplit{Champion: 100, Challenger: 0}, "t", "", r))
		assert.Equal(t, Challenger, ResolveVariant(TrafficSplit{Champion: 0, Challenger: 100}, "t", "", r))
	}
}

func TestManagerAssignRequiresRunningTest(t *testing.T) {
	m := NewManager(nil)
	test, err := m.CreateTest("t", "v1", "v2", TrafficSplit{Champion: 50, Challenger: 50}, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)

	_, err = m.Assign(test.ID, "u1", nil)
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.TestNotRunning))
}

func TestManagerAssignUnknownTest(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Assign("nope", "u1", nil)
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.NotFound))
}

func TestManagerAssignStickyPerUser(t *testing.T) {
	m := NewManager(nil)
	test, err := m.CreateTest("t", "v1", "v2", TrafficSplit{Champion: 50, Challenger: 50}, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	_, err = m.Start(test.ID)
	require.NoError(t, err)

	first, err := m.Assign(test.ID, "u-42", map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.Equal(t, expectedVariant(test.ID, "u-42", test.TrafficSplit), first.Variant)

	for i := 0; i < 9; i++ {
		again, err := m.Assign(test.ID, "u-42", nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID, "repeat assigns reuse the persisted assignment")
		assert.Equal(t, first.Variant, again.Variant)
	}
}

func TestManagerAssignResolvesVersionID(t *testing.T) {
	m := NewManager(nil)
	test, err := m.CreateTest("t", "v-champ", "v-chall", TrafficSplit{Champion: 100, Challenger: 0}, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	_, err = m.Start(test.ID)
	require.NoError(t, err)

	a, err := m.Assign(test.ID, "anyone", nil)
	require.NoError(t, err)
	assert.Equal(t, Champion, a.Variant)
	assert.Equal(t, "v-champ", a.VersionID)
}

func TestManagerAutoCompletesExpiredTest(t *testing.T) {
	m := NewManager(nil)
	end := time.Now().Add(time.Minute)
	test, err := m.CreateTest("t", "v1", "v2", TrafficSplit{Champion: 50, Challenger: 50}, time.Now().Add(-time.Hour), &end)
	require.NoError(t, err)
	_, err = m.Start(test.ID)
	require.NoError(t, err)

	m.now = func() time.Time { return end.Add(time.Hour) }
	_, err = m.Assign(test.ID, "u1", nil)
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.TestNotRunning))

	got, err := m.GetTest(test.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestRecordDecisionAndResults(t *testing.T) {
	m := NewManager(nil)
	test, err := m.CreateTest("t", "v1", "v2", TrafficSplit{Champion: 100, Challenger: 0}, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	_, err = m.Start(test.ID)
	require.NoError(t, err)

	a1, err := m.Assign(test.ID, "u1", nil)
	require.NoError(t, err)
	a2, err := m.Assign(test.ID, "u2", nil)
	require.NoError(t, err)

	_, err = m.RecordDecision(a1.ID, "approve", 0.9)
	require.NoError(t, err)
	_, err = m.RecordDecision(a2.ID, "deny", 0.5)
	require.NoError(t, err)

	results, err := m.GetResults(test.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, results.Champion.Count)
	assert.Equal(t, 0, results.Challenger.Count)
	assert.Equal(t, 1, results.Champion.DecisionCounts["approve"])
	assert.Equal(t, 1, results.Champion.DecisionCounts["deny"])
	assert.InDelta(t, 0.7, results.Champion.AverageConfidence, 1e-9)
}

func TestRecordDecisionUnknownAssignment(t *testing.T) {
	m := NewManager(nil)
	_, err := m.RecordDecision("missing", "approve", 1)
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.NotFound))
}
