package abtest

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// Manager orchestrates ABTest lifecycle and assignment: create, start,
// complete, cancel, assign, record_decision, get_results.
type Manager struct {
	tests       *TestStore
	assignments AssignmentStore
	now         func() time.Time
	rand        *rand.Rand
}

// NewManager builds a Manager. assignments defaults to an in-memory
// store when nil.
func NewManager(assignments AssignmentStore) *Manager {
	if assignments == nil {
		assignments = NewMemoryAssignmentStore()
	}
	return &Manager{
		tests:       NewTestStore(),
		assignments: assignments,
		now:         time.Now,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateTest validates and registers a new ABTest.
func (m *Manager) CreateTest(name, championVersionID, challengerVersionID string, split TrafficSplit, startDate time.Time, endDate *time.Time) (*ABTest, error) {
	t, err := NewABTest(name, championVersionID, challengerVersionID, split, startDate, endDate)
	if err != nil {
		return nil, err
	}
	m.tests.Save(t)
	return t, nil
}

func (m *Manager) GetTest(id string) (*ABTest, error) { return m.tests.Get(id) }

func (m *Manager) Start(id string) (*ABTest, error) {
	t, err := m.tests.Get(id)
	if err != nil {
		return nil, err
	}
	if err := t.Start(); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *Manager) Complete(id string) (*ABTest, error) {
	t, err := m.tests.Get(id)
	if err != nil {
		return nil, err
	}
	if err := t.Complete(); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *Manager) Cancel(id string) (*ABTest, error) {
	t, err := m.tests.Get(id)
	if err != nil {
		return nil, err
	}
	if err := t.Cancel(); err != nil {
		return nil, err
	}
	return t, nil
}

// autoComplete transitions a running test whose end_date has passed,
// ("running -> completed ... or when now > end_date").
func (m *Manager) autoComplete(t *ABTest) {
	if t.Status == StatusRunning && t.EndDate != nil && m.now().After(*t.EndDate) {
		t.Status = StatusCompleted
	}
}

// Assign resolves (or reuses) a variant for a user against a running
// test, persists the ABTestAssignment, and returns it. userID may be
// empty, in which case a uniform random draw resolves the variant and
// no stickiness is possible.
func (m *Manager) Assign(testID, userID string, context map[string]any) (ABTestAssignment, error) {
	t, err := m.tests.Get(testID)
	if err != nil {
		return ABTestAssignment{}, err
	}
	m.autoComplete(t)
	if !t.EffectivelyRunning(m.now()) {
		return ABTestAssignment{}, internalerr.New(internalerr.TestNotRunning, "test %q is not running", testID)
	}

	if userID != "" {
		if existing, ok, err := m.assignments.GetByUser(testID, userID); err != nil {
			return ABTestAssignment{}, err
		} else if ok {
			return existing, nil
		}
	}

	variant := ResolveVariant(t.TrafficSplit, testID, userID, m.rand.Intn(100))
	assignment := ABTestAssignment{
		ID:        uuid.NewString(),
		ABTestID:  testID,
		UserID:    userID,
		Variant:   variant,
		VersionID: versionForVariant(t, variant),
		Timestamp: m.now(),
		Context:   context,
	}
	if err := m.assignments.Save(assignment); err != nil {
		return ABTestAssignment{}, err
	}
	return assignment, nil
}

// RecordDecision attaches a decision's outcome to an existing assignment.
func (m *Manager) RecordDecision(assignmentID, decision string, confidence float64) (ABTestAssignment, error) {
	a, err := m.assignments.Get(assignmentID)
	if err != nil {
		return ABTestAssignment{}, err
	}
	a.DecisionResult = decision
	a.Confidence = confidence
	a.HasResult = true
	if err := m.assignments.Update(a); err != nil {
		return ABTestAssignment{}, err
	}
	return a, nil
}

// VariantResults aggregates one variant's assignment counts, per-
// decision tallies, and average confidence.
type VariantResults struct {
	Count             int
	DecisionCounts    map[string]int
	AverageConfidence float64
}

// Results is get_results(test_id)'s return shape: per-variant counts,
// per-decision tallies, and average confidence per variant.
type Results struct {
	Champion   VariantResults
	Challenger VariantResults
}

func (m *Manager) GetResults(testID string) (Results, error) {
	assignments, err := m.assignments.ListByTest(testID)
	if err != nil {
		return Results{}, err
	}
	champ := VariantResults{DecisionCounts: map[string]int{}}
	chall := VariantResults{DecisionCounts: map[string]int{}}
	var champConfSum, challConfSum float64
	var champConfN, challConfN int

	for _, a := range assignments {
		target := &champ
		if a.Variant == Challenger {
			target = &chall
		}
		target.Count++
		if a.HasResult {
			target.DecisionCounts[a.DecisionResult]++
			if a.Variant == Champion {
				champConfSum += a.Confidence
				champConfN++
			} else {
				challConfSum += a.Confidence
				challConfN++
			}
		}
	}
	if champConfN > 0 {
		champ.AverageConfidence = champConfSum / float64(champConfN)
	}
	if challConfN > 0 {
		chall.AverageConfidence = challConfSum / float64(challConfN)
	}
	return Results{Champion: champ, Challenger: chall}, nil
}
