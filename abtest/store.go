package abtest

import (
	"sync"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// AssignmentStore persists ABTestAssignments. Mirrors version.Store's
// adapter split: an in-memory implementation for tests, a Redis-backed
// one for production, sharing the same contract.
type AssignmentStore interface {
	Save(a ABTestAssignment) error
	Get(id string) (ABTestAssignment, error)
	GetByUser(testID, userID string) (ABTestAssignment, bool, error)
	ListByTest(testID string) ([]ABTestAssignment, error)
	Update(a ABTestAssignment) error
}

// MemoryAssignmentStore is the default, test-oriented AssignmentStore.
type MemoryAssignmentStore struct {
	mu          sync.RWMutex
	byID        map[string]ABTestAssignment
	byTestUser  map[string]string // testID+":"+userID -> assignment id
	byTest      map[string][]string
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{
		byID:       make(map[string]ABTestAssignment),
		byTestUser: make(map[string]string),
		byTest:     make(map[string][]string),
	}
}

func (s *MemoryAssignmentStore) Save(a ABTestAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = a
	s.byTest[a.ABTestID] = append(s.byTest[a.ABTestID], a.ID)
	if a.UserID != "" {
		s.byTestUser[a.ABTestID+":"+a.UserID] = a.ID
	}
	return nil
}

func (s *MemoryAssignmentStore) Get(id string) (ABTestAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return ABTestAssignment{}, internalerr.New(internalerr.NotFound, "assignment %q not found", id)
	}
	return a, nil
}

func (s *MemoryAssignmentStore) GetByUser(testID, userID string) (ABTestAssignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTestUser[testID+":"+userID]
	if !ok {
		return ABTestAssignment{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *MemoryAssignmentStore) ListByTest(testID string) ([]ABTestAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTest[testID]
	out := make([]ABTestAssignment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *MemoryAssignmentStore) Update(a ABTestAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; !ok {
		return internalerr.New(internalerr.NotFound, "assignment %q not found", a.ID)
	}
	s.byID[a.ID] = a
	return nil
}

// TestStore persists ABTest definitions. A plain mutex-guarded map is
// sufficient: tests are mutated through their own state-machine methods
// one at a time by a single caller (the Manager), never split across
// concurrent writers the way per-rule_id version writes are.
type TestStore struct {
	mu    sync.RWMutex
	tests map[string]*ABTest
}

func NewTestStore() *TestStore {
	return &TestStore{tests: make(map[string]*ABTest)}
}

func (s *TestStore) Save(t *ABTest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[t.ID] = t
}

func (s *TestStore) Get(id string) (*ABTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[id]
	if !ok {
		return nil, internalerr.New(internalerr.NotFound, "ab test %q not found", id)
	}
	return t, nil
}

func (s *TestStore) List() []*ABTest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ABTest, 0, len(s.tests))
	for _, t := range s.tests {
		out = append(out, t)
	}
	return out
}
