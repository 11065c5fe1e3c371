package version

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// MemoryStore is an in-process Store, primarily for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	writers  *writerPool
	byID     map[string]RuleVersion
	byRuleID map[string][]string // rule_id -> ordered version IDs
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writers:  newWriterPool(),
		byID:     make(map[string]RuleVersion),
		byRuleID: make(map[string][]string),
	}
}

func (s *MemoryStore) CreateVersion(ruleID string, content map[string]any, createdBy, changelog string) (RuleVersion, error) {
	writer := s.writers.get(ruleID)
	return writer.do(func() (RuleVersion, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		nextNumber := 1
		for _, id := range s.byRuleID[ruleID] {
			if v := s.byID[id]; v.VersionNumber >= nextNumber {
				nextNumber = v.VersionNumber + 1
			}
		}
		for _, id := range s.byRuleID[ruleID] {
			v := s.byID[id]
			if v.Status == StatusActive {
				v.Status = StatusArchived
				s.byID[id] = v
			}
		}
		nv := RuleVersion{
			ID:            uuid.NewString(),
			RuleID:        ruleID,
			VersionNumber: nextNumber,
			Content:       content,
			Status:        StatusActive,
			CreatedAt:     time.Now().UTC(),
			CreatedBy:     createdBy,
			Changelog:     changelog,
		}
		s.byID[nv.ID] = nv.clone()
		s.byRuleID[ruleID] = append(s.byRuleID[ruleID], nv.ID)
		return nv, nil
	})
}

func (s *MemoryStore) ListVersions(ruleID string, limit int) ([]RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RuleVersion
	for _, id := range s.byRuleID[ruleID] {
		out = append(out, s.byID[id].clone())
	}
	sortVersionsDesc(out)
	return applyLimit(out, limit), nil
}

func (s *MemoryStore) ListAllVersions(limit int) ([]RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RuleVersion, 0, len(s.byID))
	for _, v := range s.byID {
		out = append(out, v.clone())
	}
	sortVersionsDesc(out)
	return applyLimit(out, limit), nil
}

func (s *MemoryStore) GetVersion(id string) (RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return RuleVersion{}, internalerr.New(internalerr.NotFound, "version %q not found", id)
	}
	return v.clone(), nil
}

func (s *MemoryStore) GetVersionByNumber(ruleID string, number int) (RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byRuleID[ruleID] {
		if v := s.byID[id]; v.VersionNumber == number {
			return v.clone(), nil
		}
	}
	return RuleVersion{}, internalerr.New(internalerr.NotFound, "rule %q has no version %d", ruleID, number)
}

func (s *MemoryStore) GetActiveVersion(ruleID string) (RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byRuleID[ruleID] {
		if v := s.byID[id]; v.Status == StatusActive {
			return v.clone(), nil
		}
	}
	return RuleVersion{}, internalerr.New(internalerr.NotFound, "rule %q has no active version", ruleID)
}

func (s *MemoryStore) ActivateVersion(id string) (RuleVersion, error) {
	s.mu.RLock()
	target, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return RuleVersion{}, internalerr.New(internalerr.NotFound, "version %q not found", id)
	}
	writer := s.writers.get(target.RuleID)
	return writer.do(func() (RuleVersion, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		target, ok := s.byID[id]
		if !ok {
			return RuleVersion{}, internalerr.New(internalerr.NotFound, "version %q not found", id)
		}
		for _, other := range s.byRuleID[target.RuleID] {
			v := s.byID[other]
			v.Status = StatusArchived
			s.byID[other] = v
		}
		target.Status = StatusActive
		s.byID[id] = target
		return target.clone(), nil
	})
}

func (s *MemoryStore) DeleteVersion(id string) error {
	s.mu.RLock()
	target, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return internalerr.New(internalerr.NotFound, "version %q not found", id)
	}
	writer := s.writers.get(target.RuleID)
	_, err := writer.do(func() (RuleVersion, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		target, ok := s.byID[id]
		if !ok {
			return RuleVersion{}, internalerr.New(internalerr.NotFound, "version %q not found", id)
		}
		if target.Status == StatusActive {
			return RuleVersion{}, internalerr.New(internalerr.ValidationError, "cannot delete the active version of rule %q", target.RuleID)
		}
		delete(s.byID, id)
		ids := s.byRuleID[target.RuleID]
		for i, rid := range ids {
			if rid == id {
				s.byRuleID[target.RuleID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		return RuleVersion{}, nil
	})
	return err
}
