package abtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// RedisAssignmentStore persists assignments as Redis hashes plus a
// per-test set and a per-(test,user) pointer key for stickiness
// lookups. This store only persists; it does not attempt distributed
// coordination of concurrent assignment races for the same new user.
// A rare double-assign under concurrent first-touch from the same user
// across two processes is accepted.
type RedisAssignmentStore struct {
	client *redis.Client
	prefix string
}

func NewRedisAssignmentStore(client *redis.Client, prefix string) *RedisAssignmentStore {
	if prefix == "" {
		prefix = "decisioncore:abtest"
	}
	return &RedisAssignmentStore{client: client, prefix: prefix}
}

type assignmentRecord struct {
	ID             string         `json:"id"`
	ABTestID       string         `json:"ab_test_id"`
	UserID         string         `json:"user_id,omitempty"`
	Variant        Variant        `json:"variant"`
	VersionID      string         `json:"version_id"`
	Timestamp      string         `json:"timestamp"`
	DecisionResult string         `json:"decision_result,omitempty"`
	Confidence     float64        `json:"confidence"`
	HasResult      bool           `json:"has_result"`
	Context        map[string]any `json:"context,omitempty"`
}

func toRecord(a ABTestAssignment) assignmentRecord {
	return assignmentRecord{
		ID:             a.ID,
		ABTestID:       a.ABTestID,
		UserID:         a.UserID,
		Variant:        a.Variant,
		VersionID:      a.VersionID,
		Timestamp:      a.Timestamp.UTC().Format(time.RFC3339Nano),
		DecisionResult: a.DecisionResult,
		Confidence:     a.Confidence,
		HasResult:      a.HasResult,
		Context:        a.Context,
	}
}

func fromRecord(r assignmentRecord) ABTestAssignment {
	ts, _ := time.Parse(time.RFC3339Nano, r.Timestamp)
	return ABTestAssignment{
		ID:             r.ID,
		ABTestID:       r.ABTestID,
		UserID:         r.UserID,
		Variant:        r.Variant,
		VersionID:      r.VersionID,
		Timestamp:      ts,
		DecisionResult: r.DecisionResult,
		Confidence:     r.Confidence,
		HasResult:      r.HasResult,
		Context:        r.Context,
	}
}

func (s *RedisAssignmentStore) key(id string) string { return fmt.Sprintf("%s:a:%s", s.prefix, id) }
func (s *RedisAssignmentStore) testSetKey(testID string) string {
	return fmt.Sprintf("%s:test:%s", s.prefix, testID)
}
func (s *RedisAssignmentStore) userKey(testID, userID string) string {
	return fmt.Sprintf("%s:user:%s:%s", s.prefix, testID, userID)
}

func (s *RedisAssignmentStore) Save(a ABTestAssignment) error {
	ctx := context.Background()
	data, err := json.Marshal(toRecord(a))
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(a.ID), data, 0)
	pipe.SAdd(ctx, s.testSetKey(a.ABTestID), a.ID)
	if a.UserID != "" {
		pipe.Set(ctx, s.userKey(a.ABTestID, a.UserID), a.ID, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisAssignmentStore) Get(id string) (ABTestAssignment, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return ABTestAssignment{}, internalerr.New(internalerr.NotFound, "assignment %q not found", id)
	}
	if err != nil {
		return ABTestAssignment{}, err
	}
	var rec assignmentRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return ABTestAssignment{}, err
	}
	return fromRecord(rec), nil
}

func (s *RedisAssignmentStore) GetByUser(testID, userID string) (ABTestAssignment, bool, error) {
	ctx := context.Background()
	id, err := s.client.Get(ctx, s.userKey(testID, userID)).Result()
	if err == redis.Nil {
		return ABTestAssignment{}, false, nil
	}
	if err != nil {
		return ABTestAssignment{}, false, err
	}
	a, err := s.Get(id)
	if err != nil {
		return ABTestAssignment{}, false, err
	}
	return a, true, nil
}

func (s *RedisAssignmentStore) ListByTest(testID string) ([]ABTestAssignment, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, s.testSetKey(testID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ABTestAssignment, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(id)
		if err == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *RedisAssignmentStore) Update(a ABTestAssignment) error {
	ctx := context.Background()
	data, err := json.Marshal(toRecord(a))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(a.ID), data, 0).Err()
}
