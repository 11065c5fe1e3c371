package version

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// RedisStore persists versions as Redis hashes, one key per version,
// plus a sorted set per rule_id ordering versions by number and a
// pointer key tracking the active version id. ActivateVersion/
// CreateVersion use WATCH/MULTI so the exactly-one-active invariant
// holds across processes, not just within one: a Redis-backed store is
// shared across processes by construction, so optimistic locking
// replaces the in-process writerPool used by the other two adapters.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "decisioncore:version"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) versionKey(id string) string { return fmt.Sprintf("%s:v:%s", s.prefix, id) }
func (s *RedisStore) ruleSetKey(ruleID string) string {
	return fmt.Sprintf("%s:rule:%s", s.prefix, ruleID)
}
func (s *RedisStore) activeKey(ruleID string) string {
	return fmt.Sprintf("%s:active:%s", s.prefix, ruleID)
}
func (s *RedisStore) allVersionsKey() string { return s.prefix + ":all" }

func (s *RedisStore) marshal(v RuleVersion) (string, error) {
	data, err := json.Marshal(toFileRecordRedis(v))
	return string(data), err
}

func (s *RedisStore) unmarshal(data string) (RuleVersion, error) {
	var rec fileRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return RuleVersion{}, err
	}
	return toRuleVersion(rec), nil
}

func toFileRecordRedis(v RuleVersion) fileRecord {
	return fileRecord{
		ID:            v.ID,
		RuleID:        v.RuleID,
		VersionNumber: v.VersionNumber,
		Content:       v.Content,
		Status:        v.Status,
		CreatedAt:     v.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedBy:     v.CreatedBy,
		Changelog:     v.Changelog,
	}
}

func (s *RedisStore) CreateVersion(ruleID string, content map[string]any, createdBy, changelog string) (RuleVersion, error) {
	ctx := context.Background()
	var result RuleVersion
	txf := func(tx *redis.Tx) error {
		existingIDs, err := tx.ZRange(ctx, s.ruleSetKey(ruleID), 0, -1).Result()
		if err != nil {
			return err
		}
		nextNumber := 1
		var archive []RuleVersion
		for _, id := range existingIDs {
			data, err := tx.Get(ctx, s.versionKey(id)).Result()
			if err != nil {
				continue
			}
			v, err := s.unmarshal(data)
			if err != nil {
				continue
			}
			if v.VersionNumber >= nextNumber {
				nextNumber = v.VersionNumber + 1
			}
			if v.Status == StatusActive {
				v.Status = StatusArchived
				archive = append(archive, v)
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, v := range archive {
				data, err := s.marshal(v)
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.versionKey(v.ID), data, 0)
			}
			data, err := s.marshal(nv)
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.versionKey(nv.ID), data, 0)
			pipe.ZAdd(ctx, s.ruleSetKey(ruleID), redis.Z{Score: float64(nv.VersionNumber), Member: nv.ID})
			pipe.ZAdd(ctx, s.allVersionsKey(), redis.Z{Score: float64(nv.VersionNumber), Member: nv.ID})
			pipe.Set(ctx, s.activeKey(ruleID), nv.ID, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = nv
		return nil
	}
	if err := s.client.Watch(ctx, txf, s.ruleSetKey(ruleID), s.activeKey(ruleID)); err != nil {
		return RuleVersion{}, fmt.Errorf("version: redis create_version: %w", err)
	}
	return result, nil
}

func (s *RedisStore) ListVersions(ruleID string, limit int) ([]RuleVersion, error) {
	ctx := context.Background()
	ids, err := s.client.ZRevRange(ctx, s.ruleSetKey(ruleID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RuleVersion, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetVersion(id)
		if err == nil {
			out = append(out, v)
		}
	}
	return applyLimit(out, limit), nil
}

func (s *RedisStore) ListAllVersions(limit int) ([]RuleVersion, error) {
	ctx := context.Background()
	ids, err := s.client.ZRevRange(ctx, s.allVersionsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RuleVersion, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetVersion(id)
		if err == nil {
			out = append(out, v)
		}
	}
	return applyLimit(out, limit), nil
}

func (s *RedisStore) GetVersion(id string) (RuleVersion, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, s.versionKey(id)).Result()
	if err == redis.Nil {
		return RuleVersion{}, internalerr.New(internalerr.NotFound, "version %q not found", id)
	}
	if err != nil {
		return RuleVersion{}, err
	}
	return s.unmarshal(data)
}

func (s *RedisStore) GetVersionByNumber(ruleID string, number int) (RuleVersion, error) {
	ctx := context.Background()
	ids, err := s.client.ZRangeByScore(ctx, s.ruleSetKey(ruleID), &redis.ZRangeBy{
		Min: strconv.Itoa(number), Max: strconv.Itoa(number),
	}).Result()
	if err != nil || len(ids) == 0 {
		return RuleVersion{}, internalerr.New(internalerr.NotFound, "rule %q has no version %d", ruleID, number)
	}
	return s.GetVersion(ids[0])
}

func (s *RedisStore) GetActiveVersion(ruleID string) (RuleVersion, error) {
	ctx := context.Background()
	id, err := s.client.Get(ctx, s.activeKey(ruleID)).Result()
	if err == redis.Nil {
		return RuleVersion{}, internalerr.New(internalerr.NotFound, "rule %q has no active version", ruleID)
	}
	if err != nil {
		return RuleVersion{}, err
	}
	return s.GetVersion(id)
}

func (s *RedisStore) ActivateVersion(id string) (RuleVersion, error) {
	ctx := context.Background()
	target, err := s.GetVersion(id)
	if err != nil {
		return RuleVersion{}, err
	}
	var result RuleVersion
	txf := func(tx *redis.Tx) error {
		ids, err := tx.ZRange(ctx, s.ruleSetKey(target.RuleID), 0, -1).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, otherID := range ids {
				v, err := s.GetVersion(otherID)
				if err != nil {
					continue
				}
				if otherID == id {
					v.Status = StatusActive
				} else {
					v.Status = StatusArchived
				}
				data, err := s.marshal(v)
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.versionKey(otherID), data, 0)
				if otherID == id {
					result = v
				}
			}
			pipe.Set(ctx, s.activeKey(target.RuleID), id, 0)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, s.ruleSetKey(target.RuleID)); err != nil {
		return RuleVersion{}, fmt.Errorf("version: redis activate_version: %w", err)
	}
	return result, nil
}

func (s *RedisStore) DeleteVersion(id string) error {
	ctx := context.Background()
	target, err := s.GetVersion(id)
	if err != nil {
		return err
	}
	if target.Status == StatusActive {
		return internalerr.New(internalerr.ValidationError, "cannot delete the active version of rule %q", target.RuleID)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.versionKey(id))
	pipe.ZRem(ctx, s.ruleSetKey(target.RuleID), id)
	pipe.ZRem(ctx, s.allVersionsKey(), id)
	_, err = pipe.Exec(ctx)
	return err
}
