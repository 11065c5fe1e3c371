package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/dchest/siphash"
)

// Subject is the hash-input subset:
// { context, evaluations, decision, confidence, scoring_strategy_name }.
type Subject struct {
	Context             map[string]any
	Evaluations         []any
	Decision            string
	Confidence          float64
	ScoringStrategyName string
}

func (s Subject) asMap() map[string]any {
	return map[string]any{
		"context":               s.Context,
		"evaluations":           s.Evaluations,
		"decision":              s.Decision,
		"confidence":            s.Confidence,
		"scoring_strategy_name": s.ScoringStrategyName,
	}
}

// Hash computes the canonical SHA-256 hex digest of a Subject, going
// through the process-wide Cache so repeated identical subjects (common
// across retries of the same decide() call) skip re-canonicalizing.
func Hash(s Subject) (string, error) {
	return defaultCache.hash(s)
}

const defaultCacheCapacity = 1000

var defaultCache = NewCache(defaultCacheCapacity)

// ResetDefaultCache replaces the process-wide cache with a fresh one of
// the given capacity (the default when capacity <= 0). Call at startup,
// before concurrent Hash traffic begins.
func ResetDefaultCache(capacity int) {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	defaultCache = NewCache(capacity)
}

// cacheEntry pairs a canonical hash with its insertion order, used to
// evict the oldest ~10% when the cache is full.
type cacheEntry struct {
	hash  string
	order uint64
}

// Cache is a bounded, process-wide map from a fast siphash fingerprint
// of the canonical JSON bytes to their SHA-256 digest. Reads take the
// mutex only for the map lookup, never for canonicalization or hashing;
// writes take it, re-check under lock, and evict the oldest ~10% by
// insertion order when full.
type Cache struct {
	capacity int
	mu       sync.Mutex
	entries  map[uint64]cacheEntry
	nextOrd  uint64
}

// NewCache builds an instance-scoped cache, for tests that need
// isolation from the process-wide default.
func NewCache(capacity int) *Cache {
	return &Cache{capacity: capacity, entries: make(map[uint64]cacheEntry, capacity)}
}

func fingerprint(canonical []byte) uint64 {
	return siphash.Hash(0, 0, canonical)
}

func (c *Cache) hash(s Subject) (string, error) {
	canonical, err := Canonicalize(s.asMap())
	if err != nil {
		return "", err
	}
	key := fingerprint(canonical)

	// Short locked lookup: a miss falls through to the full computation
	// below, which runs outside the lock.
	if entry, ok := c.readLockFree(key); ok {
		return entry, nil
	}

	sum := sha256.Sum256(canonical)
	digest := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		return entry.hash, nil
	}
	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{hash: digest, order: c.nextOrd}
	c.nextOrd++
	return digest, nil
}

func (c *Cache) readLockFree(key uint64) (string, bool) {
	// Map reads in Go are not safe to race with concurrent writes;
	// this "lock-free" read still takes the mutex, but only for the
	// duration of a map lookup, never for canonicalization or hashing.
	// The expensive work happens outside the critical section.
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	return entry.hash, true
}

func (c *Cache) evictOldestLocked() {
	n := len(c.entries) / 10
	if n == 0 {
		n = 1
	}
	type kv struct {
		key   uint64
		order uint64
	}
	all := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, kv{k, e.order})
	}
	// partial selection of the n oldest by insertion order
	for i := 0; i < n && i < len(all); i++ {
		oldestIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].order < all[oldestIdx].order {
				oldestIdx = j
			}
		}
		all[i], all[oldestIdx] = all[oldestIdx], all[i]
		delete(c.entries, all[i].key)
	}
}
