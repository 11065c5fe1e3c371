// Package abtest implements the A/B test manager: test lifecycle state
// machine, consistent-hashing variant assignment, and result
// aggregation.
package abtest

import (
	"crypto/sha256"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// Status is an ABTest's lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Variant identifies which arm of a test an assignment landed on.
type Variant string

const (
	Champion   Variant = "champion"
	Challenger Variant = "challenger"
)

// TrafficSplit must sum to 100 ABTest invariants.
type TrafficSplit struct {
	Champion   int
	Challenger int
}

// ABTest is the frozen-by-convention test definition; mutation happens
// only through the state-machine methods below, each of which
// validates the transition.
type ABTest struct {
	ID                  string
	Name                string
	ChampionVersionID   string
	ChallengerVersionID string
	TrafficSplit        TrafficSplit
	StartDate           time.Time
	EndDate             *time.Time
	Status              Status
}

// NewABTest validates the invariants: champion and challenger differ,
// split sums to 100 and is non-negative, end_date > start_date when
// both set. New tests start scheduled.
func NewABTest(name, championVersionID, challengerVersionID string, split TrafficSplit, startDate time.Time, endDate *time.Time) (*ABTest, error) {
	if championVersionID == challengerVersionID {
		return nil, internalerr.New(internalerr.ValidationError, "champion and challenger version ids must differ")
	}
	if split.Champion < 0 || split.Challenger < 0 || split.Champion+split.Challenger != 100 {
		return nil, internalerr.New(internalerr.ValidationError, "traffic split must be non-negative and sum to 100, got champion=%d challenger=%d", split.Champion, split.Challenger)
	}
	if endDate != nil && !endDate.After(startDate) {
		return nil, internalerr.New(internalerr.ValidationError, "end_date must be after start_date")
	}
	return &ABTest{
		ID:                  uuid.NewString(),
		Name:                name,
		ChampionVersionID:   championVersionID,
		ChallengerVersionID: challengerVersionID,
		TrafficSplit:        split,
		StartDate:           startDate,
		EndDate:             endDate,
		Status:              StatusScheduled,
	}, nil
}

// Start transitions scheduled -> running.
func (t *ABTest) Start() error {
	if t.Status != StatusScheduled {
		return internalerr.New(internalerr.InvalidStatusTransition, "cannot start a test in status %q", t.Status)
	}
	t.Status = StatusRunning
	return nil
}

// Complete transitions running -> completed. The Manager's automatic
// completion once now > end_date sets the status directly and does not
// go through Complete.
func (t *ABTest) Complete() error {
	if t.Status != StatusRunning {
		return internalerr.New(internalerr.InvalidStatusTransition, "cannot complete a test in status %q", t.Status)
	}
	t.Status = StatusCompleted
	return nil
}

// Cancel transitions scheduled|running -> cancelled. completed cannot
// be cancelled; cancellation is permitted from scheduled as well as
// running, not just running.
func (t *ABTest) Cancel() error {
	if t.Status != StatusScheduled && t.Status != StatusRunning {
		return internalerr.New(internalerr.InvalidStatusTransition, "cannot cancel a test in status %q", t.Status)
	}
	t.Status = StatusCancelled
	return nil
}

// EffectivelyRunning implements "effectively running"
// predicate: status=running AND start_date <= now AND (end_date is nil
// OR now <= end_date).
func (t *ABTest) EffectivelyRunning(now time.Time) bool {
	if t.Status != StatusRunning {
		return false
	}
	if now.Before(t.StartDate) {
		return false
	}
	if t.EndDate != nil && now.After(*t.EndDate) {
		return false
	}
	return true
}

// ABTestAssignment records one resolved variant for one (test, user)
// pair, optionally updated with a decision result afterward.
type ABTestAssignment struct {
	ID             string
	ABTestID       string
	UserID         string
	Variant        Variant
	VersionID      string
	Timestamp      time.Time
	DecisionResult string
	Confidence     float64
	HasResult      bool
	Context        map[string]any
}

// ResolveVariant implements consistent-hashing
// assignment: with a user_id, SHA-256(test_id + ":" + user_id) as a
// big-endian integer mod 100 selects the variant deterministically;
// without one, the caller supplies a uniform-random value in [0,100)
// instead (kept as a separate parameter so this function stays pure
// and testable without injecting a PRNG).
func ResolveVariant(split TrafficSplit, testID, userID string, randomValue int) Variant {
	var bucket int
	if userID != "" {
		sum := sha256.Sum256([]byte(testID + ":" + userID))
		n := new(big.Int).SetBytes(sum[:])
		bucket = int(new(big.Int).Mod(n, big.NewInt(100)).Int64())
	} else {
		bucket = randomValue % 100
	}
	if bucket < split.Champion {
		return Champion
	}
	return Challenger
}

func versionForVariant(t *ABTest, v Variant) string {
	if v == Champion {
		return t.ChampionVersionID
	}
	return t.ChallengerVersionID
}

