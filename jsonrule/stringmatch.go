package jsonrule

import (
	"github.com/cloudflare/ahocorasick"
)

// StringMatcher batches "contains" substring checks across many rules
// sharing a field into a single Aho-Corasick scan: a Build-then-Match
// two-phase matcher where each literal is tagged with the condIndex of
// the FieldCondition it belongs to.
type StringMatcher struct {
	machine   *ahocorasick.Matcher
	patterns  []string
	condIdxs  [][]int
	patternOf map[string]int
}

func NewStringMatcher() *StringMatcher {
	return &StringMatcher{patternOf: make(map[string]int)}
}

// AddPattern registers a literal substring needed by the FieldCondition
// at condIndex. Multiple conditions may share the same literal.
func (sm *StringMatcher) AddPattern(pattern string, condIndex int) {
	if idx, ok := sm.patternOf[pattern]; ok {
		sm.condIdxs[idx] = append(sm.condIdxs[idx], condIndex)
		return
	}
	sm.patternOf[pattern] = len(sm.patterns)
	sm.patterns = append(sm.patterns, pattern)
	sm.condIdxs = append(sm.condIdxs, []int{condIndex})
}

// Build compiles the Aho-Corasick machine. Must be called once, after
// all patterns are registered, before Match.
func (sm *StringMatcher) Build() {
	if len(sm.patterns) == 0 {
		return
	}
	sm.machine = ahocorasick.NewStringMatcher(sm.patterns)
}

// Match returns the set of condition indexes whose literal substring
// occurs in text, or nil if the matcher has no patterns.
func (sm *StringMatcher) Match(text string) []int {
	if sm.machine == nil {
		return nil
	}
	hits := sm.machine.Match([]byte(text))
	var result []int
	for _, hit := range hits {
		result = append(result, sm.condIdxs[hit]...)
	}
	return result
}
