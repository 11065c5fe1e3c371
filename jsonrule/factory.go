package jsonrule

import (
	"github.com/zyedidia/generic/hashmap"
)

// Factory interns Condition trees during ruleset construction: equal
// condition subtrees (by structural hash) collapse to a single shared
// instance, so a ruleset with repeated sub-conditions (e.g. the same
// "region present" check across many rules) doesn't allocate and
// re-evaluate duplicates.
type Factory struct {
	cache *hashmap.Map[Condition, Condition]
}

func NewFactory() *Factory {
	return &Factory{
		cache: hashmap.New[Condition, Condition](0,
			func(a, b Condition) bool { return a.Equals(b) },
			func(c Condition) uint64 { return c.Hash() }),
	}
}

// Intern returns the canonical instance for a structurally-equal
// condition, registering cond as canonical on first sight.
func (f *Factory) Intern(cond Condition) Condition {
	if existing, ok := f.cache.Get(cond); ok {
		return existing
	}
	f.cache.Put(cond, cond)
	return cond
}

// InternRuleset walks a parsed ruleset and interns every condition
// subtree through this factory, replacing rule.Condition in place.
func (f *Factory) InternRuleset(rs *Ruleset) {
	for _, r := range rs.Rules {
		r.Condition = f.internTree(r.Condition)
	}
}

func (f *Factory) internTree(c Condition) Condition {
	switch v := c.(type) {
	case *AllCondition:
		for i, op := range v.Operands {
			v.Operands[i] = f.internTree(op)
		}
		return f.Intern(v)
	case *AnyCondition:
		for i, op := range v.Operands {
			v.Operands[i] = f.internTree(op)
		}
		return f.Intern(v)
	default:
		return f.Intern(c)
	}
}
