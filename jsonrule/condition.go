// Package jsonrule implements the JSON rule DSL evaluator: boolean
// condition trees matched against a Context, first-rule-wins. The
// Condition tagged union below has three variants: Field, All, Any.
package jsonrule

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrelrules/decisioncore/rulectx"
)

// Operator enumerates the predicates a Field condition can apply.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGe       Operator = "ge"
	OpLt       Operator = "lt"
	OpLe       Operator = "le"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpPresent  Operator = "present"
	OpBlank    Operator = "blank"
	OpMatches  Operator = "matches"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGe: true, OpLt: true, OpLe: true,
	OpIn: true, OpContains: true, OpPresent: true, OpBlank: true, OpMatches: true,
}

// Kind tags a Condition's variant.
type Kind int8

const (
	KindField Kind = iota
	KindAll
	KindAny
)

// Condition is the tagged union over Field/All/Any. It exposes a
// structural hash so a Factory can intern equal condition trees.
type Condition interface {
	Kind() Kind
	Hash() uint64
	Equals(other Condition) bool
	Evaluate(ctx *rulectx.Context) (bool, []conditionTrace)
}

// conditionTrace is the internal leaf-trace shape; jsonrule translates
// it into explain.ConditionTrace at the Evaluator boundary so this
// package doesn't need to import explain's public trace type directly
// during recursive evaluation.
type conditionTrace struct {
	field    string
	operator string
	expected any
	actual   any
	result   bool
}

// FieldCondition matches a single dotted-path predicate.
type FieldCondition struct {
	Field    string
	Op       Operator
	Value    any
	hash     uint64
	matcher  *StringMatcher
	matchIdx int
}

// NewFieldCondition validates the operator and builds a FieldCondition.
func NewFieldCondition(field string, op Operator, value any) (*FieldCondition, error) {
	if !knownOperators[op] {
		return nil, fmt.Errorf("ValidationError: unknown operator %q", op)
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "field:%s:%s:%v", field, op, value)
	return &FieldCondition{Field: field, Op: op, Value: value, hash: h.Sum64()}, nil
}

func (c *FieldCondition) Kind() Kind              { return KindField }
func (c *FieldCondition) Hash() uint64            { return c.hash }
func (c *FieldCondition) Equals(o Condition) bool { return o != nil && c.Hash() == o.Hash() }

func (c *FieldCondition) Evaluate(ctx *rulectx.Context) (bool, []conditionTrace) {
	actual, ok := ctx.Get(c.Field)
	result := c.matches(ok, actual)
	trace := conditionTrace{
		field:    c.Field,
		operator: string(c.Op),
		expected: c.Value,
		actual:   valueOrNil(ok, actual),
		result:   result,
	}
	return result, []conditionTrace{trace}
}

func valueOrNil(ok bool, v rulectx.Value) any {
	if !ok {
		return nil
	}
	return v.Unwrap()
}

// bindMatcher wires a shared Aho-Corasick pre-filter into this
// condition's "contains" check; it's a throughput optimization only
// (see jsonrule.Evaluator.buildStringIndex) and never changes the
// condition's result versus the naive strings.Contains path.
func (c *FieldCondition) bindMatcher(m *StringMatcher, idx int) {
	c.matcher = m
	c.matchIdx = idx
}

func (c *FieldCondition) matches(present bool, actual rulectx.Value) bool {
	switch c.Op {
	case OpPresent:
		return present && !actual.IsEmpty()
	case OpBlank:
		return !present || actual.IsEmpty()
	}
	if !present {
		return false
	}
	switch c.Op {
	case OpEq:
		return valuesEqual(actual, c.Value)
	case OpNe:
		return !valuesEqual(actual, c.Value)
	case OpGt, OpGe, OpLt, OpLe:
		return numericCompare(c.Op, actual, c.Value)
	case OpIn:
		return inList(actual, c.Value)
	case OpContains:
		if c.matcher != nil && actual.Kind() == rulectx.KindString {
			for _, idx := range c.matcher.Match(actual.String()) {
				if idx == c.matchIdx {
					return true
				}
			}
			return false
		}
		return containsMatch(actual, c.Value)
	case OpMatches:
		return regexMatch(actual, c.Value)
	default:
		return false
	}
}

func valuesEqual(actual rulectx.Value, expected any) bool {
	return actual.Equal(wrapScalar(expected))
}

func wrapScalar(v any) rulectx.Value {
	switch n := v.(type) {
	case nil:
		return rulectx.NullValue()
	case bool:
		return rulectx.BoolValue(n)
	case string:
		return rulectx.StringValue(n)
	case int:
		return rulectx.NumberValue(float64(n))
	case int64:
		return rulectx.NumberValue(float64(n))
	case float64:
		return rulectx.NumberValue(n)
	case float32:
		return rulectx.NumberValue(float64(n))
	default:
		return rulectx.StringValue(fmt.Sprintf("%v", n))
	}
}

// numericCompare implements gt/ge/lt/le: non-numeric operand is false,
// not an error.
func numericCompare(op Operator, actual rulectx.Value, expected any) bool {
	if actual.Kind() != rulectx.KindNumber {
		return false
	}
	var ev float64
	switch n := expected.(type) {
	case int:
		ev = float64(n)
	case int64:
		ev = float64(n)
	case float64:
		ev = n
	case float32:
		ev = float64(n)
	default:
		return false
	}
	av := actual.Number()
	switch op {
	case OpGt:
		return av > ev
	case OpGe:
		return av >= ev
	case OpLt:
		return av < ev
	case OpLe:
		return av <= ev
	default:
		return false
	}
}

// inList implements "in": actual ∈ expected, expected a sequence.
func inList(actual rulectx.Value, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	for _, e := range list {
		if actual.Equal(wrapScalar(e)) {
			return true
		}
	}
	return false
}

// containsMatch implements "contains": symmetric between sequence
// actual containing scalar expected, and string actual containing
// substring expected.
func containsMatch(actual rulectx.Value, expected any) bool {
	switch actual.Kind() {
	case rulectx.KindList:
		for _, e := range actual.List() {
			if e.Equal(wrapScalar(expected)) {
				return true
			}
		}
		return false
	case rulectx.KindString:
		sub, ok := expected.(string)
		if !ok {
			return false
		}
		return strings.Contains(actual.String(), sub)
	default:
		return false
	}
}

func regexMatch(actual rulectx.Value, expected any) bool {
	pattern, ok := expected.(string)
	if !ok || actual.Kind() != rulectx.KindString {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(actual.String())
}

// AllCondition is a short-circuit conjunction; an empty operand list is
// true.
type AllCondition struct {
	Operands []Condition
	hash     uint64
}

func NewAllCondition(operands ...Condition) *AllCondition {
	return &AllCondition{Operands: operands, hash: combineHash(KindAll, operands)}
}

func (c *AllCondition) Kind() Kind              { return KindAll }
func (c *AllCondition) Hash() uint64            { return c.hash }
func (c *AllCondition) Equals(o Condition) bool { return o != nil && c.Hash() == o.Hash() }

func (c *AllCondition) Evaluate(ctx *rulectx.Context) (bool, []conditionTrace) {
	var traces []conditionTrace
	result := true
	for _, op := range c.Operands {
		ok, t := op.Evaluate(ctx)
		traces = append(traces, t...)
		if !ok {
			result = false
			break
		}
	}
	return result, traces
}

// AnyCondition is a short-circuit disjunction; an empty operand list is
// false.
type AnyCondition struct {
	Operands []Condition
	hash     uint64
}

func NewAnyCondition(operands ...Condition) *AnyCondition {
	return &AnyCondition{Operands: operands, hash: combineHash(KindAny, operands)}
}

func (c *AnyCondition) Kind() Kind              { return KindAny }
func (c *AnyCondition) Hash() uint64            { return c.hash }
func (c *AnyCondition) Equals(o Condition) bool { return o != nil && c.Hash() == o.Hash() }

func (c *AnyCondition) Evaluate(ctx *rulectx.Context) (bool, []conditionTrace) {
	var traces []conditionTrace
	for _, op := range c.Operands {
		ok, t := op.Evaluate(ctx)
		traces = append(traces, t...)
		if ok {
			return true, traces
		}
	}
	return false, traces
}

func combineHash(kind Kind, operands []Condition) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "kind:%d", kind)
	hashes := make([]uint64, len(operands))
	for i, op := range operands {
		hashes[i] = op.Hash()
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	for _, hv := range hashes {
		fmt.Fprintf(h, ":%d", hv)
	}
	return h.Sum64()
}
