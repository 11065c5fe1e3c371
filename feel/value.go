package feel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind is the tagged-union discriminant for Value: a JSON-shaped
// data model with one Number kind, no separate int/float.
type ValueKind int8

const (
	KindNull ValueKind = iota
	KindBoolean
	KindNumber
	KindString
	KindList
	KindContext
)

// Value is the FEEL runtime's tagged-union value type.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	list []Value
	ctx  map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBoolean, b: b} }
func Number(n float64) Value     { return Value{kind: KindNumber, n: n} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func List(vs []Value) Value      { return Value{kind: KindList, list: vs} }
func Context(m map[string]Value) Value {
	return Value{kind: KindContext, ctx: m}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// FromAny converts a raw Go value (as decoded from JSON, or produced by
// rulectx.Value.Unwrap) into a Value.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return List(out)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return Context(out)
	default:
		return Null()
	}
}

func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBoolean:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToAny()
		}
		return out
	case KindContext:
		out := make(map[string]any, len(v.ctx))
		for k, e := range v.ctx {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}

// Truthy implements FEEL's three-valued boolean semantics: only
// KindBoolean(true) is truthy; everything else, including null and
// non-boolean values, is not, so unknown never silently becomes true.
func (v Value) Truthy() bool {
	return v.kind == KindBoolean && v.b
}

// Equal implements FEEL's "=" operator: same kind and same contents,
// numbers compared by value, lists/contexts compared element-wise.
// Cross-kind comparisons, including null against a non-null value, are
// defined-false rather than an error.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindContext:
		if len(v.ctx) != len(o.ctx) {
			return false
		}
		for k, e := range v.ctx {
			oe, ok := o.ctx[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two Values for <,<=,>,>= : only
// Number-Number and String-String (lexicographic) are ordered; anything
// else reports !ok so the caller treats the comparison as false.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.kind != o.kind {
		return 0, false
	}
	switch v.kind {
	case KindNumber:
		switch {
		case v.n < o.n:
			return -1, true
		case v.n > o.n:
			return 1, true
		default:
			return 0, true
		}
	case KindString:
		return strings.Compare(v.s, o.s), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindContext:
		keys := make([]string, 0, len(v.ctx))
		for k := range v.ctx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.ctx[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}
