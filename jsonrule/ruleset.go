package jsonrule

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule pairs a condition tree with the decision it yields on match.
// Rule order is semantically significant: first match wins.
type Rule struct {
	ID        string
	Condition Condition
	Decision  string
	Weight    *float64
	Reason    string
}

// Ruleset is a named, versioned collection of rules.
type Ruleset struct {
	Version string
	Name    string
	Rules   []*Rule
}

// ReadRuleset parses a ruleset from JSON or YAML, selected by a dual
// decoder switch on fileType.
func ReadRuleset(r io.Reader, fileType string) (*Ruleset, error) {
	var raw map[string]any
	switch strings.ToLower(fileType) {
	case "json":
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("ValidationError: parsing JSON ruleset: %w", err)
		}
	case "yaml", "yml", "":
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("ValidationError: parsing YAML ruleset: %w", err)
		}
	default:
		return nil, fmt.Errorf("ValidationError: unsupported ruleset file type %q", fileType)
	}
	return rulesetFromMap(raw)
}

// ParseRuleset parses a ruleset already decoded into a generic mapping
// (e.g. passed directly by a caller rather than read from a file).
func ParseRuleset(raw map[string]any) (*Ruleset, error) {
	return rulesetFromMap(raw)
}

func rulesetFromMap(raw map[string]any) (*Ruleset, error) {
	rs := &Ruleset{}
	if v, ok := raw["version"].(string); ok {
		rs.Version = v
	}
	if v, ok := raw["ruleset"].(string); ok {
		rs.Name = v
	}
	rawRules, _ := raw["rules"].([]any)
	for i, rr := range rawRules {
		rm, ok := rr.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("ValidationError: rule at index %d is not an object", i)
		}
		rule, err := ruleFromMap(rm)
		if err != nil {
			return nil, fmt.Errorf("ValidationError: rule at index %d: %w", i, err)
		}
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}

func ruleFromMap(rm map[string]any) (*Rule, error) {
	id, _ := rm["id"].(string)
	ifRaw, ok := rm["if"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'if' condition")
	}
	cond, err := conditionFromMap(ifRaw)
	if err != nil {
		return nil, err
	}
	thenRaw, ok := rm["then"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'then' clause")
	}
	decision, _ := thenRaw["decision"].(string)
	if decision == "" {
		return nil, fmt.Errorf("'then.decision' is required")
	}
	rule := &Rule{ID: id, Condition: cond, Decision: decision}
	if w, ok := numberFrom(thenRaw["weight"]); ok {
		rule.Weight = &w
	}
	if reason, ok := thenRaw["reason"].(string); ok {
		rule.Reason = reason
	}
	return rule, nil
}

func numberFrom(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func conditionFromMap(m map[string]any) (Condition, error) {
	if fieldRaw, ok := m["field"]; ok {
		field, _ := fieldRaw.(string)
		opRaw, _ := m["op"].(string)
		value := normalizeValue(m["value"])
		return NewFieldCondition(field, Operator(opRaw), value)
	}
	if allRaw, ok := m["all"].([]any); ok {
		conds, err := conditionsFromSlice(allRaw)
		if err != nil {
			return nil, err
		}
		return NewAllCondition(conds...), nil
	}
	if anyRaw, ok := m["any"].([]any); ok {
		conds, err := conditionsFromSlice(anyRaw)
		if err != nil {
			return nil, err
		}
		return NewAnyCondition(conds...), nil
	}
	return nil, fmt.Errorf("condition object must have one of 'field', 'all', 'any'")
}

func conditionsFromSlice(raw []any) ([]Condition, error) {
	out := make([]Condition, 0, len(raw))
	for i, r := range raw {
		rm, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("condition at index %d is not an object", i)
		}
		c, err := conditionFromMap(rm)
		if err != nil {
			return nil, fmt.Errorf("condition at index %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ToMap renders the ruleset back into the generic mapping shape it was
// parsed from, preserving rule order, so a parsed ruleset can be
// re-serialized (e.g. into version-store content) without loss.
func (rs *Ruleset) ToMap() map[string]any {
	rules := make([]any, len(rs.Rules))
	for i, r := range rs.Rules {
		rules[i] = r.toMap()
	}
	return map[string]any{
		"version": rs.Version,
		"ruleset": rs.Name,
		"rules":   rules,
	}
}

func (r *Rule) toMap() map[string]any {
	then := map[string]any{"decision": r.Decision}
	if r.Weight != nil {
		then["weight"] = *r.Weight
	}
	if r.Reason != "" {
		then["reason"] = r.Reason
	}
	return map[string]any{
		"id":   r.ID,
		"if":   conditionToMap(r.Condition),
		"then": then,
	}
}

func conditionToMap(c Condition) map[string]any {
	switch v := c.(type) {
	case *FieldCondition:
		out := map[string]any{"field": v.Field, "op": string(v.Op)}
		if v.Op != OpPresent && v.Op != OpBlank {
			out["value"] = v.Value
		}
		return out
	case *AllCondition:
		return map[string]any{"all": conditionsToSlice(v.Operands)}
	case *AnyCondition:
		return map[string]any{"any": conditionsToSlice(v.Operands)}
	default:
		return map[string]any{}
	}
}

func conditionsToSlice(conds []Condition) []any {
	out := make([]any, len(conds))
	for i, c := range conds {
		out[i] = conditionToMap(c)
	}
	return out
}

// normalizeValue converts json.Number into float64 so comparisons don't
// need to special-case it; other scalar/slice/map shapes pass through.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return v
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
