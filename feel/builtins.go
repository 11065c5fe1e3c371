package feel

import (
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

// builtinFunc evaluates a built-in function call's already-evaluated
// arguments. Wrong arity or type returns Null rather than an error;
// FEEL functions are total.
type builtinFunc func(args []Value) (Value, error)

// Built-in names are single identifiers (the tokenizer never produces
// multi-word tokens), so these stand in for FEEL's space-separated
// built-in names (e.g. "string length" becomes "string_length").
var builtins = map[string]builtinFunc{
	"string_length": fnStringLength,
	"upper_case":    fnUpperCase,
	"lower_case":    fnLowerCase,
	"substring":     fnSubstring,
	"contains":      fnContains,
	"starts_with":   fnStartsWith,
	"ends_with":     fnEndsWith,
	"count":         fnCount,
	"sum":           fnSum,
	"min":           fnMin,
	"max":           fnMax,
	"mean":          fnMean,
	"and":           fnAnd,
	"or":            fnOr,
	"not":           fnNot,
	"number":        fnToNumber,
	"date_and_time": fnDateAndTime,
}

func fnStringLength(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindString {
		return Null(), nil
	}
	return Number(float64(len([]rune(args[0].s)))), nil
}

func fnUpperCase(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindString {
		return Null(), nil
	}
	return String(strings.ToUpper(args[0].s)), nil
}

func fnLowerCase(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindString {
		return Null(), nil
	}
	return String(strings.ToLower(args[0].s)), nil
}

func fnSubstring(args []Value) (Value, error) {
	if len(args) < 2 || args[0].Kind() != KindString || args[1].Kind() != KindNumber {
		return Null(), nil
	}
	runes := []rune(args[0].s)
	start := int(args[1].n)
	if start < 0 {
		start = len(runes) + start + 1
	}
	if start < 1 {
		start = 1
	}
	length := len(runes) - start + 1
	if len(args) == 3 && args[2].Kind() == KindNumber {
		length = int(args[2].n)
	}
	if start-1 >= len(runes) || length <= 0 {
		return String(""), nil
	}
	end := start - 1 + length
	if end > len(runes) {
		end = len(runes)
	}
	return String(string(runes[start-1 : end])), nil
}

func fnContains(args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind() != KindString || args[1].Kind() != KindString {
		return Null(), nil
	}
	return Bool(strings.Contains(args[0].s, args[1].s)), nil
}

func fnStartsWith(args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind() != KindString || args[1].Kind() != KindString {
		return Null(), nil
	}
	return Bool(strings.HasPrefix(args[0].s, args[1].s)), nil
}

func fnEndsWith(args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind() != KindString || args[1].Kind() != KindString {
		return Null(), nil
	}
	return Bool(strings.HasSuffix(args[0].s, args[1].s)), nil
}

func listArg(args []Value) ([]Value, bool) {
	if len(args) == 1 && args[0].Kind() == KindList {
		return args[0].list, true
	}
	return args, true
}

func fnCount(args []Value) (Value, error) {
	l, _ := listArg(args)
	return Number(float64(len(l))), nil
}

func fnSum(args []Value) (Value, error) {
	l, _ := listArg(args)
	var total float64
	for _, v := range l {
		if v.Kind() != KindNumber {
			return Null(), nil
		}
		total += v.n
	}
	return Number(total), nil
}

func fnMin(args []Value) (Value, error) {
	l, _ := listArg(args)
	if len(l) == 0 {
		return Null(), nil
	}
	best := l[0]
	for _, v := range l[1:] {
		if cmp, ok := v.Compare(best); ok && cmp < 0 {
			best = v
		}
	}
	return best, nil
}

func fnMax(args []Value) (Value, error) {
	l, _ := listArg(args)
	if len(l) == 0 {
		return Null(), nil
	}
	best := l[0]
	for _, v := range l[1:] {
		if cmp, ok := v.Compare(best); ok && cmp > 0 {
			best = v
		}
	}
	return best, nil
}

func fnMean(args []Value) (Value, error) {
	l, _ := listArg(args)
	if len(l) == 0 {
		return Null(), nil
	}
	sum, err := fnSum(args)
	if err != nil || sum.Kind() != KindNumber {
		return Null(), nil
	}
	return Number(sum.n / float64(len(l))), nil
}

func fnAnd(args []Value) (Value, error) {
	l, _ := listArg(args)
	for _, v := range l {
		if !v.Truthy() {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

func fnOr(args []Value) (Value, error) {
	l, _ := listArg(args)
	for _, v := range l {
		if v.Truthy() {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func fnNot(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindBoolean {
		return Null(), nil
	}
	return Bool(!args[0].b), nil
}

func fnToNumber(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null(), nil
	}
	switch args[0].Kind() {
	case KindNumber:
		return args[0], nil
	case KindString:
		if n, err := strconv.ParseFloat(strings.TrimSpace(args[0].s), 64); err == nil {
			return Number(n), nil
		}
		// date-like strings coerce to Unix seconds, matching date_and_time
		if t, err := dateparse.ParseAny(args[0].s); err == nil {
			return Number(float64(t.Unix())), nil
		}
		return Null(), nil
	default:
		return Null(), nil
	}
}

// fnDateAndTime parses an ISO-ish date/time string using a flexible
// date coercion library (araddon/dateparse), surfacing it as a FEEL
// Number of Unix seconds since FEEL's grammar has no native Value
// temporal kind beyond the data model.
func fnDateAndTime(args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindString {
		return Null(), nil
	}
	t, err := dateparse.ParseAny(args[0].s)
	if err != nil {
		return Null(), nil
	}
	return Number(float64(t.Unix())), nil
}
