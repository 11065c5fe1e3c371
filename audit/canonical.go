// Package audit implements RFC 8785 JSON Canonicalization of the
// audit-hash subset, SHA-256 hashing, and a bounded process-wide hash
// cache.
package audit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize renders v (built only from map[string]any, []any,
// string, float64, bool, nil, i.e. the JSON-decoded value space) as RFC
// 8785 JSON Canonicalization Scheme bytes: object keys sorted, no
// insignificant whitespace, numbers formatted per the ECMAScript
// Number::toString algorithm JCS mandates.
//
// No actively-maintained JCS implementation was found anywhere in the
// retrieved example pack (see DESIGN.md); this is a deliberate,
// narrowly-scoped stdlib implementation rather than an unfamiliar new
// dependency, because the hash must be bit-exact across runs.
func Canonicalize(v any) ([]byte, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch n := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if n {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		writeCanonicalString(b, n)
	case float64:
		s, err := canonicalNumber(n)
		if err != nil {
			return err
		}
		b.WriteString(s)
	case int:
		return writeCanonical(b, float64(n))
	case int64:
		return writeCanonical(b, float64(n))
	case map[string]any:
		return writeCanonicalObject(b, n)
	case []any:
		return writeCanonicalArray(b, n)
	case []string:
		arr := make([]any, len(n))
		for i, s := range n {
			arr[i] = s
		}
		return writeCanonicalArray(b, arr)
	default:
		return fmt.Errorf("audit: unsupported value type %T for canonicalization", v)
	}
	return nil
}

func writeCanonicalObject(b *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(b, k)
		b.WriteByte(':')
		if err := writeCanonical(b, m[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func writeCanonicalArray(b *strings.Builder, arr []any) error {
	b.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeCanonical(b, v); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

// writeCanonicalString escapes per RFC 8259, matching JCS: control
// characters as \uXXXX (lowercase hex), '"' and '\\' escaped, everything
// else (including non-ASCII) written through verbatim. JCS requires
// UTF-8 NFC input, not \u-escaping of non-ASCII.
func writeCanonicalString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// canonicalNumber implements the ECMAScript Number::toString shortest
// round-trip format JCS requires: integral values with no fractional
// part serialize without a decimal point, everything else uses the
// shortest decimal representation that round-trips.
func canonicalNumber(n float64) (string, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "", fmt.Errorf("audit: cannot canonicalize non-finite number %v", n)
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10), nil
	}
	// Plain decimal notation for magnitudes in [1e-6, 1e21); outside
	// that range, exponent notation without leading exponent zeros
	// ("1e-7", "1e+21").
	if abs := math.Abs(n); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	mant, exp, _ := strings.Cut(strconv.FormatFloat(n, 'e', -1, 64), "e")
	return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0"), nil
}
