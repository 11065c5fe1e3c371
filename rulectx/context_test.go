package rulectx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndGet(t *testing.T) {
	ctx := New(map[string]any{
		"user": map[string]any{
			"age":    float64(30),
			"region": "us-east",
			"tags":   []any{"a", "b"},
		},
		"amount": 100,
	})

	v, ok := ctx.Get("user.age")
	require.True(t, ok)
	assert.Equal(t, float64(30), v.Number())

	v, ok = ctx.Get("user.region")
	require.True(t, ok)
	assert.Equal(t, "us-east", v.String())

	_, ok = ctx.Get("user.missing")
	assert.False(t, ok)

	_, ok = ctx.Get("nonexistent.path")
	assert.False(t, ok)
}

func TestNewNilCollapsesToEmpty(t *testing.T) {
	ctx := New(nil)
	require.NotNil(t, ctx)
	assert.Equal(t, map[string]any{}, ctx.AsMapping())
}

func TestFetchDefault(t *testing.T) {
	ctx := New(map[string]any{"a": 1})
	v := ctx.Fetch("missing", StringValue("fallback"))
	assert.Equal(t, "fallback", v.String())
}

func TestHas(t *testing.T) {
	ctx := New(map[string]any{"a": map[string]any{"b": 1}})
	assert.True(t, ctx.Has("a.b"))
	assert.False(t, ctx.Has("a.c"))
}

func TestAsMappingRoundTrips(t *testing.T) {
	in := map[string]any{
		"x": float64(1),
		"y": map[string]any{"z": "hi"},
		"l": []any{float64(1), float64(2)},
	}
	ctx := New(in)
	out := ctx.AsMapping()
	assert.Equal(t, in, out)
}

func TestMutatingInputDoesNotAffectContext(t *testing.T) {
	in := map[string]any{"a": "original"}
	ctx := New(in)
	in["a"] = "mutated"
	v, ok := ctx.Get("a")
	require.True(t, ok)
	assert.Equal(t, "original", v.String())
}

func TestEqual(t *testing.T) {
	a := New(map[string]any{"x": 1})
	b := New(map[string]any{"x": 1})
	c := New(map[string]any{"x": 2})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, NullValue().IsEmpty())
	assert.True(t, StringValue("").IsEmpty())
	assert.False(t, StringValue("x").IsEmpty())
	assert.True(t, Value{kind: KindList}.IsEmpty())
}

func TestValueEqualNumberCrossType(t *testing.T) {
	assert.True(t, NumberValue(1).Equal(NumberValue(1.0)))
	assert.False(t, NumberValue(1).Equal(StringValue("1")))
}
