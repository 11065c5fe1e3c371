package feel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrules/decisioncore/rulectx"
)

func evalExpr(t *testing.T, src string, ctxData map[string]any) Value {
	t.Helper()
	node, err := Parse(src)
	require.NoError(t, err, "parsing %q", src)
	env := NewEnv(rulectx.New(ctxData))
	v, err := node.Eval(env)
	require.NoError(t, err, "evaluating %q", src)
	return v
}

func TestArithmeticAndPrecedence(t *testing.T) {
	v := evalExpr(t, "2 + 3 * 4", nil)
	assert.Equal(t, float64(14), v.n)

	v = evalExpr(t, "(2 + 3) * 4", nil)
	assert.Equal(t, float64(20), v.n)

	v = evalExpr(t, "2 ** 3 ** 2", nil)
	assert.Equal(t, float64(512), v.n) // right-associative: 2**(3**2)
}

func TestComparisonsAndLogical(t *testing.T) {
	assert.True(t, evalExpr(t, "1 < 2 and 3 > 2", nil).Truthy())
	assert.True(t, evalExpr(t, "1 = 1", nil).Truthy())
	assert.True(t, evalExpr(t, "1 != 2", nil).Truthy())
	assert.True(t, evalExpr(t, "false or true", nil).Truthy())
	assert.False(t, evalExpr(t, "not true", nil).Truthy())
}

func TestFieldLookup(t *testing.T) {
	v := evalExpr(t, "amount > 50", map[string]any{"amount": float64(100)})
	assert.True(t, v.Truthy())
}

func TestBetween(t *testing.T) {
	assert.True(t, evalExpr(t, "5 between 1 and 10", nil).Truthy())
	assert.False(t, evalExpr(t, "15 between 1 and 10", nil).Truthy())
}

func TestInOperator(t *testing.T) {
	assert.True(t, evalExpr(t, `"b" in ["a", "b", "c"]`, nil).Truthy())
	assert.False(t, evalExpr(t, `"z" in ["a", "b", "c"]`, nil).Truthy())
}

func TestInstanceOf(t *testing.T) {
	assert.True(t, evalExpr(t, `1 instance of number`, nil).Truthy())
	assert.True(t, evalExpr(t, `"x" instance of string`, nil).Truthy())
	assert.False(t, evalExpr(t, `"x" instance of number`, nil).Truthy())
}

func TestConditional(t *testing.T) {
	v := evalExpr(t, `if 1 > 0 then "yes" else "no"`, nil)
	assert.Equal(t, "yes", v.s)
}

func TestQuantifiers(t *testing.T) {
	assert.True(t, evalExpr(t, "some x in [1, 2, 3] satisfies x > 2", nil).Truthy())
	assert.False(t, evalExpr(t, "every x in [1, 2, 3] satisfies x > 2", nil).Truthy())
	assert.True(t, evalExpr(t, "every x in [1, 2, 3] satisfies x > 0", nil).Truthy())
}

func TestForExpression(t *testing.T) {
	v := evalExpr(t, "for x in [1, 2, 3] return x * 2", nil)
	require.Equal(t, KindList, v.Kind())
	require.Len(t, v.list, 3)
	assert.Equal(t, float64(2), v.list[0].n)
	assert.Equal(t, float64(6), v.list[2].n)
}

func TestRangeLiteral(t *testing.T) {
	v := evalExpr(t, "(1..4)", nil)
	require.Len(t, v.list, 4)
	assert.Equal(t, float64(1), v.list[0].n)
	assert.Equal(t, float64(4), v.list[3].n)
}

func TestRangeInsideListLiteral(t *testing.T) {
	v := evalExpr(t, "[1..4]", nil)
	require.Len(t, v.list, 1)
	require.Equal(t, KindList, v.list[0].Kind())
	assert.Len(t, v.list[0].list, 4)
}

func TestPropertyAccessAndFilter(t *testing.T) {
	v := evalExpr(t, "user.age", map[string]any{"user": map[string]any{"age": float64(30)}})
	assert.Equal(t, float64(30), v.n)

	v = evalExpr(t, "[1, 2, 3, 4][item > 2]", nil)
	require.Len(t, v.list, 2)
	assert.Equal(t, float64(3), v.list[0].n)
}

func TestBuiltinFunctions(t *testing.T) {
	v := evalExpr(t, `string_length("hello")`, nil)
	assert.Equal(t, float64(5), v.n)
}

func TestStringConcatenation(t *testing.T) {
	v := evalExpr(t, `"foo" + "bar"`, nil)
	assert.Equal(t, "foobar", v.s)
}

func TestUnknownFunctionErrors(t *testing.T) {
	node, err := Parse("totally_unknown_fn(1)")
	require.NoError(t, err)
	_, err = node.Eval(NewEnv(rulectx.New(nil)))
	require.Error(t, err)
}

func TestTokenizeUnterminatedString(t *testing.T) {
	_, err := Tokenize(`"unterminated`)
	require.Error(t, err)
}

func TestDivisionByZeroIsNullNotError(t *testing.T) {
	v := evalExpr(t, "1 / 0", nil)
	assert.Equal(t, KindNull, v.Kind())
}

func TestDecisionTreeEvaluate(t *testing.T) {
	root := &TreeNode{
		Condition: "risk_score > 80",
		Children: []*TreeNode{
			{Decision: "deny", Weight: 0.9, Reason: "high risk"},
			{Decision: "approve", Weight: 1, Reason: "low risk"},
		},
	}
	tree := NewDecisionTree("risk-tree", root)
	require.NoError(t, tree.Validate())

	ctx := rulectx.New(map[string]any{"risk_score": float64(95)})
	eval, err := tree.Evaluate(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, "deny", eval.Decision())

	ctx2 := rulectx.New(map[string]any{"risk_score": float64(10)})
	eval2, err := tree.Evaluate(ctx2, nil)
	require.NoError(t, err)
	require.NotNil(t, eval2)
	assert.Equal(t, "approve", eval2.Decision())
}

func TestDecisionTreeDefaultChild(t *testing.T) {
	root := &TreeNode{
		Children: []*TreeNode{
			{Condition: "amount > 1000", Decision: "escalate"},
			{Decision: "standard"},
		},
	}
	tree := NewDecisionTree("amount-tree", root)
	ctx := rulectx.New(map[string]any{"amount": float64(5)})
	eval, err := tree.Evaluate(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, "standard", eval.Decision())
}

func TestDecisionTreeValidateSurfacesParseError(t *testing.T) {
	root := &TreeNode{Condition: "this is not valid feel ((("}
	tree := NewDecisionTree("broken", root)
	assert.Error(t, tree.Validate())
}

func TestUnaryMinusFoldsToNegativeLiteral(t *testing.T) {
	node, err := Parse("- 3")
	require.NoError(t, err)
	num, ok := node.(NumberNode)
	require.True(t, ok, "expected a folded NumberNode, got %T", node)
	assert.Equal(t, float64(-3), num.Value)

	v := evalExpr(t, "1 + -2", nil)
	assert.Equal(t, float64(-1), v.n)
}

func TestUnaryMinusOnFieldIsSubtraction(t *testing.T) {
	node, err := Parse("-amount")
	require.NoError(t, err)
	_, ok := node.(ArithmeticNode)
	require.True(t, ok, "expected an ArithmeticNode, got %T", node)

	v := evalExpr(t, "-amount", map[string]any{"amount": float64(7)})
	assert.Equal(t, float64(-7), v.n)
}

func TestQuantifiedNodeShape(t *testing.T) {
	node, err := Parse("every x in [1, 2] satisfies x > 0")
	require.NoError(t, err)
	q, ok := node.(QuantifiedNode)
	require.True(t, ok)
	assert.Equal(t, QuantifierEvery, q.Quantifier)
	assert.Equal(t, "x", q.Var)
}

func TestNumberBuiltinParsesNumericStrings(t *testing.T) {
	v := evalExpr(t, `number("42")`, nil)
	assert.Equal(t, float64(42), v.n)

	v = evalExpr(t, `number("not a number at all")`, nil)
	assert.Equal(t, KindNull, v.Kind())
}

func TestParseErrorReportsPosition(t *testing.T) {
	_, err := Tokenize("amount @ 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos 7")
}

func TestContextLiteral(t *testing.T) {
	v := evalExpr(t, `{score: 10, "label": "hi"}`, nil)
	require.Equal(t, KindContext, v.Kind())
	assert.Equal(t, float64(10), v.ctx["score"].n)
	assert.Equal(t, "hi", v.ctx["label"].s)
}

func TestFilterByIndex(t *testing.T) {
	v := evalExpr(t, "[10, 20, 30][2]", nil)
	assert.Equal(t, float64(20), v.n)

	v = evalExpr(t, "[10, 20, 30][-1]", nil)
	assert.Equal(t, float64(30), v.n)
}

func TestTokenizeRangeDots(t *testing.T) {
	tokens, err := Tokenize("1..4")
	require.NoError(t, err)
	// number, dotdot, number, EOF
	require.Len(t, tokens, 4)
	assert.Equal(t, TokenNumber, tokens[0].Kind)
	assert.Equal(t, "1", tokens[0].Text)
	assert.Equal(t, TokenDotDot, tokens[1].Kind)
	assert.Equal(t, TokenNumber, tokens[2].Kind)
	assert.Equal(t, "4", tokens[2].Text)
}

func TestTokenizeFractionBeforeRange(t *testing.T) {
	tokens, err := Tokenize("1.5..9")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, "1.5", tokens[0].Text)
	assert.Equal(t, TokenDotDot, tokens[1].Kind)
	assert.Equal(t, "9", tokens[2].Text)
}

func TestInBareRange(t *testing.T) {
	assert.True(t, evalExpr(t, "5 in 1..10", nil).Truthy())
	assert.False(t, evalExpr(t, "15 in 1..10", nil).Truthy())
	assert.True(t, evalExpr(t, "amount in 1..10", map[string]any{"amount": float64(3)}).Truthy())
}
