package feel

import (
	"fmt"

	"github.com/kestrelrules/decisioncore/evalmodel"
	"github.com/kestrelrules/decisioncore/rulectx"
)

// TreeNode is one node of the optional decision-tree evaluator. A leaf
// (no Children) yields Decision/Weight/Reason directly; an inner node
// selects among its Children by their Condition (a FEEL expression
// source, parsed lazily on first use and cached) or falls through to a
// single condition-less default child.
type TreeNode struct {
	Condition string
	Decision  string
	Weight    float64
	Reason    string
	Children  []*TreeNode

	compiled Node
}

func (n *TreeNode) compile() (Node, error) {
	if n.Condition == "" {
		return nil, nil
	}
	if n.compiled != nil {
		return n.compiled, nil
	}
	node, err := Parse(n.Condition)
	if err != nil {
		return nil, err
	}
	n.compiled = node
	return node, nil
}

func (n *TreeNode) isLeaf() bool { return len(n.Children) == 0 }

// DecisionTree wraps a root TreeNode as an evaluator: evaluate(context,
// feedback) -> Evaluation?.
type DecisionTree struct {
	name string
	root *TreeNode
}

// NewDecisionTree builds a named decision-tree evaluator.
func NewDecisionTree(name string, root *TreeNode) *DecisionTree {
	return &DecisionTree{name: name, root: root}
}

func (t *DecisionTree) Name() string { return t.name }

// Evaluate walks the tree from the root and returns the Evaluation at
// the leaf it settles on, or (nil, nil) if traversal dead-ends (no
// matching conditioned child and no default at some inner node).
func (t *DecisionTree) Evaluate(ctx *rulectx.Context, feedback map[string]any) (*evalmodel.Evaluation, error) {
	env := NewEnv(ctx)
	leaf, ok, err := walkTree(t.root, env)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	metadata := map[string]any{
		"type": "decision_tree",
	}
	return evalmodel.New(leaf.Decision, leaf.Weight, leaf.Reason, t.name, metadata)
}

// walkTree descends from node until it reaches a leaf, returning that
// leaf and whether traversal successfully resolved one.
func walkTree(node *TreeNode, env *Env) (*TreeNode, bool, error) {
	if node == nil {
		return nil, false, nil
	}
	if node.isLeaf() {
		return node, true, nil
	}

	// Special case: an inner node whose children are all
	// condition-less leaves is an implicit if/then/else keyed off this
	// node's own Condition: the first leaf is the true branch, the
	// second is the false branch, rather than the first-default-wins
	// rule that would otherwise make the second leaf unreachable.
	if allConditionlessLeaves(node.Children) && len(node.Children) >= 2 && node.Condition != "" {
		cond, err := node.compile()
		if err != nil {
			return nil, false, err
		}
		v, err := cond.Eval(env)
		if err != nil {
			// An evaluation error during traversal skips this branch,
			// not the whole tree.
			return nil, false, nil
		}
		if v.Truthy() {
			return node.Children[0], true, nil
		}
		return node.Children[1], true, nil
	}

	var defaultChild *TreeNode
	for _, child := range node.Children {
		if child.Condition == "" {
			if defaultChild == nil {
				defaultChild = child
			}
			continue
		}
		cond, err := child.compile()
		if err != nil {
			return nil, false, err
		}
		v, err := cond.Eval(env)
		if err != nil {
			// Skip this conditioned branch on evaluation error; keep
			// trying siblings.
			continue
		}
		if v.Truthy() {
			return walkTree(child, env)
		}
	}
	if defaultChild != nil {
		return walkTree(defaultChild, env)
	}
	return nil, false, nil
}

func allConditionlessLeaves(children []*TreeNode) bool {
	for _, c := range children {
		if c.Condition != "" || !c.isLeaf() {
			return false
		}
	}
	return true
}

// Validate recursively compiles every conditioned node's expression,
// surfacing parse errors before the tree is ever evaluated against
// live traffic.
func (t *DecisionTree) Validate() error {
	return validateNode(t.root)
}

func validateNode(n *TreeNode) error {
	if n == nil {
		return nil
	}
	if n.Condition != "" {
		if _, err := n.compile(); err != nil {
			return fmt.Errorf("feel: decision tree node condition: %w", err)
		}
	}
	for _, c := range n.Children {
		if err := validateNode(c); err != nil {
			return err
		}
	}
	return nil
}
