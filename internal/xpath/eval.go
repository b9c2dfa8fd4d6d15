package xpath

import (
	"math"
)

// InstanceResolver looks up named secondary documents for instance('id').
// It returns the document node of the named source.
type InstanceResolver interface {
	ResolveInstance(id string) (Node, bool)
}

// TextResolver looks up translated text for jr:itext('id') in the active
// language.
type TextResolver interface {
	ResolveText(id string) (string, bool)
}

// Context is the dynamic evaluation context.
//
// Node is the context node. Current is the node current() returns; it
// defaults to Node. Root is the primary document node that absolute paths
// start from, even inside predicates over a secondary instance; it defaults
// to Node's document. Position and Size default to 1.
type Context struct {
	Node      Node
	Position  int
	Size      int
	Current   Node
	Root      Node
	Instances InstanceResolver
	Texts     TextResolver
}

func (c Context) with(n Node, pos, size int) Context {
	c.Node, c.Position, c.Size = n, pos, size
	return c
}

// Evaluate evaluates expr in ctx. Evaluation never modifies the document.
// Failures are *EvalError values.
func Evaluate(expr Expr, ctx Context) (Value, error) {
	if ctx.Node == nil {
		return nil, &EvalError{Code: ErrCodeType, Message: "no context node"}
	}
	if ctx.Current == nil {
		ctx.Current = ctx.Node
	}
	if ctx.Root == nil {
		ctx.Root = documentOf(ctx.Node)
	}
	if ctx.Position == 0 {
		ctx.Position = 1
	}
	if ctx.Size == 0 {
		ctx.Size = 1
	}
	return eval(expr, ctx)
}

// EvaluateString, EvaluateNumber and EvaluateBoolean evaluate and convert.

func EvaluateString(expr Expr, ctx Context) (string, error) {
	v, err := Evaluate(expr, ctx)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

func EvaluateNumber(expr Expr, ctx Context) (float64, error) {
	v, err := Evaluate(expr, ctx)
	if err != nil {
		return math.NaN(), err
	}
	return ToNumber(v), nil
}

func EvaluateBoolean(expr Expr, ctx Context) (bool, error) {
	v, err := Evaluate(expr, ctx)
	if err != nil {
		return false, err
	}
	return ToBoolean(v), nil
}

func eval(e Expr, ctx Context) (Value, error) {
	switch x := e.(type) {
	case *NumberLit:
		return Number(x.Value), nil
	case *StringLit:
		return String(x.Value), nil
	case *NegExpr:
		v, err := eval(x.X, ctx)
		if err != nil {
			return nil, err
		}
		return Number(-ToNumber(v)), nil
	case *BinaryExpr:
		return evalBinary(x, ctx)
	case *Call:
		return callFunction(x, ctx)
	case *FilterExpr:
		v, err := eval(x.Primary, ctx)
		if err != nil {
			return nil, err
		}
		set, ok := v.(NodeSet)
		if !ok {
			return nil, &EvalError{Code: ErrCodeType, Message: "predicates require a node-set"}
		}
		return applyPredicates(sortDocumentOrder(set), x.Predicates, ctx)
	case *PathExpr:
		return evalPath(x, ctx)
	}
	return nil, &EvalError{Code: ErrCodeType, Message: "unsupported expression"}
}

func evalBinary(x *BinaryExpr, ctx Context) (Value, error) {
	left, err := eval(x.Left, ctx)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case OpOr:
		if ToBoolean(left) {
			return Boolean(true), nil
		}
		right, err := eval(x.Right, ctx)
		if err != nil {
			return nil, err
		}
		return Boolean(ToBoolean(right)), nil
	case OpAnd:
		if !ToBoolean(left) {
			return Boolean(false), nil
		}
		right, err := eval(x.Right, ctx)
		if err != nil {
			return nil, err
		}
		return Boolean(ToBoolean(right)), nil
	}

	right, err := eval(x.Right, ctx)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return Boolean(compareValues(x.Op, left, right)), nil
	case OpUnion:
		ls, lok := left.(NodeSet)
		rs, rok := right.(NodeSet)
		if !lok || !rok {
			return nil, &EvalError{Code: ErrCodeType, Message: "union operands must be node-sets"}
		}
		merged := make(NodeSet, 0, len(ls)+len(rs))
		merged = append(merged, ls...)
		merged = append(merged, rs...)
		return sortDocumentOrder(merged), nil
	}

	a, b := ToNumber(left), ToNumber(right)
	switch x.Op {
	case OpAdd:
		return Number(a + b), nil
	case OpSub:
		return Number(a - b), nil
	case OpMul:
		return Number(a * b), nil
	case OpDiv:
		return Number(a / b), nil
	case OpMod:
		return Number(math.Mod(a, b)), nil
	}
	return nil, &EvalError{Code: ErrCodeType, Message: "unsupported operator " + x.Op.String()}
}

func evalPath(x *PathExpr, ctx Context) (Value, error) {
	var current NodeSet
	switch {
	case x.Filter != nil:
		v, err := eval(x.Filter, ctx)
		if err != nil {
			return nil, err
		}
		set, ok := v.(NodeSet)
		if !ok {
			return nil, &EvalError{Code: ErrCodeType, Message: "path step applied to a non-node-set"}
		}
		current = set
	case x.Absolute:
		current = NodeSet{ctx.Root}
	default:
		current = NodeSet{ctx.Node}
	}

	for _, step := range x.Steps {
		var next NodeSet
		for _, n := range current {
			matched, err := applyStep(n, step, ctx)
			if err != nil {
				return nil, err
			}
			next = append(next, matched...)
		}
		current = sortDocumentOrder(next)
	}
	if current == nil {
		current = NodeSet{}
	}
	return current, nil
}

// applyStep selects the nodes reached from n by step, in axis order, then
// filters them through the step's predicates.
func applyStep(n Node, step Step, ctx Context) (NodeSet, error) {
	var candidates NodeSet
	for _, c := range axisNodes(n, step.Axis) {
		if matchTest(c, step.Test, step.Axis) {
			candidates = append(candidates, c)
		}
	}
	return applyPredicates(candidates, step.Predicates, ctx)
}

func applyPredicates(set NodeSet, preds []Expr, ctx Context) (NodeSet, error) {
	for _, pred := range preds {
		var kept NodeSet
		for i, n := range set {
			v, err := eval(pred, ctx.with(n, i+1, len(set)))
			if err != nil {
				return nil, err
			}
			if num, ok := v.(Number); ok {
				if float64(num) == float64(i+1) {
					kept = append(kept, n)
				}
				continue
			}
			if ToBoolean(v) {
				kept = append(kept, n)
			}
		}
		set = kept
	}
	return set, nil
}

func matchTest(n Node, test NodeTest, axis Axis) bool {
	if test.Kind == TestNode {
		return true
	}
	principal := ElementNode
	if axis == AxisAttribute {
		principal = AttributeNode
	}
	if n.NodeType() != principal {
		return false
	}
	switch test.Kind {
	case TestWildcard:
		return true
	case TestPrefix:
		return prefixOf(n.NodeName()) == test.Name
	}
	return n.NodeName() == test.Name
}

// axisNodes lists the nodes on axis from n. Reverse axes list the nearest
// node first so predicate positions count outward.
func axisNodes(n Node, axis Axis) []Node {
	switch axis {
	case AxisSelf:
		return []Node{n}
	case AxisChild:
		return n.ChildNodes()
	case AxisAttribute:
		return n.AttributeNodes()
	case AxisParent:
		if p := n.ParentNode(); p != nil {
			return []Node{p}
		}
		return nil
	case AxisDescendant:
		return descendants(n, nil)
	case AxisDescendantOrSelf:
		return descendants(n, []Node{n})
	case AxisAncestor:
		return ancestors(n, nil)
	case AxisAncestorOrSelf:
		return ancestors(n, []Node{n})
	case AxisFollowingSibling, AxisPrecedingSibling:
		p := n.ParentNode()
		if p == nil || n.NodeType() == AttributeNode {
			return nil
		}
		siblings := p.ChildNodes()
		idx := -1
		for i, s := range siblings {
			if s == n {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		if axis == AxisFollowingSibling {
			return siblings[idx+1:]
		}
		out := make([]Node, 0, idx)
		for i := idx - 1; i >= 0; i-- {
			out = append(out, siblings[i])
		}
		return out
	}
	return nil
}

func descendants(n Node, acc []Node) []Node {
	for _, c := range n.ChildNodes() {
		acc = append(acc, c)
		acc = descendants(c, acc)
	}
	return acc
}

func ancestors(n Node, acc []Node) []Node {
	for p := n.ParentNode(); p != nil; p = p.ParentNode() {
		acc = append(acc, p)
	}
	return acc
}
