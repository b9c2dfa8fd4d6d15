package xpath

import (
	"strconv"
	"strings"
)

// Expr is a parsed expression tree node.
type Expr interface {
	String() string
	expr()
}

// Op is a binary operator.
type Op int

const (
	OpOr Op = iota
	OpAnd
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpUnion
)

var opNames = [...]string{"or", "and", "=", "!=", "<", "<=", ">", ">=", "+", "-", "*", "div", "mod", "|"}

func (o Op) String() string { return opNames[o] }

// Axis is a location step axis.
type Axis int

const (
	AxisChild Axis = iota
	AxisParent
	AxisSelf
	AxisAttribute
	AxisDescendant
	AxisDescendantOrSelf
	AxisAncestor
	AxisAncestorOrSelf
	AxisFollowingSibling
	AxisPrecedingSibling
)

var axisNames = [...]string{
	"child", "parent", "self", "attribute", "descendant", "descendant-or-self",
	"ancestor", "ancestor-or-self", "following-sibling", "preceding-sibling",
}

func (a Axis) String() string { return axisNames[a] }

func lookupAxis(name string) (Axis, bool) {
	for i, n := range axisNames {
		if n == name {
			return Axis(i), true
		}
	}
	return 0, false
}

// TestKind distinguishes node tests.
type TestKind int

const (
	TestName     TestKind = iota // name or prefix:name
	TestWildcard                 // *
	TestPrefix                   // prefix:*
	TestNode                     // node()
)

// NodeTest selects nodes on an axis.
type NodeTest struct {
	Kind TestKind
	Name string // qualified name for TestName, prefix for TestPrefix
}

func (t NodeTest) String() string {
	switch t.Kind {
	case TestWildcard:
		return "*"
	case TestPrefix:
		return t.Name + ":*"
	case TestNode:
		return "node()"
	}
	return t.Name
}

// Step is one location step.
type Step struct {
	Axis       Axis
	Test       NodeTest
	Predicates []Expr
}

func (s Step) String() string {
	var b strings.Builder
	switch {
	case s.Axis == AxisSelf && s.Test.Kind == TestNode && len(s.Predicates) == 0:
		return "."
	case s.Axis == AxisParent && s.Test.Kind == TestNode && len(s.Predicates) == 0:
		return ".."
	case s.Axis == AxisAttribute:
		b.WriteString("@")
	case s.Axis != AxisChild:
		b.WriteString(s.Axis.String())
		b.WriteString("::")
	}
	b.WriteString(s.Test.String())
	for _, p := range s.Predicates {
		b.WriteString("[")
		b.WriteString(p.String())
		b.WriteString("]")
	}
	return b.String()
}

// BinaryExpr applies Op to two operands.
type BinaryExpr struct {
	Op          Op
	Left, Right Expr
}

// NegExpr is unary minus.
type NegExpr struct {
	X Expr
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// StringLit is a string literal.
type StringLit struct {
	Value string
}

// Call is a function call. Arguments are kept unevaluated so functions
// like if() can evaluate them lazily.
type Call struct {
	Name string
	Args []Expr
	Pos  int
}

// FilterExpr is a primary expression with predicates.
type FilterExpr struct {
	Primary    Expr
	Predicates []Expr
}

// PathExpr is a location path, optionally rooted at a filter expression.
// With Filter nil the path is absolute or relative to the context node.
type PathExpr struct {
	Filter   Expr
	Absolute bool
	Steps    []Step
}

func (*BinaryExpr) expr() {}
func (*NegExpr) expr()    {}
func (*NumberLit) expr()  {}
func (*StringLit) expr()  {}
func (*Call) expr()       {}
func (*FilterExpr) expr() {}
func (*PathExpr) expr()   {}

func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *NegExpr) String() string { return "-" + e.X.String() }

func (e *NumberLit) String() string { return FormatNumber(e.Value) }

func (e *StringLit) String() string {
	if strings.Contains(e.Value, "'") {
		return `"` + e.Value + `"`
	}
	return "'" + e.Value + "'"
}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Name + "(" + strings.Join(args, ", ") + ")"
}

func (e *FilterExpr) String() string {
	var b strings.Builder
	b.WriteString(e.Primary.String())
	for _, p := range e.Predicates {
		b.WriteString("[" + p.String() + "]")
	}
	return b.String()
}

func (e *PathExpr) String() string {
	var b strings.Builder
	if e.Filter != nil {
		b.WriteString(e.Filter.String())
	}
	for i, s := range e.Steps {
		if i > 0 || e.Absolute || e.Filter != nil {
			b.WriteString("/")
		}
		b.WriteString(s.String())
	}
	if e.Absolute && len(e.Steps) == 0 {
		b.WriteString("/")
	}
	return b.String()
}

// literalPosition returns the position a predicate selects when it is a
// plain integer literal such as [2].
func literalPosition(pred Expr) (int, bool) {
	n, ok := pred.(*NumberLit)
	if !ok || n.Value < 1 || n.Value != float64(int(n.Value)) {
		return 0, false
	}
	return int(n.Value), true
}

func itoa(n int) string { return strconv.Itoa(n) }

// Walk visits e and every sub-expression in depth-first order, including
// predicates. fn returning false prunes the subtree.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *BinaryExpr:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case *NegExpr:
		Walk(x.X, fn)
	case *Call:
		for _, a := range x.Args {
			Walk(a, fn)
		}
	case *FilterExpr:
		Walk(x.Primary, fn)
		for _, p := range x.Predicates {
			Walk(p, fn)
		}
	case *PathExpr:
		Walk(x.Filter, fn)
		for _, s := range x.Steps {
			for _, p := range s.Predicates {
				Walk(p, fn)
			}
		}
	}
}
