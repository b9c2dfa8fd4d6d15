package bind

import (
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Attr names one computed attribute of a bind.
type Attr string

const (
	AttrRelevant   Attr = "relevant"
	AttrReadonly   Attr = "readonly"
	AttrRequired   Attr = "required"
	AttrCalculate  Attr = "calculate"
	AttrConstraint Attr = "constraint"
	AttrLabel      Attr = "label"
	AttrHint       Attr = "hint"
)

// Attrs lists the attributes in the order a unit evaluates them. Relevance
// comes first since it decides whether the rest run at all. The constraint
// follows calculate so it judges the value committed in the same pass.
var Attrs = []Attr{
	AttrRelevant, AttrReadonly, AttrRequired, AttrCalculate,
	AttrConstraint, AttrLabel, AttrHint,
}

// selfReading reports whether a may read its own node without forming a
// cycle. A constraint like ". > 0" judges the value; it does not produce it.
func (a Attr) selfReading() bool {
	return a == AttrConstraint || a == AttrLabel || a == AttrHint
}

// Expressions is the expression text of one declared bind.
// Empty strings are absent.
type Expressions struct {
	Calculate  string
	Relevant   string
	Readonly   string
	Required   string
	Constraint string
}

func (e Expressions) byAttr() map[Attr]string {
	return map[Attr]string{
		AttrCalculate:  e.Calculate,
		AttrRelevant:   e.Relevant,
		AttrReadonly:   e.Readonly,
		AttrRequired:   e.Required,
		AttrConstraint: e.Constraint,
	}
}

// Expression is one parsed attribute expression.
type Expression struct {
	Attr   Attr
	Source string
	Tree   xpath.Expr
}

// Dependency is one location an entry's expression reads.
type Dependency struct {
	Attr Attr
	xpath.PathRef
}

// Entry is the bind unit for one template node.
type Entry struct {
	// Nodeset is the pattern the entry applies to.
	Nodeset ir.Reference

	// Type is the declared data type; empty means string.
	Type string

	// Implicit is true for entries synthesized by FillGaps.
	Implicit bool

	// Def is the template node, set by FillGaps.
	Def *ir.NodeDef

	// Deps is the union of the expressions' reads, set by Analyze.
	Deps []Dependency

	exprs  map[Attr]*Expression
	parent *Entry
	rank   int
}

// Expr returns the parsed expression for a, or nil when absent.
func (e *Entry) Expr(a Attr) xpath.Expr {
	if x, ok := e.exprs[a]; ok {
		return x.Tree
	}
	return nil
}

// Source returns the expression text for a, or "" when absent.
func (e *Entry) Source(a Attr) string {
	if x, ok := e.exprs[a]; ok {
		return x.Source
	}
	return ""
}

// Kind is the template node kind.
func (e *Entry) Kind() ir.NodeKind {
	if e.Def == nil {
		return ""
	}
	return e.Def.Kind
}

// Parent returns the entry of the parent template node, nil for the
// instance root element.
func (e *Entry) Parent() *Entry { return e.parent }

// Rank is the entry's position in the evaluation order.
func (e *Entry) Rank() int { return e.rank }

func (e *Entry) calculated() bool { return e.Expr(AttrCalculate) != nil }

// encloses reports whether d is a strict descendant of e.
func (e *Entry) encloses(d *Entry) bool {
	for a := d.parent; a != nil; a = a.parent {
		if a == e {
			return true
		}
	}
	return false
}

// Context returns the step names of the nodeset, the static context
// expressions are analyzed in.
func (e *Entry) Context() []string {
	steps := e.Nodeset.Steps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func (e *Entry) set(a Attr, src string) error {
	if src == "" {
		return nil
	}
	tree, err := xpath.Parse(src)
	if err != nil {
		return &RegistrationError{Nodeset: string(e.Nodeset), Attr: a, Message: "cannot parse expression", Err: err}
	}
	if e.exprs == nil {
		e.exprs = make(map[Attr]*Expression)
	}
	e.exprs[a] = &Expression{Attr: a, Source: src, Tree: tree}
	return nil
}
