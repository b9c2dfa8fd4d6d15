package instance

import (
	"strconv"
	"strings"

	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Kind is the closed set of node variants.
type Kind string

const (
	KindRoot      Kind = "root"
	KindGroup     Kind = "group"
	KindRange     Kind = "repeat"
	KindInstance  Kind = "repeat-instance"
	KindLeaf      Kind = "leaf"
	KindAttribute Kind = "attribute"
)

// State is the computed, non-value part of a node's state.
type State struct {
	Relevant bool
	Readonly bool
	Required bool
	Valid    bool
	Label    string
	Hint     string
}

// DefaultState is the state of a node no bind has touched yet.
var DefaultState = State{Relevant: true, Valid: true}

// Node is one node of a document. The zero value is not usable; nodes are
// created by New and by repeat growth.
type Node struct {
	kind     Kind
	name     string
	def      *ir.NodeDef
	parent   *Node
	children []*Node
	attrs    []*Node
	value    string
	state    State
}

func (n *Node) Kind() Kind { return n.kind }

// Name is the element name; repeat instances share their range's name and
// attributes carry no "@".
func (n *Node) Name() string { return n.name }

// Def returns the template the node was built from; nil for the root and
// for secondary instance nodes.
func (n *Node) Def() *ir.NodeDef { return n.def }

// Parent returns the structural parent. Repeat instances return their
// range. The root returns nil.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the structural children in document order.
func (n *Node) Children() []*Node { return n.children }

func (n *Node) Attributes() []*Node { return n.attrs }

// Value is the raw value of a leaf or attribute; empty for other kinds.
func (n *Node) Value() string { return n.value }

func (n *Node) State() State { return n.state }

// SetState replaces the computed state and reports whether it changed.
func (n *Node) SetState(s State) bool {
	if n.state == s {
		return false
	}
	n.state = s
	return true
}

// Assign sets a leaf's value without the checks Document.SetValue applies.
// The engine uses it to commit calculated values. It reports whether the
// value changed.
func (n *Node) Assign(v string) bool {
	if n.value == v {
		return false
	}
	n.value = v
	return true
}

// Position is the 1-based index of a repeat instance within its range;
// 0 for every other kind.
func (n *Node) Position() int {
	if n.kind != KindInstance {
		return 0
	}
	for i, c := range n.parent.children {
		if c == n {
			return i + 1
		}
	}
	return 0
}

// Ref derives the node's reference from its parent chain.
func (n *Node) Ref() ir.Reference {
	var steps []string
	for c := n; c.parent != nil; c = c.parent {
		switch c.kind {
		case KindInstance:
			steps = append(steps, c.name+"["+strconv.Itoa(c.Position())+"]")
			c = c.parent // skip the range step
		case KindAttribute:
			steps = append(steps, "@"+c.name)
		default:
			steps = append(steps, c.name)
		}
	}
	if len(steps) == 0 {
		return ir.RootReference
	}
	var b strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(steps[i])
	}
	return ir.Reference(b.String())
}

// StepNames returns the element names from the root down to n, the context
// path bind analysis is expressed in.
func (n *Node) StepNames() []string {
	var names []string
	for c := n; c.parent != nil; c = c.parent {
		if c.kind == KindInstance {
			c = c.parent
		}
		name := c.name
		if c.kind == KindAttribute {
			name = "@" + name
		}
		names = append(names, name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// Snapshot returns the node's current computed state.
func (n *Node) Snapshot() ir.NodeSnapshot {
	return ir.NodeSnapshot{
		Ref:      n.Ref(),
		Kind:     string(n.kind),
		Value:    n.value,
		Relevant: n.state.Relevant,
		Readonly: n.state.Readonly,
		Required: n.state.Required,
		Valid:    n.state.Valid,
		Label:    n.state.Label,
		Hint:     n.state.Hint,
	}
}

// xpath.Node view

func (n *Node) NodeType() xpath.NodeType {
	switch n.kind {
	case KindRoot:
		return xpath.DocumentNode
	case KindAttribute:
		return xpath.AttributeNode
	}
	return xpath.ElementNode
}

func (n *Node) NodeName() string {
	if n.kind == KindRoot {
		return ""
	}
	return n.name
}

// ParentNode skips repeat ranges. It returns an untyped nil for the root so
// evaluator nil checks hold.
func (n *Node) ParentNode() xpath.Node {
	p := n.parent
	if p != nil && p.kind == KindRange {
		p = p.parent
	}
	if p == nil {
		return nil
	}
	return p
}

// ChildNodes flattens repeat ranges into their instances.
func (n *Node) ChildNodes() []xpath.Node {
	if len(n.children) == 0 {
		return nil
	}
	out := make([]xpath.Node, 0, len(n.children))
	for _, c := range n.children {
		if c.kind == KindRange {
			for _, inst := range c.children {
				out = append(out, inst)
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func (n *Node) AttributeNodes() []xpath.Node {
	if len(n.attrs) == 0 {
		return nil
	}
	out := make([]xpath.Node, len(n.attrs))
	for i, a := range n.attrs {
		out[i] = a
	}
	return out
}

func (n *Node) StringValue() string {
	switch n.kind {
	case KindLeaf, KindAttribute:
		return n.value
	}
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *Node) writeText(b *strings.Builder) {
	if n.kind == KindLeaf {
		b.WriteString(n.value)
		return
	}
	for _, c := range n.children {
		c.writeText(b)
	}
}

// build instantiates def's subtree under parent with default state and
// template default values.
func build(def *ir.NodeDef, kind Kind, parent *Node) *Node {
	n := &Node{kind: kind, name: def.Name, def: def, parent: parent, state: DefaultState}
	if kind == KindLeaf {
		n.value = def.Default
	}
	if kind != KindRange {
		for _, a := range def.Attributes {
			n.attrs = append(n.attrs, &Node{
				kind:   KindAttribute,
				name:   a.Name,
				parent: n,
				value:  a.Value,
				state:  DefaultState,
			})
		}
	}
	switch kind {
	case KindRange:
		for i := 0; i < def.Count; i++ {
			n.children = append(n.children, build(def, KindInstance, n))
		}
	case KindGroup, KindInstance:
		for i := range def.Children {
			c := &def.Children[i]
			n.children = append(n.children, build(c, kindOf(c), n))
		}
	}
	return n
}

func kindOf(def *ir.NodeDef) Kind {
	switch def.Kind {
	case ir.KindRepeat:
		return KindRange
	case ir.KindLeaf:
		return KindLeaf
	}
	return KindGroup
}
