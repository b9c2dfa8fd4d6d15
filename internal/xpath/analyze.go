package xpath

import (
	"slices"
	"strconv"
	"strings"
)

// Pin says which positions of a repeated step a reference can reach.
type Pin int

const (
	// PinAny reaches every node with the step's name.
	PinAny Pin = iota
	// PinContext reaches only the node on the consumer's own ancestor path,
	// i.e. the same repeat instance the consumer lives in.
	PinContext
	// PinLiteral reaches only the node at RefStep.Pos.
	PinLiteral
)

// RefStep is one named step of a statically resolved reference.
type RefStep struct {
	Name string
	Pin  Pin
	Pos  int
}

// PathRef is a document location an expression reads, resolved against the
// expression's context at analysis time.
//
// Instance names the secondary source for reads through instance('id');
// empty means the primary document. Deep marks a reference that continues
// through an unnamed or descendant step: it covers the whole subtree below
// Steps. Shallow marks a read of node existence or position only (count(),
// position(), name(), boolean()), not of the nodes' values.
type PathRef struct {
	Instance string
	Steps    []RefStep
	Deep     bool
	Shallow  bool
}

// Pattern returns the step names as an instance-independent path,
// e.g. "/data/rep/x". The document root is "".
func (r PathRef) Pattern() string {
	var b strings.Builder
	for _, s := range r.Steps {
		b.WriteByte('/')
		b.WriteString(s.Name)
	}
	return b.String()
}

func (r PathRef) String() string {
	var b strings.Builder
	if r.Instance != "" {
		b.WriteString("instance('" + r.Instance + "')")
	}
	for _, s := range r.Steps {
		b.WriteByte('/')
		b.WriteString(s.Name)
		switch s.Pin {
		case PinContext:
			b.WriteString("[.]")
		case PinLiteral:
			b.WriteString("[" + strconv.Itoa(s.Pos) + "]")
		}
	}
	if r.Deep {
		b.WriteString("//*")
	} else if b.Len() == 0 {
		b.WriteByte('/')
	}
	return b.String()
}

func (r PathRef) key() string {
	if r.Shallow {
		return r.String() + "#shallow"
	}
	return r.String()
}

func (r PathRef) clone() PathRef {
	r.Steps = slices.Clone(r.Steps)
	return r
}

func (r PathRef) child(name string) PathRef {
	c := r.clone()
	c.Steps = append(c.Steps, RefStep{Name: name})
	return c
}

func (r PathRef) parent() PathRef {
	c := r.clone()
	if len(c.Steps) > 0 {
		c.Steps = c.Steps[:len(c.Steps)-1]
	}
	return c
}

func (r PathRef) deep() PathRef {
	c := r.clone()
	c.Deep = true
	return c
}

func (r PathRef) pinLast(pos int) PathRef {
	c := r.clone()
	if n := len(c.Steps); n > 0 {
		c.Steps[n-1].Pin = PinLiteral
		c.Steps[n-1].Pos = pos
	}
	return c
}

// ancestor truncates r to its nearest ancestor step matching test.
// Without a match the reference widens to the document root.
func (r PathRef) ancestor(test NodeTest, orSelf bool) PathRef {
	limit := len(r.Steps) - 1
	if orSelf {
		limit = len(r.Steps)
	}
	c := r.clone()
	for i := limit - 1; i >= 0; i-- {
		if test.Kind != TestName || r.Steps[i].Name == test.Name {
			c.Steps = c.Steps[:i+1]
			return c
		}
	}
	c.Steps = nil
	return c
}

// Analyze returns the locations expr reads when evaluated with the node at
// context as its context node (and as current()). context lists the step
// names from the document root; those steps are pinned to the consumer.
//
// Intermediate path steps are navigation, not reads; predicates are read
// relative to the nodes they filter; absolute paths always address the
// primary document, also inside predicates over a secondary instance.
func Analyze(expr Expr, context []string) []PathRef {
	base := PathRef{}
	for _, name := range context {
		base.Steps = append(base.Steps, RefStep{Name: name, Pin: PinContext})
	}
	a := &analyzer{base: base, seen: make(map[string]bool)}
	a.visit(expr, base)
	return a.refs
}

type analyzer struct {
	base PathRef
	refs []PathRef
	seen map[string]bool
}

// shallowFunctions only look at node identity or position of their
// node-set arguments.
var shallowFunctions = map[string]bool{
	"count": true, "position": true, "name": true, "local-name": true,
	"boolean": true, "not": true,
}

func (a *analyzer) record(p PathRef, shallow bool) {
	p = p.clone()
	p.Shallow = shallow
	if a.seen[p.key()] {
		return
	}
	a.seen[p.key()] = true
	a.refs = append(a.refs, p)
}

func (a *analyzer) visit(e Expr, from PathRef) {
	switch x := e.(type) {
	case *NegExpr:
		a.visit(x.X, from)
	case *BinaryExpr:
		if x.Op == OpUnion {
			for _, p := range a.paths(e, from) {
				a.record(p, false)
			}
			return
		}
		a.visit(x.Left, from)
		a.visit(x.Right, from)
	case *Call:
		if x.Name == "current" || x.Name == "instance" {
			for _, p := range a.paths(e, from) {
				a.record(p, false)
			}
			return
		}
		for _, arg := range x.Args {
			if shallowFunctions[x.Name] && isNodeSetExpr(arg) {
				for _, p := range a.paths(arg, from) {
					a.record(p, true)
				}
				continue
			}
			a.visit(arg, from)
		}
	case *PathExpr, *FilterExpr:
		for _, p := range a.paths(e, from) {
			a.record(p, false)
		}
	}
}

func isNodeSetExpr(e Expr) bool {
	switch x := e.(type) {
	case *PathExpr, *FilterExpr:
		return true
	case *BinaryExpr:
		return x.Op == OpUnion
	case *Call:
		return x.Name == "current" || x.Name == "instance"
	}
	return false
}

// paths returns the locations a node-set expression selects. Reads made
// along the way (predicates, function arguments) are recorded.
func (a *analyzer) paths(e Expr, from PathRef) []PathRef {
	switch x := e.(type) {
	case *PathExpr:
		var starts []PathRef
		switch {
		case x.Filter != nil:
			starts = a.paths(x.Filter, from)
		case x.Absolute:
			starts = []PathRef{{}}
		default:
			starts = []PathRef{from}
		}
		for _, st := range x.Steps {
			next := make([]PathRef, 0, len(starts))
			for _, p := range starts {
				next = append(next, a.step(p, st))
			}
			starts = next
		}
		return starts
	case *FilterExpr:
		ps := a.paths(x.Primary, from)
		for _, p := range ps {
			for _, pred := range x.Predicates {
				a.visit(pred, p)
			}
		}
		return ps
	case *BinaryExpr:
		if x.Op == OpUnion {
			return append(a.paths(x.Left, from), a.paths(x.Right, from)...)
		}
	case *Call:
		switch x.Name {
		case "current":
			return []PathRef{a.base}
		case "instance":
			if len(x.Args) == 1 {
				if lit, ok := x.Args[0].(*StringLit); ok {
					return []PathRef{{Instance: lit.Value}}
				}
			}
			// A computed source cannot be resolved statically; only the
			// reads inside the argument count.
			for _, arg := range x.Args {
				a.visit(arg, from)
			}
			return nil
		}
	}
	a.visit(e, from)
	return nil
}

func (a *analyzer) step(p PathRef, st Step) PathRef {
	out := p
	if !p.Deep {
		switch st.Axis {
		case AxisSelf:
		case AxisParent:
			out = p.parent()
		case AxisChild, AxisAttribute:
			if st.Test.Kind != TestName {
				out = p.deep()
				break
			}
			name := st.Test.Name
			if st.Axis == AxisAttribute {
				name = "@" + name
			}
			out = p.child(name)
		case AxisDescendant, AxisDescendantOrSelf:
			out = p.deep()
		case AxisAncestor, AxisAncestorOrSelf:
			out = p.ancestor(st.Test, st.Axis == AxisAncestorOrSelf)
		case AxisFollowingSibling, AxisPrecedingSibling:
			if st.Test.Kind == TestName {
				out = p.parent().child(st.Test.Name)
			} else {
				out = p.parent().deep()
			}
		}
	}

	for i, pred := range st.Predicates {
		if pos, ok := literalPosition(pred); ok && i == 0 && st.Axis == AxisChild && !out.Deep {
			out = out.pinLast(pos)
			continue
		}
		a.visit(pred, out)
	}
	return out
}
