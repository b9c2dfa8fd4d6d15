package bind

import (
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Registry holds one Entry per template node.
type Registry struct {
	entries   map[ir.Reference]*Entry
	declared  []*Entry // explicit binds, declaration order
	document  []*Entry // every entry, template document order; set by FillGaps
	secondary map[string]bool

	order []*Entry
	edges []Edge
}

// NewRegistry creates an empty registry. secondaryIDs are the instance ids
// expressions may name in instance('id').
func NewRegistry(secondaryIDs ...string) *Registry {
	r := &Registry{
		entries:   make(map[ir.Reference]*Entry),
		secondary: make(map[string]bool, len(secondaryIDs)),
	}
	for _, id := range secondaryIDs {
		r.secondary[id] = true
	}
	return r
}

// Load builds the complete registry for a parsed form.
func Load(form *ir.FormDef) (*Registry, error) {
	r := NewRegistry(form.SecondaryIDs()...)
	for _, b := range form.Binds {
		exprs := Expressions{
			Calculate:  b.Calculate,
			Relevant:   b.Relevant,
			Readonly:   b.Readonly,
			Required:   b.Required,
			Constraint: b.Constraint,
		}
		if err := r.Register(b.Nodeset, exprs, b.Type); err != nil {
			return nil, err
		}
	}
	if err := r.FillGaps(&form.Root); err != nil {
		return nil, err
	}
	if err := r.Analyze(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register declares a bind. Positional predicates in nodeset are ignored:
// the bind applies to every instance of the template node.
func (r *Registry) Register(nodeset string, exprs Expressions, dataType string) error {
	ref, err := ir.ParseReference(nodeset)
	if err != nil {
		return &RegistrationError{Nodeset: nodeset, Message: "invalid nodeset", Err: err}
	}
	ref = ref.Pattern()
	if ref == ir.RootReference {
		return &RegistrationError{Nodeset: nodeset, Message: "cannot bind the document root"}
	}
	if _, dup := r.entries[ref]; dup {
		return &RegistrationError{Nodeset: nodeset, Message: "duplicate bind"}
	}
	if !ir.IsDataType(dataType) {
		return &RegistrationError{Nodeset: nodeset, Message: "unknown data type " + dataType}
	}

	e := &Entry{Nodeset: ref, Type: dataType}
	byAttr := exprs.byAttr()
	for _, a := range Attrs {
		if err := e.set(a, byAttr[a]); err != nil {
			return err
		}
	}
	if err := r.checkInstances(e); err != nil {
		return err
	}
	r.entries[ref] = e
	r.declared = append(r.declared, e)
	return nil
}

// checkInstances rejects literal instance('id') calls naming an undeclared
// secondary instance.
func (r *Registry) checkInstances(e *Entry) error {
	for _, a := range Attrs {
		tree := e.Expr(a)
		if tree == nil {
			continue
		}
		var err error
		xpath.Walk(tree, func(x xpath.Expr) bool {
			c, ok := x.(*xpath.Call)
			if !ok || c.Name != "instance" || len(c.Args) != 1 {
				return err == nil
			}
			if lit, ok := c.Args[0].(*xpath.StringLit); ok && !r.secondary[lit.Value] {
				err = &RegistrationError{
					Nodeset: string(e.Nodeset),
					Attr:    a,
					Message: "unknown secondary instance " + lit.Value,
				}
			}
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FillGaps walks the template from its root element and gives every node
// an entry, synthesizing implicit ones where no bind was declared. Label
// and hint expressions are taken from the template. Declared binds whose
// nodeset matches no template node are rejected.
func (r *Registry) FillGaps(root *ir.NodeDef) error {
	r.document = r.document[:0]
	var fill func(def *ir.NodeDef, ref ir.Reference, parent *Entry) error
	fill = func(def *ir.NodeDef, ref ir.Reference, parent *Entry) error {
		e, ok := r.entries[ref]
		if !ok {
			e = &Entry{Nodeset: ref, Implicit: true}
			r.entries[ref] = e
		}
		e.Def = def
		e.parent = parent
		if def.Kind != ir.KindLeaf && e.Expr(AttrCalculate) != nil {
			return &RegistrationError{Nodeset: string(ref), Attr: AttrCalculate, Message: "calculate on a non-leaf node"}
		}
		if err := e.set(AttrLabel, def.Label); err != nil {
			return err
		}
		if err := e.set(AttrHint, def.Hint); err != nil {
			return err
		}
		if err := r.checkInstances(e); err != nil {
			return err
		}
		r.document = append(r.document, e)

		for i := range def.Children {
			c := &def.Children[i]
			if err := fill(c, ref.Child(c.Name), e); err != nil {
				return err
			}
		}
		return nil
	}
	if err := fill(root, ir.RootReference.Child(root.Name), nil); err != nil {
		return err
	}

	for _, e := range r.declared {
		if e.Def == nil {
			return &RegistrationError{Nodeset: string(e.Nodeset), Message: "nodeset matches no node of the form"}
		}
	}
	return nil
}

// Resolve returns the entry for ref, ignoring positional predicates.
func (r *Registry) Resolve(ref ir.Reference) (*Entry, bool) {
	e, ok := r.entries[ref.Pattern()]
	return e, ok
}

// Entries returns every entry in template document order.
func (r *Registry) Entries() []*Entry { return r.document }

// Order returns every entry in evaluation order. Valid after Analyze.
func (r *Registry) Order() []*Entry { return r.order }

// Edges returns the dependency edges found by Analyze, parent edges first.
func (r *Registry) Edges() []Edge { return r.edges }
