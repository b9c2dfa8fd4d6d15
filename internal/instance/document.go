package instance

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Document is the primary instance of one form session plus the read-only
// secondary instances its expressions may consult.
type Document struct {
	root      *Node
	secondary map[string]*Node
}

// New instantiates the form's primary instance from its template, root
// down, and builds every secondary instance.
func New(form *ir.FormDef) (*Document, error) {
	if form.Root.Name == "" {
		return nil, fmt.Errorf("form %q: primary instance has no root element", form.ID)
	}
	if form.Root.Kind == ir.KindRepeat || form.Root.Kind == ir.KindLeaf {
		return nil, fmt.Errorf("form %q: root element %q must be a group", form.ID, form.Root.Name)
	}

	root := &Node{kind: KindRoot, state: DefaultState}
	root.children = []*Node{build(&form.Root, KindGroup, root)}

	d := &Document{root: root, secondary: make(map[string]*Node, len(form.Secondary))}
	for i := range form.Secondary {
		s := &form.Secondary[i]
		if _, dup := d.secondary[s.ID]; dup {
			return nil, fmt.Errorf("form %q: duplicate secondary instance %q", form.ID, s.ID)
		}
		d.secondary[s.ID] = newSecondary(&s.Root)
	}
	return d, nil
}

// Root returns the document node. Its only child is the instance's root
// element.
func (d *Document) Root() *Node { return d.root }

// Lookup returns the node at ref. A step naming a repeat without a position
// addresses the range itself.
func (d *Document) Lookup(ref ir.Reference) (*Node, error) {
	if _, err := ir.ParseReference(string(ref)); err != nil {
		return nil, structural(ErrCodeNotFound, ref, "malformed reference")
	}
	n := d.root
	for _, step := range ref.Steps() {
		if n.kind == KindRange || n.kind == KindLeaf && !strings.HasPrefix(step.Name, "@") {
			return nil, structural(ErrCodeNotFound, ref, "no node named %q under %s", step.Name, n.Ref())
		}
		if name, ok := strings.CutPrefix(step.Name, "@"); ok {
			i := slices.IndexFunc(n.attrs, func(a *Node) bool { return a.name == name })
			if i < 0 {
				return nil, structural(ErrCodeNotFound, ref, "no attribute %q on %s", name, n.Ref())
			}
			n = n.attrs[i]
			continue
		}

		i := slices.IndexFunc(n.children, func(c *Node) bool { return c.name == step.Name })
		if i < 0 {
			return nil, structural(ErrCodeNotFound, ref, "no node named %q under %s", step.Name, n.Ref())
		}
		child := n.children[i]
		if step.Pos > 0 {
			if child.kind != KindRange {
				return nil, structural(ErrCodeNotFound, ref, "%q is not a repeat", step.Name)
			}
			if step.Pos > len(child.children) {
				return nil, structural(ErrCodeNotFound, ref, "repeat %q has %d instance(s)", step.Name, len(child.children))
			}
			child = child.children[step.Pos-1]
		}
		n = child
	}
	return n, nil
}

// Read returns the snapshot of the node at ref.
func (d *Document) Read(ref ir.Reference) (ir.NodeSnapshot, error) {
	n, err := d.Lookup(ref)
	if err != nil {
		return ir.NodeSnapshot{}, err
	}
	return n.Snapshot(), nil
}

// SetValue stores value on the leaf at ref and returns the leaf.
func (d *Document) SetValue(ref ir.Reference, value string) (*Node, error) {
	n, err := d.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if n.kind != KindLeaf {
		return nil, structural(ErrCodeNotALeaf, ref, "cannot set the value of a %s node", n.kind)
	}
	n.Assign(value)
	return n, nil
}

// AddInstances inserts count new instances into the range at rangeRef,
// cloned from the repeat template. at is the 1-based position of the first
// new instance; 0 appends. Later siblings renumber.
func (d *Document) AddInstances(rangeRef ir.Reference, count, at int) ([]*Node, error) {
	r, err := d.rangeAt(rangeRef)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, structural(ErrCodeInvalidCount, rangeRef, "count must be positive, got %d", count)
	}
	size := len(r.children)
	if at == 0 {
		at = size + 1
	}
	if at < 1 || at > size+1 {
		return nil, structural(ErrCodeIndexOutOfRange, rangeRef, "insert position %d outside 1..%d", at, size+1)
	}
	if r.def.Max > 0 && size+count > r.def.Max {
		return nil, structural(ErrCodeMaxExceeded, rangeRef, "%d instance(s) would exceed max %d", size+count, r.def.Max)
	}

	added := make([]*Node, count)
	for i := range added {
		added[i] = build(r.def, KindInstance, r)
	}
	r.children = slices.Insert(r.children, at-1, added...)
	return added, nil
}

// RemoveInstance detaches the instance at 1-based index from the range at
// rangeRef and returns it. Later siblings renumber. The returned subtree no
// longer has a reference.
func (d *Document) RemoveInstance(rangeRef ir.Reference, index int) (*Node, error) {
	r, err := d.rangeAt(rangeRef)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > len(r.children) {
		return nil, structural(ErrCodeIndexOutOfRange, rangeRef, "index %d outside 1..%d", index, len(r.children))
	}
	removed := r.children[index-1]
	r.children = slices.Delete(r.children, index-1, index)
	removed.parent = nil
	return removed, nil
}

// InstanceAt returns the repeat instance at ref, e.g. "/data/rep[2]".
func (d *Document) InstanceAt(ref ir.Reference) (*Node, error) {
	n, err := d.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if n.kind != KindInstance {
		return nil, structural(ErrCodeNotAnInstance, ref, "%s node is not a repeat instance", n.kind)
	}
	return n, nil
}

func (d *Document) rangeAt(ref ir.Reference) (*Node, error) {
	n, err := d.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if n.kind != KindRange {
		return nil, structural(ErrCodeNotARange, ref, "%s node is not a repeat", n.kind)
	}
	return n, nil
}

// Walk visits every structural node in document order, the document node
// first. Attributes are not visited. Returning false from fn skips the
// node's subtree.
func (d *Document) Walk(fn func(*Node) bool) {
	walk(d.root, fn)
}

// WalkFrom is Walk restricted to n's subtree.
func WalkFrom(n *Node, fn func(*Node) bool) {
	walk(n, fn)
}

func walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		walk(c, fn)
	}
}

// Snapshots returns the snapshot of every node below the document node in
// document order.
func (d *Document) Snapshots() []ir.NodeSnapshot {
	var out []ir.NodeSnapshot
	d.Walk(func(n *Node) bool {
		if n.kind != KindRoot {
			out = append(out, n.Snapshot())
		}
		return true
	})
	return out
}

// Secondary returns the document node of the secondary instance id.
func (d *Document) Secondary(id string) (*Node, bool) {
	n, ok := d.secondary[id]
	return n, ok
}

// ResolveInstance implements xpath.InstanceResolver.
func (d *Document) ResolveInstance(id string) (xpath.Node, bool) {
	n, ok := d.secondary[id]
	if !ok {
		return nil, false
	}
	return n, true
}

func newSecondary(root *ir.DataNode) *Node {
	doc := &Node{kind: KindRoot, state: DefaultState}
	doc.children = []*Node{buildData(root, doc)}
	return doc
}

func buildData(dn *ir.DataNode, parent *Node) *Node {
	n := &Node{kind: KindGroup, name: dn.Name, parent: parent, state: DefaultState}
	if len(dn.Children) == 0 {
		n.kind = KindLeaf
		n.value = dn.Text
	}
	for _, a := range dn.Attributes {
		n.attrs = append(n.attrs, &Node{kind: KindAttribute, name: a.Name, parent: n, value: a.Value, state: DefaultState})
	}
	for i := range dn.Children {
		n.children = append(n.children, buildData(&dn.Children[i], n))
	}
	return n
}
