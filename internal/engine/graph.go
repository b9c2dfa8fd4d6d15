package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// unit is the runtime counterpart of a bind entry: one per structural node
// of the document, the document node excepted. Repeat instances of one
// template share an entry but each gets its own unit.
type unit struct {
	node  *instance.Node
	entry *bind.Entry
}

// subscription records that consumer reads the nodes dep reaches.
type subscription struct {
	consumer *unit
	dep      bind.Dependency
}

// Graph is the concrete dependency graph of one document.
//
// Subscriptions are indexed by the pattern a dependency reads, so finding
// the readers of a node is a lookup per ancestor pattern followed by a pin
// check against the node's repeat positions.
//
// CRITICAL: units exist exactly for the nodes attached to the document.
// Detach must run for every removed subtree, or later passes would
// evaluate expressions against nodes that are gone.
type Graph struct {
	registry *bind.Registry
	doc      *instance.Document
	units    map[*instance.Node]*unit
	subs     map[string][]*subscription

	// pending is the seed set of the next pass.
	pending map[*unit]bool
	// touched holds nodes to report as changed regardless of evaluation,
	// i.e. nodes created since the last pass.
	touched map[*instance.Node]bool

	texts  xpath.TextResolver
	logger *slog.Logger
}

// BuildGraph creates a unit for every structural node of doc and subscribes
// each to the locations its entry reads. Every unit starts pending, so the
// first Settle evaluates the whole document.
func BuildGraph(reg *bind.Registry, doc *instance.Document) (*Graph, error) {
	g := &Graph{
		registry: reg,
		doc:      doc,
		units:    make(map[*instance.Node]*unit),
		subs:     make(map[string][]*subscription),
		pending:  make(map[*unit]bool),
		touched:  make(map[*instance.Node]bool),
		logger:   slog.Default(),
	}
	for _, top := range doc.Root().Children() {
		if err := g.Attach(top); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Attach creates and schedules units for n's subtree.
func (g *Graph) Attach(n *instance.Node) error {
	var err error
	instance.WalkFrom(n, func(c *instance.Node) bool {
		e, ok := g.registry.Resolve(patternOf(c))
		if !ok {
			err = fmt.Errorf("attach %s: no bind entry for pattern %s", c.Ref(), patternOf(c))
			return false
		}
		u := &unit{node: c, entry: e}
		g.units[c] = u
		for _, d := range e.Deps {
			if d.Instance != "" {
				continue
			}
			key := d.Pattern()
			g.subs[key] = append(g.subs[key], &subscription{consumer: u, dep: d})
		}
		g.pending[u] = true
		g.touched[c] = true
		return true
	})
	return err
}

// Detach releases the units and subscriptions of n's subtree and returns
// how many units were released.
func (g *Graph) Detach(n *instance.Node) int {
	released := 0
	instance.WalkFrom(n, func(c *instance.Node) bool {
		u, ok := g.units[c]
		if !ok {
			return true
		}
		for _, d := range u.entry.Deps {
			key := d.Pattern()
			subs := g.subs[key]
			kept := subs[:0]
			for _, s := range subs {
				if s.consumer != u {
					kept = append(kept, s)
				}
			}
			if len(kept) == 0 {
				delete(g.subs, key)
			} else {
				g.subs[key] = kept
			}
		}
		delete(g.units, c)
		delete(g.pending, u)
		delete(g.touched, c)
		released++
		return true
	})
	return released
}

// ValueChanged schedules the leaf n and every unit that reads its value.
// n is reported as changed by the next pass.
func (g *Graph) ValueChanged(n *instance.Node) {
	g.touched[n] = true
	if u, ok := g.units[n]; ok {
		g.pending[u] = true
	}
	for _, u := range g.valueReaders(n) {
		g.pending[u] = true
	}
}

// StructureChanged schedules the work that follows inserting or removing
// instances of the range rng. from is the 1-based position of the first
// instance whose position changed; it and every later instance are
// re-evaluated along with every unit reading the range's membership or the
// values inside it.
func (g *Graph) StructureChanged(rng *instance.Node, from int) {
	instances := rng.Children()
	if from >= 1 && from <= len(instances) {
		for _, inst := range instances[from-1:] {
			instance.WalkFrom(inst, func(c *instance.Node) bool {
				if u, ok := g.units[c]; ok {
					g.pending[u] = true
				}
				return true
			})
		}
	}
	for _, u := range g.structuralReaders(rng) {
		g.pending[u] = true
	}
}

// LanguageChanged schedules every unit with a label or hint expression.
func (g *Graph) LanguageChanged() {
	for _, u := range g.units {
		if u.entry.Expr(bind.AttrLabel) != nil || u.entry.Expr(bind.AttrHint) != nil {
			g.pending[u] = true
		}
	}
}

// ScheduleAll marks every unit pending.
func (g *Graph) ScheduleAll() {
	for _, u := range g.units {
		g.pending[u] = true
	}
}

// Units returns the number of live units.
func (g *Graph) Units() int { return len(g.units) }

// Subscriptions returns the number of live subscriptions.
func (g *Graph) Subscriptions() int {
	n := 0
	for _, subs := range g.subs {
		n += len(subs)
	}
	return n
}

// valueReaders returns the units whose non-shallow reads reach n. A read of
// an ancestor reads n too, so every ancestor-or-self pattern is consulted.
func (g *Graph) valueReaders(n *instance.Node) []*unit {
	names, pos := n.StepNames(), positions(n)
	var out []*unit
	for k := len(names); k >= 0; k-- {
		for _, s := range g.subs[joinPattern(names[:k])] {
			if !s.dep.Shallow && s.admits(pos) {
				out = append(out, s.consumer)
			}
		}
	}
	return out
}

// structuralReaders returns the units whose reads can observe a change in
// the membership of rng: reads of the range or anything inside it, shallow
// or not, and value reads of its ancestors.
func (g *Graph) structuralReaders(rng *instance.Node) []*unit {
	names, pos := rng.StepNames(), positions(rng)
	prefix := ir.Reference(joinPattern(names))
	var out []*unit
	for key, subs := range g.subs {
		ref := ir.Reference(key)
		inside := prefix.IsAncestorOrSelf(ref)
		above := ref.IsAncestorOf(prefix)
		if !inside && !above {
			continue
		}
		for _, s := range subs {
			if above && s.dep.Shallow {
				continue
			}
			if s.admits(pos) {
				out = append(out, s.consumer)
			}
		}
	}
	return out
}

// admits reports whether the pins of s's dependency allow it to reach a
// node with the given repeat positions. pos holds one entry per step, 0
// where the step is not a repeat instance; such steps, and steps past the
// end of pos, match any pin.
func (s *subscription) admits(pos []int) bool {
	var own []int
	for i, st := range s.dep.Steps {
		if i >= len(pos) {
			break
		}
		if pos[i] == 0 {
			continue
		}
		switch st.Pin {
		case xpath.PinLiteral:
			if st.Pos != pos[i] {
				return false
			}
		case xpath.PinContext:
			if own == nil {
				own = positions(s.consumer.node)
			}
			if i < len(own) && own[i] != 0 && own[i] != pos[i] {
				return false
			}
		}
	}
	return true
}

// positions returns the repeat position of each step of n's path, aligned
// with n.StepNames(). Steps that are not repeat instances hold 0, and so
// does the last step when n is a range.
func positions(n *instance.Node) []int {
	var pos []int
	for c := n; c != nil && c.Parent() != nil; c = c.Parent() {
		p := 0
		if c.Kind() == instance.KindInstance {
			p = c.Position()
			c = c.Parent()
		}
		pos = append(pos, p)
	}
	for i, j := 0, len(pos)-1; i < j; i, j = i+1, j-1 {
		pos[i], pos[j] = pos[j], pos[i]
	}
	return pos
}

func patternOf(n *instance.Node) ir.Reference {
	return ir.Reference(joinPattern(n.StepNames()))
}

func joinPattern(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return "/" + strings.Join(names, "/")
}
