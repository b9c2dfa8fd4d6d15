package bind

import (
	"fmt"
	"slices"

	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Edge is a producer→consumer relation between entries. Attr names the
// consumer attribute whose expression reads From; it is empty for the
// structural edge from a parent to its child.
type Edge struct {
	From ir.Reference `json:"from"`
	To   ir.Reference `json:"to"`
	Attr Attr         `json:"attr,omitempty"`
}

// Covers reports whether a read of d observes the value of the node at
// pattern p. Reading a node reads its whole subtree (the string-value of a
// group concatenates its leaves), so ancestors cover descendants. Shallow
// reads and reads of secondary instances cover no primary node.
func (d Dependency) Covers(p ir.Reference) bool {
	if d.Shallow || d.Instance != "" {
		return false
	}
	return ir.Reference(d.Pattern()).IsAncestorOrSelf(p)
}

// Analyze extracts every entry's dependencies, builds the dependency graph,
// rejects cycles and computes the evaluation order.
//
// The graph has an edge from each producer to every entry whose expressions
// read it, and from each ancestor to every calculated descendant: relevance
// is inherited and gates calculate, which is the only attribute that feeds
// a value back into the graph. A self-loop or any larger strongly connected
// component is a *CycleError; constraint, label and hint may read their own
// node.
//
// The order is a depth-first walk in template document order that emits
// an entry after its parent and its calculated producers. Producers without
// a calculate never change during a pass; they precede their readers too
// unless that would put a node ahead of its ancestor. Independent entries
// keep document order.
func (r *Registry) Analyze() error {
	if len(r.document) == 0 {
		return fmt.Errorf("registry has no entries; FillGaps must run before Analyze")
	}

	for _, e := range r.document {
		e.Deps = e.Deps[:0]
		ctx := e.Context()
		for _, a := range Attrs {
			tree := e.Expr(a)
			if tree == nil {
				continue
			}
			for _, ref := range xpath.Analyze(tree, ctx) {
				e.Deps = append(e.Deps, Dependency{Attr: a, PathRef: ref})
			}
		}
	}

	graph, producers := r.buildGraph()
	if err := findCycle(r.document, graph); err != nil {
		return err
	}

	r.order = r.walk(producers, true)
	if !ordered(r.order, producers) {
		r.order = r.walk(producers, false)
	}
	for i, e := range r.order {
		e.rank = i
	}
	return nil
}

// walk emits every entry after its parent and its calculated producers.
// With inputs set it also tries to emit input producers first, skipping
// those nested under the consumer.
func (r *Registry) walk(producers map[*Entry][]*Entry, inputs bool) []*Entry {
	order := make([]*Entry, 0, len(r.document))
	visited := make(map[*Entry]bool, len(r.document))
	var visit func(e *Entry)
	visit = func(e *Entry) {
		if visited[e] {
			return
		}
		visited[e] = true
		if e.parent != nil {
			visit(e.parent)
		}
		for _, p := range producers[e] {
			if p.calculated() || (inputs && !e.encloses(p)) {
				visit(p)
			}
		}
		order = append(order, e)
	}
	for _, e := range r.document {
		visit(e)
	}
	return order
}

// ordered reports whether order puts every entry after its parent and its
// calculated producers. The scheduler depends on both.
func ordered(order []*Entry, producers map[*Entry][]*Entry) bool {
	rank := make(map[*Entry]int, len(order))
	for i, e := range order {
		rank[e] = i
	}
	for _, e := range order {
		if e.parent != nil && rank[e.parent] > rank[e] {
			return false
		}
		for _, p := range producers[e] {
			if p.calculated() && rank[p] > rank[e] {
				return false
			}
		}
	}
	return true
}

// buildGraph returns the successor lists keyed by nodeset and, per
// consumer, its producers in document order.
func (r *Registry) buildGraph() (map[ir.Reference][]ir.Reference, map[*Entry][]*Entry) {
	graph := make(map[ir.Reference][]ir.Reference, len(r.document))
	producers := make(map[*Entry][]*Entry)
	r.edges = r.edges[:0]

	for _, e := range r.document {
		graph[e.Nodeset] = nil
	}
	for _, e := range r.document {
		if e.parent != nil {
			r.edges = append(r.edges, Edge{From: e.parent.Nodeset, To: e.Nodeset})
		}
		if !e.calculated() {
			continue
		}
		for a := e.parent; a != nil; a = a.parent {
			graph[a.Nodeset] = append(graph[a.Nodeset], e.Nodeset)
		}
	}

	for _, consumer := range r.document {
		seen := make(map[*Entry]bool)
		for _, dep := range consumer.Deps {
			for _, p := range r.document {
				if !dep.Covers(p.Nodeset) {
					continue
				}
				if p == consumer && dep.Attr.selfReading() {
					continue
				}
				if !seen[p] {
					seen[p] = true
					graph[p.Nodeset] = append(graph[p.Nodeset], consumer.Nodeset)
					producers[consumer] = append(producers[consumer], p)
				}
				r.edges = append(r.edges, Edge{From: p.Nodeset, To: consumer.Nodeset, Attr: dep.Attr})
			}
		}
		slices.SortStableFunc(producers[consumer], func(a, b *Entry) int {
			return slices.Index(r.document, a) - slices.Index(r.document, b)
		})
	}
	r.edges = dedupeEdges(r.edges)
	return graph, producers
}

func dedupeEdges(edges []Edge) []Edge {
	seen := make(map[Edge]bool, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// findCycle runs Tarjan's strongly connected components algorithm over
// graph, visiting roots in document order, and reports the first cycle.
func findCycle(nodes []*Entry, graph map[ir.Reference][]ir.Reference) error {
	position := make(map[ir.Reference]int, len(nodes))
	for i, n := range nodes {
		position[n.Nodeset] = i
	}

	var (
		index   = 0
		stack   []ir.Reference
		indices = make(map[ir.Reference]int)
		lowlink = make(map[ir.Reference]int)
		onStack = make(map[ir.Reference]bool)
		cycle   []ir.Reference
	)

	var strongConnect func(ir.Reference)
	strongConnect = func(v ir.Reference) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []ir.Reference
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if cycle == nil && (len(scc) > 1 || slices.Contains(graph[v], v)) {
			cycle = cyclePath(scc, graph, position)
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n.Nodeset]; !visited {
			strongConnect(n.Nodeset)
		}
		if cycle != nil {
			return &CycleError{Path: cycle}
		}
	}
	return nil
}

// cyclePath returns the shortest walk inside the component from its first
// member in document order back to itself.
func cyclePath(scc []ir.Reference, graph map[ir.Reference][]ir.Reference, position map[ir.Reference]int) []ir.Reference {
	start := slices.MinFunc(scc, func(a, b ir.Reference) int { return position[a] - position[b] })
	if len(scc) == 1 {
		return []ir.Reference{start, start}
	}

	members := make(map[ir.Reference]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	via := map[ir.Reference]ir.Reference{}
	queue := []ir.Reference{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, w := range graph[current] {
			if !members[w] {
				continue
			}
			if w == start {
				path := []ir.Reference{start}
				for n := current; n != start; n = via[n] {
					path = append(path, n)
				}
				path = append(path, start)
				slices.Reverse(path)
				return path
			}
			if _, seen := via[w]; !seen {
				via[w] = current
				queue = append(queue, w)
			}
		}
	}
	return []ir.Reference{start}
}
