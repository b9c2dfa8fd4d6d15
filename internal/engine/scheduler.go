package engine

import (
	"container/heap"
	"math"
	"slices"
	"strconv"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Pass summarizes one settling pass.
type Pass struct {
	// Evaluated is the number of units evaluated.
	Evaluated int

	// EvalErrors counts expressions that failed and degraded to defaults.
	EvalErrors int

	// Changed lists, in document order, the nodes whose value or state
	// changed and the nodes created since the previous pass.
	Changed []*instance.Node
}

// Settle runs one settling pass over the pending units.
//
// Units are evaluated in (rank, document order). A unit whose calculated
// value changes schedules the units reading it; a unit whose relevance
// changes schedules its children. Both always rank later, so the pass
// never revisits a unit.
//
// CRITICAL: Settle evaluates each unit at most once per pass. There is no
// fixpoint iteration; the graph is acyclic by construction.
func (g *Graph) Settle() Pass {
	order := g.documentOrder()
	q := &unitQueue{order: order}
	for u := range g.pending {
		heap.Push(q, u)
	}
	clear(g.pending)

	ledger := newEvalLedger(q.Len())
	changed := make(map[*instance.Node]bool, len(g.touched))
	for n := range g.touched {
		changed[n] = true
	}
	clear(g.touched)

	var pass Pass
	for q.Len() > 0 {
		u := heap.Pop(q).(*unit)
		if ledger.WouldRepeat(u) {
			continue
		}
		ledger.Record(u)

		out := g.evaluate(u)
		pass.Evaluated++
		pass.EvalErrors += out.errors
		if out.valueChanged || out.stateChanged {
			changed[u.node] = true
		}
		if out.valueChanged {
			for _, r := range g.valueReaders(u.node) {
				if !ledger.WouldRepeat(r) {
					heap.Push(q, r)
				}
			}
		}
		if out.relevanceChanged {
			for _, c := range u.node.Children() {
				if cu, ok := g.units[c]; ok && !ledger.WouldRepeat(cu) {
					heap.Push(q, cu)
				}
			}
		}
	}

	for n := range changed {
		if _, live := order[n]; live {
			pass.Changed = append(pass.Changed, n)
		}
	}
	sortByOrder(pass.Changed, order)
	return pass
}

// documentOrder indexes every live node in document order.
func (g *Graph) documentOrder() map[*instance.Node]int {
	order := make(map[*instance.Node]int, len(g.units))
	g.doc.Walk(func(n *instance.Node) bool {
		order[n] = len(order)
		return true
	})
	return order
}

type outcome struct {
	valueChanged     bool
	stateChanged     bool
	relevanceChanged bool
	errors           int
}

// evaluate recomputes one unit.
//
// A node is relevant only when its parent is and its own relevant
// expression holds. For a non-relevant node the other attributes are not
// evaluated: it is neither readonly nor required, it is valid, and a
// calculate does not run, so the node keeps its last value. Label and hint
// are display text and are computed either way.
//
// Ranges only inherit relevance; their bind applies to each instance.
func (g *Graph) evaluate(u *unit) outcome {
	n, e := u.node, u.entry
	prev := n.State()
	next := instance.State{Relevant: parentRelevant(n), Valid: true}
	var out outcome

	if n.Kind() == instance.KindRange {
		out.stateChanged = n.SetState(next)
		out.relevanceChanged = prev.Relevant != next.Relevant
		return out
	}

	ev := &evaluator{g: g, unit: u, ctx: xpath.Context{
		Node:      n,
		Root:      g.doc.Root(),
		Instances: g.doc,
		Texts:     g.texts,
	}}

	if next.Relevant {
		next.Relevant = ev.boolean(bind.AttrRelevant, true)
	}
	if next.Relevant {
		next.Readonly = ev.boolean(bind.AttrReadonly, false)
		next.Required = ev.boolean(bind.AttrRequired, false)
		if e.Expr(bind.AttrCalculate) != nil {
			out.valueChanged = n.Assign(ev.calculate(e.Type))
		}
		next.Valid = ev.boolean(bind.AttrConstraint, true)
		if n.Kind() == instance.KindLeaf {
			if next.Required && n.Value() == "" {
				next.Valid = false
			}
			if !typeValid(e.Type, n.Value()) {
				next.Valid = false
			}
		}
	}
	next.Label = ev.text(bind.AttrLabel)
	next.Hint = ev.text(bind.AttrHint)

	out.stateChanged = n.SetState(next)
	out.relevanceChanged = prev.Relevant != next.Relevant
	out.errors = ev.errors
	return out
}

func parentRelevant(n *instance.Node) bool {
	p := n.Parent()
	if p == nil || p.Kind() == instance.KindRoot {
		return true
	}
	return p.State().Relevant
}

// evaluator runs one unit's expressions. Failures are logged and counted;
// the attribute degrades to its failure default.
type evaluator struct {
	g      *Graph
	unit   *unit
	ctx    xpath.Context
	errors int
}

func (ev *evaluator) fail(a bind.Attr, err error) {
	ev.errors++
	ev.g.logger.Warn("expression evaluation failed",
		"ref", ev.unit.node.Ref(),
		"attr", a,
		"expr", ev.unit.entry.Source(a),
		"error", err,
	)
}

// boolean evaluates a, returning absent when the entry has no expression
// for it and false when evaluation fails.
func (ev *evaluator) boolean(a bind.Attr, absent bool) bool {
	x := ev.unit.entry.Expr(a)
	if x == nil {
		return absent
	}
	b, err := xpath.EvaluateBoolean(x, ev.ctx)
	if err != nil {
		ev.fail(a, err)
		return false
	}
	return b
}

func (ev *evaluator) text(a bind.Attr) string {
	x := ev.unit.entry.Expr(a)
	if x == nil {
		return ""
	}
	s, err := xpath.EvaluateString(x, ev.ctx)
	if err != nil {
		ev.fail(a, err)
		return ""
	}
	return s
}

// calculate evaluates the calculate expression and converts the result to
// the storage form of dataType. A failed calculation stores "".
func (ev *evaluator) calculate(dataType string) string {
	v, err := xpath.Evaluate(ev.unit.entry.Expr(bind.AttrCalculate), ev.ctx)
	if err != nil {
		ev.fail(bind.AttrCalculate, err)
		return ""
	}
	return coerce(dataType, v)
}

// coerce converts a calculated value to its stored string. Numbers that do
// not convert, NaN and the infinities, store as "".
func coerce(dataType string, v xpath.Value) string {
	switch dataType {
	case ir.TypeInt:
		f := xpath.ToNumber(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return xpath.FormatNumber(math.Trunc(f))
	case ir.TypeDecimal:
		f := xpath.ToNumber(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return xpath.FormatNumber(f)
	case ir.TypeBoolean:
		return strconv.FormatBool(xpath.ToBoolean(v))
	}
	return xpath.ToString(v)
}

// typeValid reports whether a stored value parses as dataType. Empty values
// are valid; emptiness is the business of required.
func typeValid(dataType, value string) bool {
	if value == "" {
		return true
	}
	switch dataType {
	case ir.TypeInt:
		f := xpath.StringToNumber(value)
		return !math.IsNaN(f) && f == math.Trunc(f)
	case ir.TypeDecimal:
		return !math.IsNaN(xpath.StringToNumber(value))
	case ir.TypeBoolean:
		switch value {
		case "true", "false", "1", "0":
			return true
		}
		return false
	}
	return true
}

// evalLedger records which units a pass has evaluated. The queue may hold a
// unit more than once when several producers schedule it.
type evalLedger struct {
	seen map[*unit]bool
}

func newEvalLedger(size int) *evalLedger {
	return &evalLedger{seen: make(map[*unit]bool, size)}
}

// WouldRepeat reports whether u was already evaluated in this pass.
func (l *evalLedger) WouldRepeat(u *unit) bool { return l.seen[u] }

// Record marks u evaluated.
func (l *evalLedger) Record(u *unit) { l.seen[u] = true }

// unitQueue is a min-heap of units keyed by (rank, document order).
type unitQueue struct {
	units []*unit
	order map[*instance.Node]int
}

func (q *unitQueue) Len() int { return len(q.units) }

func (q *unitQueue) Less(i, j int) bool {
	a, b := q.units[i], q.units[j]
	if a.entry.Rank() != b.entry.Rank() {
		return a.entry.Rank() < b.entry.Rank()
	}
	return q.order[a.node] < q.order[b.node]
}

func (q *unitQueue) Swap(i, j int) { q.units[i], q.units[j] = q.units[j], q.units[i] }

func (q *unitQueue) Push(x any) { q.units = append(q.units, x.(*unit)) }

func (q *unitQueue) Pop() any {
	old := q.units
	u := old[len(old)-1]
	q.units = old[:len(old)-1]
	return u
}

func sortByOrder(nodes []*instance.Node, order map[*instance.Node]int) {
	slices.SortFunc(nodes, func(a, b *instance.Node) int { return order[a] - order[b] })
}
