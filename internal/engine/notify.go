package engine

import (
	"slices"

	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
)

// Notifier receives every changed node after a pass settles, in document
// order. Removed nodes are reported through NodeRemoved with the reference
// they had before removal.
//
// Notifications run while the session's mutation guard is held: calling a
// mutation from inside one returns ErrReentrantMutation.
type Notifier interface {
	NodeChanged(snap ir.NodeSnapshot)
	NodeRemoved(ref ir.Reference)
}

// watchers holds per-node callbacks registered with Session.Subscribe.
// Callbacks follow the node, not its reference: a renumbered repeat
// instance keeps its watchers. A node's callbacks run in registration
// order.
type watchers struct {
	next   int
	byNode map[*instance.Node][]watcher
}

type watcher struct {
	id int
	fn func(ir.NodeSnapshot)
}

func newWatchers() *watchers {
	return &watchers{byNode: make(map[*instance.Node][]watcher)}
}

func (w *watchers) add(n *instance.Node, fn func(ir.NodeSnapshot)) func() {
	id := w.next
	w.next++
	w.byNode[n] = append(w.byNode[n], watcher{id: id, fn: fn})
	return func() {
		list := slices.DeleteFunc(w.byNode[n], func(x watcher) bool { return x.id == id })
		if len(list) == 0 {
			delete(w.byNode, n)
			return
		}
		w.byNode[n] = list
	}
}

func (w *watchers) notify(n *instance.Node, snap ir.NodeSnapshot) {
	for _, x := range slices.Clone(w.byNode[n]) {
		x.fn(snap)
	}
}

// release drops every watcher of n's subtree.
func (w *watchers) release(n *instance.Node) {
	instance.WalkFrom(n, func(c *instance.Node) bool {
		delete(w.byNode, c)
		return true
	})
}

func (w *watchers) len() int { return len(w.byNode) }
