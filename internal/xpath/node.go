package xpath

import (
	"slices"
	"strings"
)

// NodeType distinguishes the node kinds the evaluator understands.
type NodeType int

const (
	DocumentNode NodeType = iota
	ElementNode
	AttributeNode
)

// Node is the read-only view of a document the evaluator navigates.
//
// Implementations must use pointer identity: two Node values are the same
// node iff they compare equal with ==. Parent of the document node and
// ChildNodes/AttributeNodes of attributes return nil.
type Node interface {
	NodeType() NodeType
	// NodeName is the qualified name; empty for the document node.
	NodeName() string
	ParentNode() Node
	ChildNodes() []Node
	AttributeNodes() []Node
	// StringValue is the XPath string-value: the text of a leaf or
	// attribute, or the concatenated text of all descendants.
	StringValue() string
}

// LocalName strips any namespace prefix from a qualified name.
func LocalName(qname string) string {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

func prefixOf(qname string) string {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i]
	}
	return ""
}

// orderPath is the sequence of sibling indexes from the document node down
// to n. Attributes sort before element children of their owner.
func orderPath(n Node) []int {
	var path []int
	for p := n.ParentNode(); p != nil; n, p = p, p.ParentNode() {
		idx := -1
		if n.NodeType() == AttributeNode {
			for i, a := range p.AttributeNodes() {
				if a == n {
					idx = i - len(p.AttributeNodes())
					break
				}
			}
		} else {
			for i, c := range p.ChildNodes() {
				if c == n {
					idx = i
					break
				}
			}
		}
		path = append(path, idx)
	}
	slices.Reverse(path)
	return path
}

// documentOf returns the document node owning n.
func documentOf(n Node) Node {
	for p := n.ParentNode(); p != nil; p = p.ParentNode() {
		n = p
	}
	return n
}

// sortDocumentOrder sorts nodes into document order and removes duplicates.
// Nodes from different documents keep their relative input order, grouped
// by document in order of first appearance.
func sortDocumentOrder(nodes NodeSet) NodeSet {
	if len(nodes) < 2 {
		return nodes
	}
	type keyed struct {
		node Node
		doc  int
		path []int
	}
	var docs []Node
	items := make([]keyed, 0, len(nodes))
	seen := make(map[Node]bool, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		d := documentOf(n)
		di := slices.Index(docs, d)
		if di < 0 {
			docs = append(docs, d)
			di = len(docs) - 1
		}
		items = append(items, keyed{node: n, doc: di, path: orderPath(n)})
	}
	slices.SortStableFunc(items, func(a, b keyed) int {
		if a.doc != b.doc {
			return a.doc - b.doc
		}
		return slices.Compare(a.path, b.path)
	})
	out := make(NodeSet, len(items))
	for i, it := range items {
		out[i] = it.node
	}
	return out
}
