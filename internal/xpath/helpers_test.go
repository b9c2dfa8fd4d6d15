package xpath

import "strings"

// tnode is a minimal in-memory Node for evaluator tests.
type tnode struct {
	typ      NodeType
	name     string
	text     string
	parent   *tnode
	children []*tnode
	attrs    []*tnode
}

func (n *tnode) NodeType() NodeType { return n.typ }
func (n *tnode) NodeName() string   { return n.name }

func (n *tnode) ParentNode() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *tnode) ChildNodes() []Node {
	out := make([]Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *tnode) AttributeNodes() []Node {
	out := make([]Node, len(n.attrs))
	for i, a := range n.attrs {
		out[i] = a
	}
	return out
}

func (n *tnode) StringValue() string {
	if len(n.children) == 0 {
		return n.text
	}
	var b strings.Builder
	for _, c := range n.children {
		b.WriteString(c.StringValue())
	}
	return b.String()
}

func elem(name string, kids ...*tnode) *tnode {
	n := &tnode{typ: ElementNode, name: name}
	for _, k := range kids {
		k.parent = n
		if k.typ == AttributeNode {
			n.attrs = append(n.attrs, k)
		} else {
			n.children = append(n.children, k)
		}
	}
	return n
}

func leaf(name, text string, attrs ...*tnode) *tnode {
	n := elem(name, attrs...)
	n.text = text
	return n
}

func attr(name, text string) *tnode {
	return &tnode{typ: AttributeNode, name: name, text: text}
}

func document(root *tnode) *tnode {
	d := &tnode{typ: DocumentNode}
	root.parent = d
	d.children = []*tnode{root}
	return d
}

// find walks a slash-separated path of child names from n, taking the
// first match at each level.
func find(n *tnode, path string) *tnode {
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		var next *tnode
		for _, c := range n.children {
			if c.name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

type instances map[string]*tnode

func (m instances) ResolveInstance(id string) (Node, bool) {
	d, ok := m[id]
	if !ok {
		return nil, false
	}
	return d, true
}

type texts map[string]string

func (m texts) ResolveText(id string) (string, bool) {
	s, ok := m[id]
	return s, ok
}

// sampleDoc is
//
//	<data><a>2</a><b>6</b><c/><rep><x>1</x></rep><rep><x>3</x></rep>
//	<rep><x>2</x></rep><q kind="yes">hello</q></data>
func sampleDoc() *tnode {
	return document(elem("data",
		leaf("a", "2"),
		leaf("b", "6"),
		leaf("c", ""),
		elem("rep", leaf("x", "1")),
		elem("rep", leaf("x", "3")),
		elem("rep", leaf("x", "2")),
		leaf("q", "hello", attr("kind", "yes")),
	))
}

func citiesDoc() *tnode {
	item := func(name, country string) *tnode {
		return elem("item", leaf("name", name), leaf("country", country))
	}
	return document(elem("root",
		item("Lyon", "fr"),
		item("Paris", "fr"),
		item("Bonn", "de"),
	))
}
