package testutil

import "github.com/roach88/xforms/internal/ir"

// NodeOption configures a template node built by Leaf, Group or Repeat.
type NodeOption func(*ir.NodeDef)

// Default sets a leaf's initial value.
func Default(v string) NodeOption {
	return func(n *ir.NodeDef) { n.Default = v }
}

// Label sets the node's label expression.
func Label(expr string) NodeOption {
	return func(n *ir.NodeDef) { n.Label = expr }
}

// Hint sets the node's hint expression.
func Hint(expr string) NodeOption {
	return func(n *ir.NodeDef) { n.Hint = expr }
}

// Attr adds a fixed attribute.
func Attr(name, value string) NodeOption {
	return func(n *ir.NodeDef) { n.Attributes = append(n.Attributes, ir.AttrDef{Name: name, Value: value}) }
}

// Max caps a repeat's instance count.
func Max(m int) NodeOption {
	return func(n *ir.NodeDef) { n.Max = m }
}

// Leaf builds a leaf template node.
func Leaf(name string, opts ...NodeOption) ir.NodeDef {
	n := ir.NodeDef{Name: name, Kind: ir.KindLeaf}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// Group builds a group template node.
func Group(name string, children ...ir.NodeDef) ir.NodeDef {
	return ir.NodeDef{Name: name, Kind: ir.KindGroup, Children: children}
}

// Repeat builds a repeat template node with count initial instances.
func Repeat(name string, count int, children ...ir.NodeDef) ir.NodeDef {
	return ir.NodeDef{Name: name, Kind: ir.KindRepeat, Count: count, Children: children}
}

// With applies opts to an already built node.
func With(n ir.NodeDef, opts ...NodeOption) ir.NodeDef {
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// Item builds a secondary instance element. Items without children carry
// text.
func Item(name, text string, children ...ir.DataNode) ir.DataNode {
	return ir.DataNode{Name: name, Text: text, Children: children}
}

// ChainForm is the classic three-node chain: b = a * 3, c = (a + b) * 5.
// With a = 2 it settles to b = 6, c = 40.
func ChainForm() *ir.FormDef {
	return &ir.FormDef{
		ID: "chain",
		Root: Group("data",
			Leaf("a", Default("2")),
			Leaf("b"),
			Leaf("c"),
		),
		Binds: []ir.BindDef{
			{Nodeset: "/data/a", Type: ir.TypeInt},
			{Nodeset: "/data/b", Type: ir.TypeInt, Calculate: "/data/a * 3"},
			{Nodeset: "/data/c", Type: ir.TypeInt, Calculate: "(/data/a + /data/b) * 5"},
		},
	}
}

// RelevanceForm hides group g until toggle is "yes". q inside g is
// required and r is calculated from toggle.
func RelevanceForm() *ir.FormDef {
	return &ir.FormDef{
		ID: "relevance",
		Root: Group("data",
			Leaf("toggle", Default("no")),
			Group("g",
				Leaf("q"),
				Leaf("r"),
			),
			Leaf("age", Default("30")),
		),
		Binds: []ir.BindDef{
			{Nodeset: "/data/g", Relevant: "/data/toggle = 'yes'"},
			{Nodeset: "/data/g/q", Required: "true()"},
			{Nodeset: "/data/g/r", Calculate: "concat('toggle is ', /data/toggle)"},
			{Nodeset: "/data/age", Type: ir.TypeInt, Constraint: ". >= 18", Readonly: "/data/toggle = 'lock'"},
		},
	}
}

// RepeatForm has a two-instance repeat with per-instance calculations and
// aggregates over the range.
func RepeatForm() *ir.FormDef {
	return &ir.FormDef{
		ID: "repeats",
		Root: Group("data",
			With(Repeat("rep", 2,
				Leaf("x", Default("1")),
				Leaf("pos"),
				Leaf("double"),
			), Max(5)),
			Leaf("total"),
			Leaf("n"),
			Leaf("second"),
		),
		Binds: []ir.BindDef{
			{Nodeset: "/data/rep/x", Type: ir.TypeInt},
			{Nodeset: "/data/rep/pos", Type: ir.TypeInt, Calculate: "position(..)"},
			{Nodeset: "/data/rep/double", Type: ir.TypeInt, Calculate: "../x * 2"},
			{Nodeset: "/data/total", Type: ir.TypeInt, Calculate: "sum(/data/rep/x)"},
			{Nodeset: "/data/n", Type: ir.TypeInt, Calculate: "count(/data/rep)"},
			{Nodeset: "/data/second", Calculate: "/data/rep[2]/x"},
		},
	}
}

// CitiesForm filters the secondary instance "cities" by the primary
// country field.
func CitiesForm() *ir.FormDef {
	city := func(name, country string) ir.DataNode {
		return Item("item", "", Item("name", name), Item("country", country))
	}
	return &ir.FormDef{
		ID: "cities",
		Root: Group("data",
			Leaf("country", Default("fr")),
			Leaf("count"),
			Leaf("first"),
			Leaf("others"),
		),
		Binds: []ir.BindDef{
			{Nodeset: "/data/count", Type: ir.TypeInt, Calculate: "count(instance('cities')/root/item[country = /data/country])"},
			{Nodeset: "/data/first", Calculate: "instance('cities')/root/item[country = /data/country][1]/name"},
			{Nodeset: "/data/others", Calculate: "count(instance('cities')/root/item[country = /data/country][name != /data/first])"},
		},
		Secondary: []ir.SecondaryInstance{{
			ID: "cities",
			Root: Item("root", "",
				city("Lyon", "fr"),
				city("Paris", "fr"),
				city("Marseille", "fr"),
				city("Bonn", "de"),
			),
		}},
	}
}

// LanguageForm labels q through jr:itext in two tagged languages.
func LanguageForm() *ir.FormDef {
	return &ir.FormDef{
		ID: "languages",
		Root: Group("data",
			Leaf("q", Label("jr:itext('q-label')"), Hint("jr:itext('q-hint')")),
			Leaf("plain", Label("'Fixed'")),
		),
		Languages: []ir.Language{
			{Name: "English (en)", Texts: map[string]string{"q-label": "Name", "q-hint": "Your full name"}},
			{Name: "Français (fr)", Texts: map[string]string{"q-label": "Nom", "q-hint": "Votre nom complet"}},
		},
		DefaultLanguage: "English (en)",
	}
}
