package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/testutil"
)

func buildGraph(t *testing.T, form *ir.FormDef) (*Graph, *instance.Document) {
	t.Helper()
	reg, err := bind.Load(form)
	require.NoError(t, err)
	doc, err := instance.New(form)
	require.NoError(t, err)
	g, err := BuildGraph(reg, doc)
	require.NoError(t, err)
	g.logger = quietLogger()
	return g, doc
}

func lookup(t *testing.T, doc *instance.Document, ref ir.Reference) *instance.Node {
	t.Helper()
	n, err := doc.Lookup(ref)
	require.NoError(t, err)
	return n
}

func unitRefs(units []*unit) []ir.Reference {
	seen := make(map[ir.Reference]bool)
	var out []ir.Reference
	for _, u := range units {
		if r := u.node.Ref(); !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func TestPositions(t *testing.T) {
	_, doc := buildGraph(t, testutil.RepeatForm())

	assert.Equal(t, []int{0, 2, 0}, positions(lookup(t, doc, "/data/rep[2]/x")))
	assert.Equal(t, []int{0, 1}, positions(lookup(t, doc, "/data/rep[1]")))
	assert.Equal(t, []int{0, 0}, positions(lookup(t, doc, "/data/rep")))
	assert.Equal(t, []int{0, 0}, positions(lookup(t, doc, "/data/total")))
}

func TestValueReaders_Pins(t *testing.T) {
	g, doc := buildGraph(t, testutil.RepeatForm())

	readers := unitRefs(g.valueReaders(lookup(t, doc, "/data/rep[1]/x")))
	assert.ElementsMatch(t, []ir.Reference{"/data/rep[1]/double", "/data/total"}, readers,
		"the sibling instance and the literal [2] read are excluded")

	readers = unitRefs(g.valueReaders(lookup(t, doc, "/data/rep[2]/x")))
	assert.ElementsMatch(t, []ir.Reference{"/data/rep[2]/double", "/data/total", "/data/second"}, readers)
}

func TestStructuralReaders(t *testing.T) {
	g, doc := buildGraph(t, testutil.RepeatForm())

	readers := unitRefs(g.structuralReaders(lookup(t, doc, "/data/rep")))
	assert.ElementsMatch(t, []ir.Reference{
		"/data/rep[1]/pos", "/data/rep[2]/pos",
		"/data/rep[1]/double", "/data/rep[2]/double",
		"/data/total", "/data/n", "/data/second",
	}, readers)
}

func TestSettle_EachUnitOnce(t *testing.T) {
	g, _ := buildGraph(t, testutil.ChainForm())

	pass := g.Settle()
	assert.Equal(t, g.Units(), pass.Evaluated)
	assert.Len(t, pass.Changed, g.Units(), "every node is new on the first pass")

	pass = g.Settle()
	assert.Zero(t, pass.Evaluated, "nothing pending")
	assert.Empty(t, pass.Changed)
}

func TestAttachDetach(t *testing.T) {
	g, doc := buildGraph(t, testutil.RepeatForm())
	g.Settle()
	units, subs := g.Units(), g.Subscriptions()

	added, err := doc.AddInstances("/data/rep", 1, 0)
	require.NoError(t, err)
	require.NoError(t, g.Attach(added[0]))
	assert.Equal(t, units+4, g.Units())
	assert.Equal(t, subs+2, g.Subscriptions())

	removed, err := doc.RemoveInstance("/data/rep", 3)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Detach(removed))
	assert.Equal(t, units, g.Units())
	assert.Equal(t, subs, g.Subscriptions())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		dataType string
		expr     string
		want     string
	}{
		{ir.TypeInt, "7 div 2", "3"},
		{ir.TypeInt, "-7 div 2", "-3"},
		{ir.TypeInt, "'abc'", ""},
		{ir.TypeInt, "1 div 0", ""},
		{ir.TypeDecimal, "7 div 2", "3.5"},
		{ir.TypeDecimal, "0 div 0", ""},
		{ir.TypeBoolean, "1", "true"},
		{ir.TypeBoolean, "''", "false"},
		{ir.TypeString, "1 div 0", "Infinity"},
		{"", "concat('a', 1)", "a1"},
	}
	for _, tt := range tests {
		t.Run(tt.dataType+" "+tt.expr, func(t *testing.T) {
			form := &ir.FormDef{
				ID:    "coerce",
				Root:  testutil.Group("data", testutil.Leaf("v")),
				Binds: []ir.BindDef{{Nodeset: "/data/v", Type: tt.dataType, Calculate: tt.expr}},
			}
			s := load(t, form)
			assert.Equal(t, tt.want, value(t, s, "/data/v"))
		})
	}
}

func TestTypeValid(t *testing.T) {
	tests := []struct {
		dataType, value string
		want            bool
	}{
		{ir.TypeInt, "", true},
		{ir.TypeInt, "12", true},
		{ir.TypeInt, "-3", true},
		{ir.TypeInt, "1.5", false},
		{ir.TypeInt, "x", false},
		{ir.TypeDecimal, "1.5", true},
		{ir.TypeDecimal, "1e3", false},
		{ir.TypeBoolean, "true", true},
		{ir.TypeBoolean, "yes", false},
		{ir.TypeString, "anything", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, typeValid(tt.dataType, tt.value), "%s %q", tt.dataType, tt.value)
	}
}
