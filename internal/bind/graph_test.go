package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/ir"
)

func flatForm(binds ...ir.BindDef) *ir.FormDef {
	var leaves []ir.NodeDef
	for _, b := range binds {
		leaves = append(leaves, leaf(ir.Reference(b.Nodeset).Last().Name))
	}
	return &ir.FormDef{ID: "some-form", Root: group("data", leaves...), Binds: binds}
}

func TestAnalyze_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		binds []ir.BindDef
		path  []ir.Reference
	}{
		{
			"self reference in calculate",
			[]ir.BindDef{{Nodeset: "/data/count", Type: ir.TypeInt, Calculate: ". + 1"}},
			[]ir.Reference{"/data/count", "/data/count"},
		},
		{
			"self reference in relevant",
			[]ir.BindDef{{Nodeset: "/data/count", Relevant: ". > 0"}},
			[]ir.Reference{"/data/count", "/data/count"},
		},
		{
			"self reference in readonly",
			[]ir.BindDef{{Nodeset: "/data/count", Readonly: ". > 10"}},
			[]ir.Reference{"/data/count", "/data/count"},
		},
		{
			"self reference in required",
			[]ir.BindDef{{Nodeset: "/data/count", Required: ". > 10"}},
			[]ir.Reference{"/data/count", "/data/count"},
		},
		{
			"three node calculate cycle",
			[]ir.BindDef{
				{Nodeset: "/data/a", Calculate: "/data/c + 1"},
				{Nodeset: "/data/b", Calculate: "/data/a + 1"},
				{Nodeset: "/data/c", Calculate: "/data/b + 1"},
			},
			[]ir.Reference{"/data/a", "/data/b", "/data/c", "/data/a"},
		},
		{
			"relevant and calculate",
			[]ir.BindDef{
				{Nodeset: "/data/a", Relevant: "/data/b > 0"},
				{Nodeset: "/data/b", Calculate: "/data/a"},
			},
			[]ir.Reference{"/data/a", "/data/b", "/data/a"},
		},
		{
			"constraint through another node",
			[]ir.BindDef{
				{Nodeset: "/data/a", Constraint: ". < /data/b"},
				{Nodeset: "/data/b", Calculate: "/data/a * 2"},
			},
			[]ir.Reference{"/data/a", "/data/b", "/data/a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(flatForm(tt.binds...))
			require.Error(t, err)
			assert.True(t, IsCycleError(err))

			var ce *CycleError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.path, ce.Path)
			assert.Contains(t, err.Error(), string(ErrCodeCycleDetected))
		})
	}
}

func TestAnalyze_GroupRelevantReadingDescendant(t *testing.T) {
	t.Run("input descendant", func(t *testing.T) {
		r, err := Load(&ir.FormDef{
			ID:    "x",
			Root:  group("data", group("g", leaf("flag"), leaf("q"))),
			Binds: []ir.BindDef{{Nodeset: "/data/g", Relevant: "flag = 'yes'"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []ir.Reference{"/data", "/data/g", "/data/g/flag", "/data/g/q"}, nodesets(r.Order()))
	})

	t.Run("calculated descendant", func(t *testing.T) {
		_, err := Load(&ir.FormDef{
			ID:   "x",
			Root: group("data", group("g", leaf("flag"), leaf("q"))),
			Binds: []ir.BindDef{
				{Nodeset: "/data/g", Relevant: "q = 'yes'"},
				{Nodeset: "/data/g/q", Calculate: "../flag"},
			},
		})
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []ir.Reference{"/data/g", "/data/g/q", "/data/g"}, ce.Path)
	})

	t.Run("calculated grandchild", func(t *testing.T) {
		_, err := Load(&ir.FormDef{
			ID:   "x",
			Root: group("data", group("g", group("h", leaf("c")))),
			Binds: []ir.BindDef{
				{Nodeset: "/data/g", Relevant: "h/c > 0"},
				{Nodeset: "/data/g/h/c", Calculate: "1"},
			},
		})
		assert.True(t, IsCycleError(err))
	})
}

func TestAnalyze_KeepsAncestorsFirst(t *testing.T) {
	// g reads y; y's parent h reads c, which g gates.
	r, err := Load(&ir.FormDef{
		ID:   "x",
		Root: group("data", group("g", leaf("c")), group("h", leaf("y"))),
		Binds: []ir.BindDef{
			{Nodeset: "/data/g", Relevant: "/data/h/y = 'on'"},
			{Nodeset: "/data/g/c", Calculate: "1"},
			{Nodeset: "/data/h", Relevant: "/data/g/c = 1"},
		},
	})
	require.NoError(t, err)

	order := nodesets(r.Order())
	assert.Equal(t, []ir.Reference{"/data", "/data/g", "/data/g/c", "/data/h", "/data/h/y"}, order)
	for i, e := range r.Order() {
		assert.Equal(t, i, e.Rank())
	}
}

func TestAnalyze_Acyclic(t *testing.T) {
	tests := []struct {
		name  string
		binds []ir.BindDef
	}{
		{"constraint on self", []ir.BindDef{{Nodeset: "/data/a", Constraint: ". > 0 and . < 100"}}},
		{"constraint on calculated self", []ir.BindDef{{Nodeset: "/data/a", Calculate: "4", Constraint: ". > 0"}}},
		{"chain", []ir.BindDef{
			{Nodeset: "/data/a"},
			{Nodeset: "/data/b", Calculate: "/data/a * 3"},
			{Nodeset: "/data/c", Calculate: "(/data/a + /data/b) * 5"},
		}},
		{"secondary reads", []ir.BindDef{{Nodeset: "/data/a", Calculate: "count(instance('s')/root/item[v = /data/b])"}, {Nodeset: "/data/b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := flatForm(tt.binds...)
			form.Secondary = []ir.SecondaryInstance{{ID: "s", Root: ir.DataNode{Name: "root"}}}
			_, err := Load(form)
			assert.NoError(t, err)
		})
	}
}

func TestAnalyze_RepeatPositionIsNotCycle(t *testing.T) {
	form := &ir.FormDef{
		ID:   "rep",
		Root: group("data", repeat("rep", leaf("pos"), leaf("n")), leaf("total")),
		Binds: []ir.BindDef{
			{Nodeset: "/data/rep/pos", Calculate: "position(..)"},
			{Nodeset: "/data/rep/n", Calculate: "count(../../rep)"},
			{Nodeset: "/data/total", Calculate: "sum(/data/rep/pos)"},
		},
	}
	r, err := Load(form)
	require.NoError(t, err)

	order := nodesets(r.Order())
	assert.Less(t, indexOf(order, "/data/rep/pos"), indexOf(order, "/data/total"))
}

func TestAnalyze_ProducersPrecedeConsumers(t *testing.T) {
	form := flatForm(
		ir.BindDef{Nodeset: "/data/c", Calculate: "(/data/a + /data/b) * 5"},
		ir.BindDef{Nodeset: "/data/b", Calculate: "/data/a * 3"},
		ir.BindDef{Nodeset: "/data/a", Type: ir.TypeInt},
	)
	r, err := Load(form)
	require.NoError(t, err)

	order := nodesets(r.Order())
	for _, edge := range r.Edges() {
		assert.Less(t, indexOf(order, edge.From), indexOf(order, edge.To), "edge %s -> %s", edge.From, edge.To)
	}
	assert.Equal(t, []ir.Reference{"/data", "/data/a", "/data/b", "/data/c"}, order)
}

func TestEdges(t *testing.T) {
	form := flatForm(
		ir.BindDef{Nodeset: "/data/a"},
		ir.BindDef{Nodeset: "/data/b", Calculate: "/data/a * 3", Relevant: "/data/a > 0"},
	)
	r, err := Load(form)
	require.NoError(t, err)

	assert.Equal(t, []Edge{
		{From: "/data", To: "/data/a"},
		{From: "/data", To: "/data/b"},
		{From: "/data/a", To: "/data/b", Attr: AttrRelevant},
		{From: "/data/a", To: "/data/b", Attr: AttrCalculate},
	}, r.Edges())
}

func TestDependency_Covers(t *testing.T) {
	r, err := Load(&ir.FormDef{
		ID:   "x",
		Root: group("data", group("g", leaf("q")), leaf("s")),
		Binds: []ir.BindDef{
			{Nodeset: "/data/s", Calculate: "concat(/data/g, count(/data/g))"},
		},
	})
	require.NoError(t, err)

	s, _ := r.Resolve("/data/s")
	require.Len(t, s.Deps, 2)

	value, structural := s.Deps[0], s.Deps[1]
	assert.True(t, value.Covers("/data/g"))
	assert.True(t, value.Covers("/data/g/q"))
	assert.False(t, value.Covers("/data/s"))
	assert.False(t, structural.Covers("/data/g"), "shallow reads produce no edges")
}

func indexOf(refs []ir.Reference, ref ir.Reference) int {
	for i, r := range refs {
		if r == ref {
			return i
		}
	}
	return -1
}
