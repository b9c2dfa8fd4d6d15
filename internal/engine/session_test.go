package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/testutil"
	"github.com/roach88/xforms/internal/xpath"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func load(t *testing.T, form *ir.FormDef, opts ...SessionOption) *Session {
	t.Helper()
	base := []SessionOption{
		WithIDGenerator(NewFixedGenerator("session-1")),
		WithLogger(quietLogger()),
	}
	s, err := Load(context.Background(), form, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func read(t *testing.T, s *Session, ref ir.Reference) ir.NodeSnapshot {
	t.Helper()
	snap, err := s.Read(ref)
	require.NoError(t, err)
	return snap
}

func value(t *testing.T, s *Session, ref ir.Reference) string {
	t.Helper()
	return read(t, s, ref).Value
}

func refs(snaps []ir.NodeSnapshot) []ir.Reference {
	out := make([]ir.Reference, len(snaps))
	for i, s := range snaps {
		out[i] = s.Ref
	}
	return out
}

func TestLoad_InitialPass(t *testing.T) {
	s := load(t, testutil.ChainForm())

	assert.Equal(t, "session-1", s.ID())
	assert.Equal(t, int64(0), s.Seq())
	assert.Equal(t, "2", value(t, s, "/data/a"))
	assert.Equal(t, "6", value(t, s, "/data/b"))
	assert.Equal(t, "40", value(t, s, "/data/c"))
	assert.Equal(t, []ir.Reference{"/data", "/data/a", "/data/b", "/data/c"}, s.Order())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		form := testutil.ChainForm()
		form.Binds[0].Calculate = "/data/c div 5"

		_, err := Load(context.Background(), form, WithLogger(quietLogger()))
		require.Error(t, err)
		assert.True(t, bind.IsCycleError(err))
	})

	t.Run("malformed expression", func(t *testing.T) {
		form := testutil.ChainForm()
		form.Binds[1].Calculate = "/data/a *"

		_, err := Load(context.Background(), form, WithLogger(quietLogger()))
		require.Error(t, err)
		assert.True(t, bind.IsRegistrationError(err))
	})

	t.Run("journal sees nothing", func(t *testing.T) {
		form := testutil.ChainForm()
		form.Binds[0].Calculate = "/data/c div 5"
		j := &MemoryJournal{}

		_, err := Load(context.Background(), form, WithLogger(quietLogger()), WithJournal(j))
		require.Error(t, err)
		assert.Empty(t, j.Sessions)
		assert.Empty(t, j.Passes)
	})
}

func TestSetValue_Chain(t *testing.T) {
	s := load(t, testutil.ChainForm())

	res, err := s.SetValue(context.Background(), "/data/a", "3")
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Seq)
	assert.Equal(t, 3, res.Evaluated, "a and its two readers, each once")
	assert.Equal(t, []ir.Reference{"/data/a", "/data/b", "/data/c"}, refs(res.Changes))
	assert.Equal(t, "9", value(t, s, "/data/b"))
	assert.Equal(t, "60", value(t, s, "/data/c"))
}

func TestSetValue_StructuralErrors(t *testing.T) {
	s := load(t, testutil.ChainForm())
	ctx := context.Background()

	_, err := s.SetValue(ctx, "/data/zzz", "1")
	assert.True(t, instance.IsNotFound(err))

	_, err = s.SetValue(ctx, "/data", "1")
	var se *instance.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, instance.ErrCodeNotALeaf, se.Code)

	assert.Equal(t, int64(0), s.Seq(), "failed mutations consume no seq")
}

func TestSetValue_TypeValidity(t *testing.T) {
	s := load(t, testutil.ChainForm())

	_, err := s.SetValue(context.Background(), "/data/a", "abc")
	require.NoError(t, err)

	a := read(t, s, "/data/a")
	assert.False(t, a.Valid)
	assert.Equal(t, "", value(t, s, "/data/b"), "NaN stores as empty for int")

	_, err = s.SetValue(context.Background(), "/data/a", "2.9")
	require.NoError(t, err)
	assert.False(t, read(t, s, "/data/a").Valid)
	assert.Equal(t, "8", value(t, s, "/data/b"), "int calculations truncate")
}

func TestRelevance(t *testing.T) {
	s := load(t, testutil.RelevanceForm())
	ctx := context.Background()

	g := read(t, s, "/data/g")
	q := read(t, s, "/data/g/q")
	assert.False(t, g.Relevant)
	assert.False(t, q.Relevant, "relevance is inherited")
	assert.False(t, q.Required, "non-relevant nodes are never required")
	assert.True(t, q.Valid)
	assert.Equal(t, "", value(t, s, "/data/g/r"), "calculate does not run on non-relevant nodes")

	_, err := s.SetValue(ctx, "/data/toggle", "yes")
	require.NoError(t, err)
	q = read(t, s, "/data/g/q")
	assert.True(t, q.Relevant)
	assert.True(t, q.Required)
	assert.False(t, q.Valid, "required and empty")
	assert.Equal(t, "toggle is yes", value(t, s, "/data/g/r"))

	_, err = s.SetValue(ctx, "/data/toggle", "no")
	require.NoError(t, err)
	assert.False(t, read(t, s, "/data/g/r").Relevant)
	assert.Equal(t, "toggle is yes", value(t, s, "/data/g/r"), "non-relevant nodes keep their value")
}

func TestRelevance_GroupReadsOwnInput(t *testing.T) {
	form := &ir.FormDef{
		ID: "own-input",
		Root: testutil.Group("data",
			testutil.Group("g",
				testutil.Leaf("flag", testutil.Default("yes")),
				testutil.Leaf("q"),
			),
		),
		Binds: []ir.BindDef{
			{Nodeset: "/data/g", Relevant: "/data/g/flag = 'yes'"},
		},
	}
	s := load(t, form)
	ctx := context.Background()

	assert.True(t, read(t, s, "/data/g").Relevant)
	assert.True(t, read(t, s, "/data/g/flag").Relevant)

	_, err := s.SetValue(ctx, "/data/g/flag", "no")
	require.NoError(t, err)
	assert.False(t, read(t, s, "/data/g").Relevant)
	assert.False(t, read(t, s, "/data/g/flag").Relevant)
	assert.False(t, read(t, s, "/data/g/q").Relevant)

	_, err = s.SetValue(ctx, "/data/g/flag", "yes")
	require.NoError(t, err)
	assert.True(t, read(t, s, "/data/g").Relevant)
	assert.True(t, read(t, s, "/data/g/flag").Relevant)
	assert.True(t, read(t, s, "/data/g/q").Relevant)
}

func TestConstraintAndReadonly(t *testing.T) {
	s := load(t, testutil.RelevanceForm())
	ctx := context.Background()

	age := read(t, s, "/data/age")
	assert.True(t, age.Valid)
	assert.False(t, age.Readonly)

	_, err := s.SetValue(ctx, "/data/age", "12")
	require.NoError(t, err)
	assert.False(t, read(t, s, "/data/age").Valid)

	_, err = s.SetValue(ctx, "/data/toggle", "lock")
	require.NoError(t, err)
	assert.True(t, read(t, s, "/data/age").Readonly)
}

func TestRepeat_PerInstanceCalculation(t *testing.T) {
	s := load(t, testutil.RepeatForm())

	assert.Equal(t, "1", value(t, s, "/data/rep[1]/pos"))
	assert.Equal(t, "2", value(t, s, "/data/rep[2]/pos"))
	assert.Equal(t, "2", value(t, s, "/data/total"))
	assert.Equal(t, "2", value(t, s, "/data/n"))

	res, err := s.SetValue(context.Background(), "/data/rep[2]/x", "5")
	require.NoError(t, err)

	assert.Equal(t, "10", value(t, s, "/data/rep[2]/double"))
	assert.Equal(t, "2", value(t, s, "/data/rep[1]/double"))
	assert.Equal(t, "6", value(t, s, "/data/total"))
	assert.Equal(t, "5", value(t, s, "/data/second"))
	assert.Equal(t, 4, res.Evaluated, "the other instance is not touched")
	assert.Equal(t, []ir.Reference{
		"/data/rep[2]/x", "/data/rep[2]/double", "/data/total", "/data/second",
	}, refs(res.Changes))
}

func TestRepeat_Add(t *testing.T) {
	s := load(t, testutil.RepeatForm())
	ctx := context.Background()

	res, err := s.AddRepeatInstances(ctx, "/data/rep", 1)
	require.NoError(t, err)

	assert.Equal(t, "3", value(t, s, "/data/rep[3]/pos"))
	assert.Equal(t, "2", value(t, s, "/data/rep[3]/double"))
	assert.Equal(t, "3", value(t, s, "/data/total"))
	assert.Equal(t, "3", value(t, s, "/data/n"))
	assert.Contains(t, refs(res.Changes), ir.Reference("/data/rep[3]"))
	assert.Contains(t, refs(res.Changes), ir.Reference("/data/rep[3]/x"))
}

func TestRepeat_InsertRenumbers(t *testing.T) {
	s := load(t, testutil.RepeatForm())
	ctx := context.Background()

	_, err := s.SetValue(ctx, "/data/rep[1]/x", "7")
	require.NoError(t, err)
	_, err = s.AddRepeatInstancesAt(ctx, "/data/rep", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "1", value(t, s, "/data/rep[1]/x"))
	assert.Equal(t, "7", value(t, s, "/data/rep[2]/x"))
	assert.Equal(t, "2", value(t, s, "/data/rep[2]/pos"), "renumbered instances recompute position")
	assert.Equal(t, "3", value(t, s, "/data/rep[3]/pos"))
	assert.Equal(t, "7", value(t, s, "/data/second"), "literal positions follow renumbering")
}

func TestRepeat_Remove(t *testing.T) {
	s := load(t, testutil.RepeatForm())
	ctx := context.Background()

	_, err := s.SetValue(ctx, "/data/rep[2]/x", "5")
	require.NoError(t, err)

	var seen []ir.NodeSnapshot
	_, err = s.Subscribe("/data/rep[1]/x", func(snap ir.NodeSnapshot) { seen = append(seen, snap) })
	require.NoError(t, err)
	units, subs := s.graph.Units(), s.graph.Subscriptions()

	res, err := s.RemoveRepeatInstance(ctx, "/data/rep[1]")
	require.NoError(t, err)

	assert.Equal(t, []ir.Reference{
		"/data/rep[1]", "/data/rep[1]/x", "/data/rep[1]/pos", "/data/rep[1]/double",
	}, res.Removed)
	assert.Equal(t, units-4, s.graph.Units())
	assert.Equal(t, subs-2, s.graph.Subscriptions(), "pos and double subscriptions are released")
	assert.Equal(t, 0, s.watchers.len())

	assert.Equal(t, "5", value(t, s, "/data/rep[1]/x"))
	assert.Equal(t, "1", value(t, s, "/data/rep[1]/pos"))
	assert.Equal(t, "5", value(t, s, "/data/total"))
	assert.Equal(t, "1", value(t, s, "/data/n"))
	assert.Equal(t, "", value(t, s, "/data/second"))

	_, err = s.SetValue(ctx, "/data/rep[2]/x", "1")
	assert.True(t, instance.IsNotFound(err))

	_, err = s.SetValue(ctx, "/data/rep[1]/x", "6")
	require.NoError(t, err)
	assert.Empty(t, seen, "watchers of removed nodes are never called")
}

func TestRepeat_Errors(t *testing.T) {
	s := load(t, testutil.RepeatForm())
	ctx := context.Background()

	var se *instance.StructuralError
	_, err := s.AddRepeatInstances(ctx, "/data/rep", 4)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, instance.ErrCodeMaxExceeded, se.Code)

	_, err = s.RemoveRepeatInstance(ctx, "/data/rep")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, instance.ErrCodeNotAnInstance, se.Code)

	_, err = s.AddRepeatInstances(ctx, "/data/total", 1)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, instance.ErrCodeNotARange, se.Code)
	assert.Equal(t, int64(0), s.Seq())
}

func TestRepeat_AttachFailureRestoresDocument(t *testing.T) {
	s := load(t, testutil.RepeatForm())
	ctx := context.Background()

	_, err := s.SetValue(ctx, "/data/rep[1]/x", "7")
	require.NoError(t, err)
	units, subs := s.graph.Units(), s.graph.Subscriptions()

	reg := s.graph.registry
	s.graph.registry = bind.NewRegistry()
	_, err = s.AddRepeatInstancesAt(ctx, "/data/rep", 2, 1)
	require.Error(t, err)
	s.graph.registry = reg

	assert.Equal(t, int64(1), s.Seq())
	_, err = s.Read("/data/rep[3]")
	assert.True(t, instance.IsNotFound(err), "added instances are taken back out")
	assert.Equal(t, "7", value(t, s, "/data/rep[1]/x"))
	assert.Equal(t, units, s.graph.Units())
	assert.Equal(t, subs, s.graph.Subscriptions())

	_, err = s.AddRepeatInstances(ctx, "/data/rep", 1)
	require.NoError(t, err)
	assert.Equal(t, "3", value(t, s, "/data/rep[3]/pos"))
	assert.Equal(t, "3", value(t, s, "/data/n"))
}

func TestSecondaryInstance_Filter(t *testing.T) {
	s := load(t, testutil.CitiesForm())
	ctx := context.Background()

	assert.Equal(t, "3", value(t, s, "/data/count"))
	assert.Equal(t, "Lyon", value(t, s, "/data/first"))
	assert.Equal(t, "2", value(t, s, "/data/others"))

	_, err := s.SetValue(ctx, "/data/country", "de")
	require.NoError(t, err)
	assert.Equal(t, "1", value(t, s, "/data/count"))
	assert.Equal(t, "Bonn", value(t, s, "/data/first"))
	assert.Equal(t, "0", value(t, s, "/data/others"))

	_, err = s.SetValue(ctx, "/data/country", "xx")
	require.NoError(t, err)
	assert.Equal(t, "0", value(t, s, "/data/count"))
	assert.Equal(t, "", value(t, s, "/data/first"))
}

func TestRecompute_Idempotent(t *testing.T) {
	for _, form := range []*ir.FormDef{
		testutil.ChainForm(), testutil.RelevanceForm(), testutil.RepeatForm(),
		testutil.CitiesForm(), testutil.LanguageForm(),
	} {
		t.Run(form.ID, func(t *testing.T) {
			s := load(t, form)
			before := s.Snapshot()

			res, err := s.Recompute(context.Background())
			require.NoError(t, err)
			assert.Empty(t, res.Changes)
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestReentrantMutation(t *testing.T) {
	s := load(t, testutil.ChainForm())
	ctx := context.Background()

	var inner error
	cancel, err := s.Subscribe("/data/b", func(ir.NodeSnapshot) {
		_, inner = s.SetValue(ctx, "/data/a", "100")
	})
	require.NoError(t, err)

	_, err = s.SetValue(ctx, "/data/a", "3")
	require.NoError(t, err)
	require.Error(t, inner)
	assert.True(t, errors.Is(inner, ErrReentrantMutation))
	assert.True(t, IsReentrantError(inner))
	assert.Equal(t, "3", value(t, s, "/data/a"))

	cancel()
	_, err = s.SetValue(ctx, "/data/a", "4")
	require.NoError(t, err, "the guard is released after each pass")
	assert.Equal(t, "12", value(t, s, "/data/b"))
}

func TestSubscribe_FollowsNode(t *testing.T) {
	s := load(t, testutil.RepeatForm())
	ctx := context.Background()

	var got []ir.Reference
	_, err := s.Subscribe("/data/rep[2]/double", func(snap ir.NodeSnapshot) { got = append(got, snap.Ref) })
	require.NoError(t, err)

	_, err = s.AddRepeatInstancesAt(ctx, "/data/rep", 1, 1)
	require.NoError(t, err)
	_, err = s.SetValue(ctx, "/data/rep[3]/x", "4")
	require.NoError(t, err)

	assert.Equal(t, []ir.Reference{"/data/rep[3]/double"}, got)
}

type recordingNotifier struct {
	changed []ir.Reference
	removed []ir.Reference
}

func (n *recordingNotifier) NodeChanged(s ir.NodeSnapshot) { n.changed = append(n.changed, s.Ref) }
func (n *recordingNotifier) NodeRemoved(r ir.Reference)    { n.removed = append(n.removed, r) }

func TestNotifier_DocumentOrder(t *testing.T) {
	rec := &recordingNotifier{}
	s := load(t, testutil.RepeatForm(), WithNotifier(rec))
	assert.Len(t, rec.changed, 13, "the initial pass reports every node")

	rec.changed = nil
	_, err := s.RemoveRepeatInstance(context.Background(), "/data/rep[2]")
	require.NoError(t, err)

	assert.Equal(t, []ir.Reference{"/data/total", "/data/n", "/data/second"}, rec.changed)
	assert.Equal(t, []ir.Reference{
		"/data/rep[2]", "/data/rep[2]/x", "/data/rep[2]/pos", "/data/rep[2]/double",
	}, rec.removed)
}

func TestLanguage(t *testing.T) {
	s := load(t, testutil.LanguageForm())
	ctx := context.Background()

	assert.Equal(t, "English (en)", s.ActiveLanguage())
	assert.Equal(t, []string{"English (en)", "Français (fr)"}, s.Languages())
	q := read(t, s, "/data/q")
	assert.Equal(t, "Name", q.Label)
	assert.Equal(t, "Your full name", q.Hint)

	res, err := s.SetActiveLanguage(ctx, "Français (fr)")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated, "only labelled units re-evaluate")
	assert.Equal(t, []ir.Reference{"/data/q"}, refs(res.Changes))
	assert.Equal(t, "Nom", read(t, s, "/data/q").Label)
	assert.Equal(t, "Fixed", read(t, s, "/data/plain").Label)

	_, err = s.SetActiveLanguage(ctx, "Deutsch (de)")
	require.Error(t, err)
	assert.True(t, IsUnknownLanguageError(err))
	assert.Equal(t, "Français (fr)", s.ActiveLanguage())
}

func TestLanguage_Preferred(t *testing.T) {
	tests := []struct {
		preferred []string
		want      string
	}{
		{[]string{"fr-CA"}, "Français (fr)"},
		{[]string{"de", "fr"}, "Français (fr)"},
		{[]string{"ja"}, "English (en)"},
		{nil, "English (en)"},
	}
	for _, tt := range tests {
		s := load(t, testutil.LanguageForm(), WithPreferredLanguages(tt.preferred...))
		assert.Equal(t, tt.want, s.ActiveLanguage(), "preferred %v", tt.preferred)
	}
}

func TestEvalErrors_Degrade(t *testing.T) {
	form := &ir.FormDef{
		ID: "broken",
		Root: testutil.Group("data",
			testutil.Leaf("a", testutil.Default("x")),
			testutil.Leaf("b", testutil.Default("old")),
			testutil.Leaf("c"),
		),
		Binds: []ir.BindDef{
			{Nodeset: "/data/b", Calculate: "substring('a')"},
			{Nodeset: "/data/c", Relevant: "count('x') > 0", Constraint: "regex(/data/a, '(')"},
		},
	}
	j := &MemoryJournal{}
	s := load(t, form, WithJournal(j))

	assert.Equal(t, "", value(t, s, "/data/b"), "a failed calculation stores empty")
	c := read(t, s, "/data/c")
	assert.False(t, c.Relevant, "a failed relevant is false")
	require.Len(t, j.Passes, 1)
	assert.Equal(t, 2, j.Passes[0].EvalErrors)
}

func TestJournal_Records(t *testing.T) {
	j := &MemoryJournal{}
	s := load(t, testutil.RepeatForm(), WithJournal(j))
	ctx := context.Background()

	_, err := s.SetValue(ctx, "/data/rep[1]/x", "3")
	require.NoError(t, err)
	_, err = s.AddRepeatInstancesAt(ctx, "/data/rep", 2, 2)
	require.NoError(t, err)
	_, err = s.RemoveRepeatInstance(ctx, "/data/rep[4]")
	require.NoError(t, err)

	require.Len(t, j.Sessions, 1)
	assert.Equal(t, "session-1", j.Sessions[0].ID)
	assert.Equal(t, s.FormHash(), j.Sessions[0].FormHash)

	assert.Equal(t, []ir.MutationRecord{
		{SessionID: "session-1", Seq: 1, Kind: ir.MutationSetValue, Ref: "/data/rep[1]/x", Value: "3"},
		{SessionID: "session-1", Seq: 2, Kind: ir.MutationAddRepeat, Ref: "/data/rep", Count: 2, At: 2},
		{SessionID: "session-1", Seq: 3, Kind: ir.MutationRemoveRepeat, Ref: "/data/rep[4]"},
	}, j.Mutations)

	require.Len(t, j.Passes, 4)
	for i, p := range j.Passes {
		assert.Equal(t, int64(i), p.Seq)
	}
}

func TestEvaluate(t *testing.T) {
	s := load(t, testutil.RepeatForm())

	v, err := s.Evaluate("sum(/data/rep/x) + 1", "")
	require.NoError(t, err)
	assert.Equal(t, "3", xpath.ToString(v))

	v, err = s.Evaluate("../x * 10", "/data/rep[2]/double")
	require.NoError(t, err)
	assert.Equal(t, 10.0, xpath.ToNumber(v))

	v, err = s.Evaluate("name(.)", "")
	require.NoError(t, err)
	assert.Equal(t, "data", xpath.ToString(v))

	_, err = s.Evaluate("1 +", "")
	assert.True(t, xpath.IsParseError(err))

	_, err = s.Evaluate("1", "/data/none")
	assert.True(t, instance.IsNotFound(err))
}
