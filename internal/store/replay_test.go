package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/engine"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/testutil"
)

func quiet() engine.SessionOption {
	return engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// recordSession runs a short repeat session journaled into s.
func recordSession(t *testing.T, s *Store) *engine.Session {
	t.Helper()
	ctx := context.Background()
	session, err := engine.Load(ctx, testutil.RepeatForm(),
		quiet(),
		engine.WithJournal(s),
		engine.WithIDGenerator(engine.NewFixedGenerator("journaled")),
	)
	require.NoError(t, err)

	_, err = session.SetValue(ctx, "/data/rep[1]/x", "4")
	require.NoError(t, err)
	_, err = session.AddRepeatInstancesAt(ctx, "/data/rep", 1, 1)
	require.NoError(t, err)
	_, err = session.RemoveRepeatInstance(ctx, "/data/rep[3]")
	require.NoError(t, err)
	return session
}

func TestJournal_EngineRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	session := recordSession(t, s)

	rec, err := s.ReadSession(ctx, "journaled")
	require.NoError(t, err)
	assert.Equal(t, session.FormHash(), rec.FormHash)
	assert.Equal(t, "repeats", rec.FormID)

	mutations, err := s.ReadMutations(ctx, "journaled")
	require.NoError(t, err)
	assert.Equal(t, []ir.MutationKind{ir.MutationSetValue, ir.MutationAddRepeat, ir.MutationRemoveRepeat},
		[]ir.MutationKind{mutations[0].Kind, mutations[1].Kind, mutations[2].Kind})

	passes, err := s.ReadPasses(ctx, "journaled")
	require.NoError(t, err)
	require.Len(t, passes, 4)
	assert.Len(t, passes[0].Changes, 13, "the load reports every node")

	seq, err := s.LastSeq(ctx, "journaled")
	require.NoError(t, err)
	assert.Equal(t, session.Seq(), seq)
}

func TestReplaySession_Identical(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	original := recordSession(t, s)

	replayed, report, err := s.ReplaySession(ctx, testutil.RepeatForm(), "journaled", quiet())
	require.NoError(t, err)

	assert.True(t, report.Identical(), "divergences: %+v", report.Divergences)
	assert.Equal(t, 3, report.Mutations)
	assert.Equal(t, 4, report.Passes)

	want, err := ir.SnapshotHash(original.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, want, report.SnapshotHash)
	assert.Equal(t, original.Snapshot(), replayed.Snapshot())

	passes, err := s.ReadPasses(ctx, "journaled")
	require.NoError(t, err)
	assert.Len(t, passes, 4, "replay does not write to the store")
}

func TestReplaySession_DetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	recordSession(t, s)

	_, err := s.db.Exec(`UPDATE node_changes SET snapshot = replace(snapshot, '"value":"4"', '"value":"5"') WHERE seq = 1`)
	require.NoError(t, err)

	_, report, err := s.ReplaySession(ctx, testutil.RepeatForm(), "journaled", quiet())
	require.NoError(t, err)
	require.False(t, report.Identical())
	assert.Equal(t, int64(1), report.Divergences[0].Seq)
	assert.Contains(t, report.Divergences[0].Diff, `"5"`)
}

func TestReplaySession_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	recordSession(t, s)

	_, _, err := s.ReplaySession(ctx, testutil.RepeatForm(), "missing", quiet())
	require.Error(t, err)

	_, _, err = s.ReplaySession(ctx, testutil.ChainForm(), "journaled", quiet())
	require.Error(t, err)
	var rtErr *engine.RuntimeError
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, engine.ErrCodeFormMismatch, rtErr.Code)
}

func TestComparePasses(t *testing.T) {
	a := ir.PassRecord{Seq: 0, Affected: 1, Changes: []ir.NodeSnapshot{snapshot("/data/a", "1")}}
	b := ir.PassRecord{Seq: 1, Affected: 1, Changes: []ir.NodeSnapshot{}}

	assert.Empty(t, comparePasses([]ir.PassRecord{a, {Seq: 1, Affected: 1}}, []ir.PassRecord{a, b}),
		"empty and nil change lists compare equal")

	divs := comparePasses([]ir.PassRecord{a}, []ir.PassRecord{b})
	require.Len(t, divs, 2)
	assert.Equal(t, Divergence{Seq: 0, Diff: "pass missing from replay"}, divs[0])
	assert.Equal(t, Divergence{Seq: 1, Diff: "pass missing from journal"}, divs[1])
}
