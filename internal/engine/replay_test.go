package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/testutil"
)

// record runs a fixed mutation script against a journaled session.
func record(t *testing.T, form *ir.FormDef) (*Session, *MemoryJournal) {
	t.Helper()
	j := &MemoryJournal{}
	s := load(t, form, WithJournal(j))
	ctx := context.Background()

	_, err := s.SetValue(ctx, "/data/rep[1]/x", "4")
	require.NoError(t, err)
	_, err = s.AddRepeatInstancesAt(ctx, "/data/rep", 2, 1)
	require.NoError(t, err)
	_, err = s.SetValue(ctx, "/data/rep[2]/x", "9")
	require.NoError(t, err)
	_, err = s.RemoveRepeatInstance(ctx, "/data/rep[3]")
	require.NoError(t, err)
	return s, j
}

func TestReplay_ReproducesFinalState(t *testing.T) {
	original, j := record(t, testutil.RepeatForm())

	replayed, err := Replay(context.Background(), testutil.RepeatForm(), j.Sessions[0], j.Mutations, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, original.ID(), replayed.ID())
	assert.Equal(t, original.Seq(), replayed.Seq())
	assert.Equal(t, original.Snapshot(), replayed.Snapshot())

	h1, err := ir.SnapshotHash(original.Snapshot())
	require.NoError(t, err)
	h2, err := ir.SnapshotHash(replayed.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestReplay_OrdersBySeq(t *testing.T) {
	original, j := record(t, testutil.RepeatForm())

	reversed := make([]ir.MutationRecord, len(j.Mutations))
	for i, m := range j.Mutations {
		reversed[len(reversed)-1-i] = m
	}
	replayed, err := Replay(context.Background(), testutil.RepeatForm(), j.Sessions[0], reversed, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, original.Snapshot(), replayed.Snapshot())
}

func TestReplay_Language(t *testing.T) {
	j := &MemoryJournal{}
	s := load(t, testutil.LanguageForm(), WithJournal(j), WithPreferredLanguages("fr"))
	require.Equal(t, "Français (fr)", s.ActiveLanguage())

	replayed, err := Replay(context.Background(), testutil.LanguageForm(), j.Sessions[0], j.Mutations, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "Français (fr)", replayed.ActiveLanguage())
	assert.Equal(t, "Nom", read(t, replayed, "/data/q").Label)
}

func TestReplay_Errors(t *testing.T) {
	_, j := record(t, testutil.RepeatForm())
	ctx := context.Background()

	t.Run("form mismatch", func(t *testing.T) {
		_, err := Replay(ctx, testutil.ChainForm(), j.Sessions[0], j.Mutations, WithLogger(quietLogger()))
		require.Error(t, err)
		assert.True(t, hasCode(err, ErrCodeFormMismatch))
	})

	t.Run("gap in journal", func(t *testing.T) {
		_, err := Replay(ctx, testutil.RepeatForm(), j.Sessions[0], j.Mutations[1:], WithLogger(quietLogger()))
		require.Error(t, err)
		assert.True(t, hasCode(err, ErrCodeInvalidMutation))
	})

	t.Run("unknown kind", func(t *testing.T) {
		bad := []ir.MutationRecord{{Seq: 1, Kind: "rename"}}
		_, err := Replay(ctx, testutil.RepeatForm(), j.Sessions[0], bad, WithLogger(quietLogger()))
		require.Error(t, err)
		assert.True(t, hasCode(err, ErrCodeInvalidMutation))
	})
}
