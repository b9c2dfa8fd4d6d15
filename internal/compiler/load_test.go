package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFormFile(t *testing.T) {
	form, err := LoadFormFile(filepath.Join("testdata", "chain.cue"))
	require.NoError(t, err)

	assert.Equal(t, "chain", form.ID)
	assert.Len(t, form.Root.Children, 3)
	assert.Len(t, form.Binds, 3)
	assert.Empty(t, Validate(form))
}

func TestLoadFormFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFormFile(filepath.Join(t.TempDir(), "nope.cue"))
		require.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := LoadFormFile(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})

	t.Run("no form field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.cue")
		require.NoError(t, os.WriteFile(path, []byte("other: 1\n"), 0o644))
		_, err := LoadFormFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no form field")
	})

	t.Run("syntax error has position", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.cue")
		require.NoError(t, os.WriteFile(path, []byte("form: {id: \n"), 0o644))
		_, err := LoadFormFile(path)
		require.Error(t, err)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.True(t, ce.Pos.IsValid())
	})
}

func TestLoadFormSource(t *testing.T) {
	form, err := LoadFormSource("inline.cue", []byte(`form: {id: "inline", root: {name: "data"}}`))
	require.NoError(t, err)
	assert.Equal(t, "inline", form.ID)

	_, err = LoadFormSource("inline.cue", []byte(`form: {id: "inline", root: {name: "data", colour: "red"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}
