package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/ir"
)

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"calculated leaf", []string{formPath("chain"), "/data/c"}, "40"},
		{"after set", []string{formPath("chain"), "/data/c", "--set", "/data/a=3"}, "60"},
		{"arithmetic", []string{formPath("chain"), "/data/a + /data/b"}, "8"},
		{"count repeat", []string{formPath("repeats"), "count(/data/rep)"}, "2"},
		{"sum repeat", []string{formPath("repeats"), "sum(/data/rep/x)"}, "2"},
		{"relative context", []string{formPath("repeats"), "../x * 2", "--context", "/data/rep[2]/double"}, "2"},
		{"boolean", []string{formPath("chain"), "/data/a = 2"}, "true"},
		{"active language", []string{formPath("languages"), "jr:itext('q-label')", "--lang", "Français (fr)"}, "Nom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"eval"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}
}

func TestEval_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "eval", formPath("repeats"), "/data/rep/x")
	require.NoError(t, err)

	resp, result := decodeResponse[EvalResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "node-set", result.Type)
	assert.Equal(t, "1", result.Value)
	assert.Equal(t, []string{"/data/rep[1]/x", "/data/rep[2]/x"}, result.Nodes)
}

func TestEval_ParseError(t *testing.T) {
	out, err := execute(t, "eval", formPath("chain"), "/data/a +")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeEval)
}

func TestEval_UnknownContext(t *testing.T) {
	_, err := execute(t, "eval", formPath("chain"), ".", "--context", "/data/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEval_BadSet(t *testing.T) {
	_, err := execute(t, "eval", formPath("chain"), "/data/a", "--set", "/data/a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeBadFlag)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"/data/a=1", "/data/b=", "/data/c=x=y"})
	require.NoError(t, err)
	assert.Equal(t, []Assignment{
		{Ref: "/data/a", Value: "1"},
		{Ref: "/data/b", Value: ""},
		{Ref: "/data/c", Value: "x=y"},
	}, got)

	_, err = parseAssignments([]string{"=1"})
	require.Error(t, err)

	_, err = parseAssignments([]string{"novalue"})
	require.Error(t, err)
}

func TestValueType(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 1", "number"},
		{"'a'", "string"},
		{"true()", "boolean"},
		{"/data/a", "node-set"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			out, err := execute(t, "--format", "json", "eval", formPath("chain"), tt.expr)
			require.NoError(t, err)
			_, result := decodeResponse[EvalResult](t, out)
			assert.Equal(t, tt.want, result.Type)
			assert.Equal(t, ir.Reference(""), result.Context)
		})
	}
}
