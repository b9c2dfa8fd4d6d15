package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidForm(t *testing.T) {
	out, err := execute(t, "validate", formPath("chain"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Form chain is valid")
}

func TestValidate_ValidFormJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", formPath("repeats"))
	require.NoError(t, err)

	resp, result := decodeResponse[ValidationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "repeats", result.Form)
	assert.True(t, result.Valid)
	assert.Positive(t, result.Binds)
}

func TestValidate_Cycle(t *testing.T) {
	out, err := execute(t, "validate", formPath("cycle"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeCycle)
}

func TestValidate_CycleJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", formPath("cycle"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, result := decodeResponse[ValidationResult](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCycle, resp.Error.Code)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "binds", result.Errors[0].Field)
}

func TestValidate_UnknownNodeset(t *testing.T) {
	out, err := execute(t, "validate", formPath("unknown_nodeset"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "/data/missing")
}

func TestValidate_SyntaxError(t *testing.T) {
	out, err := execute(t, "validate", formPath("broken"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
}

func TestValidate_FileNotFound(t *testing.T) {
	out, err := execute(t, "validate", formPath("missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidate_NotACueFile(t *testing.T) {
	_, err := execute(t, "validate", "validate_test.go")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not a CUE file")
}

func TestCheckForm(t *testing.T) {
	form, err := LoadForm(formPath("chain"))
	require.NoError(t, err)

	reg, errs := CheckForm(form)
	assert.Empty(t, errs)
	require.NotNil(t, reg)
	assert.NotEmpty(t, reg.Order())

	form, err = LoadForm(formPath("cycle"))
	require.NoError(t, err)
	reg, errs = CheckForm(form)
	assert.Nil(t, reg)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeCycle, errs[0].Code)
}
