package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/ir"
)

// Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_ChainUpdate(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "chain_update"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_CycleRejected(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "cycle_rejected"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestGoldenBytes_Canonical(t *testing.T) {
	result := &Result{
		SessionID: "s-1",
		Trace: []TraceEvent{
			{Op: OpLoad, Changes: []ir.NodeSnapshot{{Ref: "/d", Kind: "group", Relevant: true, Valid: true}}},
			{Step: 1, Op: OpSet, Ref: "/d/x", Error: "NOT_FOUND"},
		},
	}
	got, err := GoldenBytes("tiny", result)
	require.NoError(t, err)

	want := `{"scenario_name":"tiny","session_id":"s-1","trace":[` +
		`{"changes":[{"kind":"group","readonly":false,"ref":"/d","relevant":true,"required":false,"valid":true,"value":""}],"eval_errors":0,"evaluated":0,"op":"load","seq":0,"step":0},` +
		`{"error":"NOT_FOUND","op":"set","ref":"/d/x","step":1}]}`
	assert.Equal(t, want, string(got))
}

func TestGoldenBytes_Stable(t *testing.T) {
	result := runPassing(t, "repeat_lifecycle")
	first, err := GoldenBytes("repeat_lifecycle", result)
	require.NoError(t, err)
	second, err := GoldenBytes("repeat_lifecycle", result)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
