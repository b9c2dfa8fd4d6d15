package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/xforms/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	SessionID    string       `json:"session_id"`
	SnapshotHash string       `json:"snapshot_hash,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, maps and slices.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step": event.Step,
			"op":   event.Op,
		}
		if event.Ref != "" {
			eventMap["ref"] = string(event.Ref)
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
			traceList[i] = eventMap
			continue
		}
		eventMap["seq"] = event.Seq
		eventMap["evaluated"] = event.Evaluated
		eventMap["eval_errors"] = event.EvalErrors

		changes := make([]any, len(event.Changes))
		for j, c := range event.Changes {
			changes[j] = c.CanonicalMap()
		}
		eventMap["changes"] = changes
		if len(event.Removed) > 0 {
			removed := make([]string, len(event.Removed))
			for j, r := range event.Removed {
				removed[j] = string(r)
			}
			eventMap["removed"] = removed
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"session_id":    s.SessionID,
		"trace":         traceList,
	}
	if s.SnapshotHash != "" {
		result["snapshot_hash"] = s.SnapshotHash
	}
	return result
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GoldenBytes renders a result's trace as the canonical JSON stored in
// golden files.
func GoldenBytes(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		SessionID:    result.SessionID,
		SnapshotHash: result.SnapshotHash,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := GoldenBytes(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
