// Package harness runs scripted form sessions as conformance tests.
//
// A scenario names a form, the expected state after the initial pass and
// a list of mutations, each with the node states it should produce. The
// harness drives a real engine session, so a passing scenario exercises
// the compiler, the bind registry and the scheduler end to end.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: chain_update
//	description: "b and c follow a"
//	form: ../forms/chain.cue
//	session_id: chain-0001
//	languages: [fr]
//	initial:
//	  /data/c: { value: "40" }
//	steps:
//	  - set: { ref: /data/a, value: "3" }
//	    expect:
//	      /data/b: { value: "9" }
//	  - add_repeat: { ref: /data/rep, count: 1, at: 1 }
//	  - remove_repeat: /data/rep[2]
//	  - language: "Français (fr)"
//	  - set: { ref: /data/missing, value: "1" }
//	    expect_error: NOT_FOUND
//
// A scenario whose form must fail to load sets expect_load_error to the
// error code instead, e.g. CYCLE_DETECTED.
//
// # Deterministic Testing
//
// Sessions run with a fixed session id and the engine's logical clock, so
// the same scenario always produces the same trace. The trace and the
// final snapshot hash are compared against golden files with
// RunWithGolden.
//
// After the last step the harness replays the session's journal into a
// fresh session and fails the scenario if the final states differ.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/chain.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
