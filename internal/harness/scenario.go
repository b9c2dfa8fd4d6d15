package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xforms/internal/ir"
)

// Scenario is a scripted form session with expectations.
// It loads one form, optionally checks the state after the initial pass,
// then applies steps in order, checking node states after each.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Form is the path to the CUE form file. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Form string `yaml:"form"`

	// SessionID is an optional fixed session id for deterministic traces.
	// If empty, defaults to "test-session-default".
	SessionID string `yaml:"session_id,omitempty"`

	// Languages are preferred BCP 47 tags for the initial language.
	Languages []string `yaml:"languages,omitempty"`

	// ExpectLoadError is the error code loading must fail with, e.g.
	// CYCLE_DETECTED. A scenario expecting a load error has no steps.
	ExpectLoadError string `yaml:"expect_load_error,omitempty"`

	// Initial holds expectations checked after the initial pass.
	Initial map[ir.Reference]NodeExpect `yaml:"initial,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps,omitempty"`
}

// Step is one mutation. Exactly one of Set, AddRepeat, RemoveRepeat and
// Language is given.
type Step struct {
	Set          *SetStep       `yaml:"set,omitempty"`
	AddRepeat    *AddRepeatStep `yaml:"add_repeat,omitempty"`
	RemoveRepeat ir.Reference   `yaml:"remove_repeat,omitempty"`
	Language     string         `yaml:"language,omitempty"`

	// ExpectError is the error code the mutation must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Expect holds node expectations checked after the step settles.
	Expect map[ir.Reference]NodeExpect `yaml:"expect,omitempty"`
}

// SetStep sets a leaf value.
type SetStep struct {
	Ref   ir.Reference `yaml:"ref"`
	Value string       `yaml:"value"`
}

// AddRepeatStep inserts repeat instances. At 0 appends.
type AddRepeatStep struct {
	Ref   ir.Reference `yaml:"ref"`
	Count int          `yaml:"count"`
	At    int          `yaml:"at,omitempty"`
}

// NodeExpect is a partial expectation on one node. Only the fields given
// are checked. Absent expects that no node exists at the reference.
type NodeExpect struct {
	Value    *string `yaml:"value,omitempty"`
	Relevant *bool   `yaml:"relevant,omitempty"`
	Readonly *bool   `yaml:"readonly,omitempty"`
	Required *bool   `yaml:"required,omitempty"`
	Valid    *bool   `yaml:"valid,omitempty"`
	Label    *string `yaml:"label,omitempty"`
	Hint     *string `yaml:"hint,omitempty"`
	Absent   bool    `yaml:"absent,omitempty"`
}

// Step operation names, as they appear in traces.
const (
	OpLoad         = "load"
	OpSet          = "set"
	OpAddRepeat    = "add_repeat"
	OpRemoveRepeat = "remove_repeat"
	OpLanguage     = "language"
)

// Op names the operation the step performs, or "" if it names none or
// more than one.
func (s *Step) Op() string {
	var ops []string
	if s.Set != nil {
		ops = append(ops, OpSet)
	}
	if s.AddRepeat != nil {
		ops = append(ops, OpAddRepeat)
	}
	if s.RemoveRepeat != "" {
		ops = append(ops, OpRemoveRepeat)
	}
	if s.Language != "" {
		ops = append(ops, OpLanguage)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The form path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(scenario.Form) {
		scenario.Form = filepath.Join(filepath.Dir(path), scenario.Form)
	}
	if _, err := os.Stat(scenario.Form); err != nil {
		return nil, fmt.Errorf("invalid scenario: form file not found: %s", scenario.Form)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "expects:" vs "expect:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Form == "" {
		return fmt.Errorf("form is required")
	}

	if s.ExpectLoadError != "" {
		if len(s.Steps) > 0 || len(s.Initial) > 0 {
			return fmt.Errorf("a scenario expecting a load error cannot have initial expectations or steps")
		}
		return nil
	}

	if err := validateExpects("initial", s.Initial); err != nil {
		return err
	}
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Op() == "" {
			return fmt.Errorf("steps[%d]: exactly one of set, add_repeat, remove_repeat, language is required", i)
		}
		if step.Set != nil && step.Set.Ref == "" {
			return fmt.Errorf("steps[%d].set: ref is required", i)
		}
		if step.AddRepeat != nil {
			if step.AddRepeat.Ref == "" {
				return fmt.Errorf("steps[%d].add_repeat: ref is required", i)
			}
			if step.AddRepeat.Count == 0 {
				step.AddRepeat.Count = 1
			}
		}
		if step.ExpectError != "" && len(step.Expect) > 0 {
			return fmt.Errorf("steps[%d]: expect_error and expect are exclusive", i)
		}
		if err := validateExpects(fmt.Sprintf("steps[%d].expect", i), step.Expect); err != nil {
			return err
		}
	}
	return nil
}

func validateExpects(field string, expects map[ir.Reference]NodeExpect) error {
	for ref, e := range expects {
		if _, err := ir.ParseReference(string(ref)); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if e.Absent && e != (NodeExpect{Absent: true}) {
			return fmt.Errorf("%s[%s]: absent cannot be combined with other fields", field, ref)
		}
	}
	return nil
}
