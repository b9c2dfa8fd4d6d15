package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Reference is the structural address of one node in a document instance.
//
// Format: "/data/rep[2]/name". Positional predicates are 1-based and only
// appear on repeat instances. The document root is the empty reference and
// attributes use an "@" step: "/data/q/@kind".
type Reference string

// RootReference addresses the document root.
const RootReference Reference = ""

// Step is one parsed step of a Reference.
// Pos is 0 when the step carries no positional predicate.
type Step struct {
	Name string
	Pos  int
}

// String renders the step in reference syntax.
func (s Step) String() string {
	if s.Pos > 0 {
		return s.Name + "[" + strconv.Itoa(s.Pos) + "]"
	}
	return s.Name
}

// ParseReference validates and normalizes an absolute reference.
func ParseReference(s string) (Reference, error) {
	steps, err := parseSteps(s)
	if err != nil {
		return "", err
	}
	return FromSteps(steps), nil
}

// MustParseReference is ParseReference for tests and constants.
func MustParseReference(s string) Reference {
	r, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return r
}

// FromSteps builds a reference from parsed steps.
func FromSteps(steps []Step) Reference {
	if len(steps) == 0 {
		return RootReference
	}
	var b strings.Builder
	for _, s := range steps {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return Reference(b.String())
}

func parseSteps(s string) ([]Step, error) {
	if s == "" || s == "/" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("reference %q: must be absolute", s)
	}
	parts := strings.Split(s[1:], "/")
	steps := make([]Step, 0, len(parts))
	for i, p := range parts {
		step, err := parseStep(p)
		if err != nil {
			return nil, fmt.Errorf("reference %q: step %d: %w", s, i+1, err)
		}
		if strings.HasPrefix(step.Name, "@") && i != len(parts)-1 {
			return nil, fmt.Errorf("reference %q: attribute step must be last", s)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(p string) (Step, error) {
	if p == "" {
		return Step{}, fmt.Errorf("empty step")
	}
	name := p
	pos := 0
	if open := strings.IndexByte(p, '['); open >= 0 {
		if !strings.HasSuffix(p, "]") {
			return Step{}, fmt.Errorf("unterminated predicate in %q", p)
		}
		n, err := strconv.Atoi(p[open+1 : len(p)-1])
		if err != nil || n < 1 {
			return Step{}, fmt.Errorf("predicate in %q must be a positive integer", p)
		}
		name, pos = p[:open], n
	}
	if !isStepName(name) {
		return Step{}, fmt.Errorf("invalid name %q", name)
	}
	return Step{Name: name, Pos: pos}, nil
}

func isStepName(name string) bool {
	name = strings.TrimPrefix(name, "@")
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == ':' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r > 0x7f:
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// Steps returns the parsed steps. Invalid references yield nil.
func (r Reference) Steps() []Step {
	steps, err := parseSteps(string(r))
	if err != nil {
		return nil
	}
	return steps
}

// Depth returns the number of steps.
func (r Reference) Depth() int {
	if r == RootReference {
		return 0
	}
	return strings.Count(string(r), "/")
}

// Parent returns the reference of the parent node. The root is its own parent.
func (r Reference) Parent() Reference {
	i := strings.LastIndexByte(string(r), '/')
	if i <= 0 {
		return RootReference
	}
	return r[:i]
}

// Child returns the reference of the named child.
func (r Reference) Child(name string) Reference {
	return r + Reference("/"+name)
}

// Indexed returns r with its last step's positional predicate set to pos.
func (r Reference) Indexed(pos int) Reference {
	steps := r.Steps()
	if len(steps) == 0 {
		return r
	}
	steps[len(steps)-1].Pos = pos
	return FromSteps(steps)
}

// Last returns the final step.
func (r Reference) Last() Step {
	steps := r.Steps()
	if len(steps) == 0 {
		return Step{}
	}
	return steps[len(steps)-1]
}

// Pattern strips every positional predicate, yielding the
// instance-independent template address used to key binds.
func (r Reference) Pattern() Reference {
	if !strings.Contains(string(r), "[") {
		return r
	}
	steps := r.Steps()
	for i := range steps {
		steps[i].Pos = 0
	}
	return FromSteps(steps)
}

// IsAncestorOf reports whether r is a proper ancestor of other.
func (r Reference) IsAncestorOf(other Reference) bool {
	if r == RootReference {
		return other != RootReference
	}
	return strings.HasPrefix(string(other), string(r)+"/")
}

// IsAncestorOrSelf reports whether r equals other or is an ancestor of it.
func (r Reference) IsAncestorOrSelf(other Reference) bool {
	return r == other || r.IsAncestorOf(other)
}

// String implements fmt.Stringer. The root renders as "/".
func (r Reference) String() string {
	if r == RootReference {
		return "/"
	}
	return string(r)
}
