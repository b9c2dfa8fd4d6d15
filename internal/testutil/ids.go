package testutil

// FixedSessionGenerator returns the same session id every time.
//
// The same scenario with the same FixedSessionGenerator produces
// byte-identical journals and traces.
//
// Unlike engine.FixedGenerator, which returns ids in sequence and panics
// when they run out, this generator never runs out. Scenarios that replay
// a session load it twice under one id.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a fixed session id generator.
//
// The id is typically set in the scenario YAML:
//
//	session_id: "test-session-0001"
//
// If id is empty, Generate() returns "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session id.
//
// Implements engine.IDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
