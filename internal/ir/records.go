package ir

// NodeSnapshot is the computed state of one node at a point in time.
// It is what the UI collaborator receives when a node changes.
type NodeSnapshot struct {
	Ref      Reference `json:"ref"`
	Kind     string    `json:"kind"`
	Value    string    `json:"value"`
	Relevant bool      `json:"relevant"`
	Readonly bool      `json:"readonly"`
	Required bool      `json:"required"`
	Valid    bool      `json:"valid"`
	Label    string    `json:"label,omitempty"`
	Hint     string    `json:"hint,omitempty"`
}

// CanonicalMap converts the snapshot for MarshalCanonical.
func (s NodeSnapshot) CanonicalMap() map[string]any {
	m := map[string]any{
		"ref":      string(s.Ref),
		"kind":     s.Kind,
		"value":    s.Value,
		"relevant": s.Relevant,
		"readonly": s.Readonly,
		"required": s.Required,
		"valid":    s.Valid,
	}
	if s.Label != "" {
		m["label"] = s.Label
	}
	if s.Hint != "" {
		m["hint"] = s.Hint
	}
	return m
}

// MutationKind identifies an external mutation.
type MutationKind string

const (
	MutationSetValue     MutationKind = "set_value"
	MutationAddRepeat    MutationKind = "add_repeat"
	MutationRemoveRepeat MutationKind = "remove_repeat"
	MutationSetLanguage  MutationKind = "set_language"
)

// SessionRecord identifies one form session in the journal.
type SessionRecord struct {
	ID       string `json:"id"`
	FormID   string `json:"form_id"`
	FormHash string `json:"form_hash"`
	Language string `json:"language,omitempty"`
}

// MutationRecord is one external mutation, stamped with the session's
// logical clock. Value carries the raw value for set_value and the language
// name for set_language. At is the 1-based insertion position for
// add_repeat (0 appends).
type MutationRecord struct {
	SessionID string       `json:"session_id"`
	Seq       int64        `json:"seq"`
	Kind      MutationKind `json:"kind"`
	Ref       Reference    `json:"ref,omitempty"`
	Value     string       `json:"value,omitempty"`
	Count     int          `json:"count,omitempty"`
	At        int          `json:"at,omitempty"`
}

// PassRecord summarizes one settling pass. Seq 0 is the initial pass run at
// load; every other pass shares the seq of the mutation that caused it.
type PassRecord struct {
	SessionID  string         `json:"session_id"`
	Seq        int64          `json:"seq"`
	Affected   int            `json:"affected"`
	EvalErrors int            `json:"eval_errors"`
	Changes    []NodeSnapshot `json:"changes,omitempty"`
}
