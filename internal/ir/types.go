package ir

// NodeKind identifies the structural role of a template node.
type NodeKind string

const (
	// KindGroup is an interior node owning a fixed set of children.
	KindGroup NodeKind = "group"

	// KindRepeat is a repeat range; its children describe one repeat instance.
	KindRepeat NodeKind = "repeat"

	// KindLeaf is a value-carrying node with no children.
	KindLeaf NodeKind = "leaf"
)

// Data types accepted on bind definitions.
const (
	TypeString   = "string"
	TypeInt      = "int"
	TypeDecimal  = "decimal"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeDateTime = "dateTime"
	TypeSelect   = "select"
	TypeSelect1  = "select1"
	TypeGeopoint = "geopoint"
	TypeBinary   = "binary"
)

// DataTypes lists every accepted data type in declaration order.
var DataTypes = []string{
	TypeString, TypeInt, TypeDecimal, TypeBoolean, TypeDate, TypeTime,
	TypeDateTime, TypeSelect, TypeSelect1, TypeGeopoint, TypeBinary,
}

// IsDataType reports whether t names an accepted data type.
// The empty string is accepted and means TypeString.
func IsDataType(t string) bool {
	if t == "" {
		return true
	}
	for _, dt := range DataTypes {
		if dt == t {
			return true
		}
	}
	return false
}

// FormDef is a fully parsed form definition.
//
// Root is the primary instance's document element (e.g. <data>). Binds are in
// declaration order; that order is the tie-breaker for every ordering decision
// the engine makes.
type FormDef struct {
	ID              string              `json:"id"`
	Title           string              `json:"title,omitempty"`
	Root            NodeDef             `json:"root"`
	Binds           []BindDef           `json:"binds,omitempty"`
	Secondary       []SecondaryInstance `json:"secondary,omitempty"`
	Languages       []Language          `json:"languages,omitempty"`
	DefaultLanguage string              `json:"default_language,omitempty"`
}

// NodeDef is one node of the primary instance template.
//
// Label and Hint are expressions, typically jr:itext('id') or a string literal.
// For repeats, Children describes one instance; Count instances are created
// when the document is instantiated and Max (when non-zero) caps the range.
type NodeDef struct {
	Name       string    `json:"name"`
	Kind       NodeKind  `json:"kind"`
	Default    string    `json:"default,omitempty"`
	Label      string    `json:"label,omitempty"`
	Hint       string    `json:"hint,omitempty"`
	Attributes []AttrDef `json:"attributes,omitempty"`
	Children   []NodeDef `json:"children,omitempty"`
	Count      int       `json:"count,omitempty"`
	Max        int       `json:"max,omitempty"`
}

// AttrDef is a named attribute with a fixed value.
type AttrDef struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BindDef declares the computed attributes for every node matching Nodeset.
// Empty expressions are absent.
type BindDef struct {
	Nodeset    string `json:"nodeset"`
	Type       string `json:"type,omitempty"`
	Calculate  string `json:"calculate,omitempty"`
	Relevant   string `json:"relevant,omitempty"`
	Readonly   string `json:"readonly,omitempty"`
	Required   string `json:"required,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// SecondaryInstance is a read-only auxiliary document addressed by
// instance('id') from expressions.
type SecondaryInstance struct {
	ID   string   `json:"id"`
	Root DataNode `json:"root"`
}

// DataNode is an element of a secondary instance.
type DataNode struct {
	Name       string     `json:"name"`
	Text       string     `json:"text,omitempty"`
	Attributes []AttrDef  `json:"attributes,omitempty"`
	Children   []DataNode `json:"children,omitempty"`
}

// Language is one translation set for jr:itext lookups.
// Name is the display name, optionally carrying a BCP 47 tag in
// parentheses, e.g. "English (en)".
type Language struct {
	Name  string            `json:"name"`
	Texts map[string]string `json:"texts,omitempty"`
}

// LanguageNames returns the declared language names in declaration order.
func (f *FormDef) LanguageNames() []string {
	names := make([]string, len(f.Languages))
	for i, l := range f.Languages {
		names[i] = l.Name
	}
	return names
}

// Language returns the translation set with the given name.
func (f *FormDef) Language(name string) (*Language, bool) {
	for i := range f.Languages {
		if f.Languages[i].Name == name {
			return &f.Languages[i], true
		}
	}
	return nil, false
}

// SecondaryIDs returns the declared secondary instance ids.
func (f *FormDef) SecondaryIDs() []string {
	ids := make([]string, len(f.Secondary))
	for i, s := range f.Secondary {
		ids[i] = s.ID
	}
	return ids
}
