package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Validation error codes (E200-E299)
const (
	ErrFormIDEmpty         = "E201" // form id is required
	ErrInvalidRoot         = "E202" // root must be a named group
	ErrInvalidNodeName     = "E203" // node name is not a valid XML name
	ErrDuplicateNodeName   = "E204" // sibling nodes share a name
	ErrInvalidRepeat       = "E205" // repeat count/max out of range
	ErrInvalidNodeset      = "E206" // bind nodeset is not a reference
	ErrUnknownNodeset      = "E207" // bind nodeset matches no template node
	ErrDuplicateBind       = "E208" // two binds share a nodeset
	ErrUnknownDataType     = "E209" // unknown bind type
	ErrCalculateOnNonLeaf  = "E210" // calculate on a group or repeat
	ErrInvalidExpression   = "E211" // expression does not parse
	ErrUnknownInstance     = "E212" // instance('id') names no secondary instance
	ErrDuplicateInstance   = "E213" // secondary instance ids collide
	ErrDuplicateLanguage   = "E214" // language names collide
	ErrUnknownDefaultLang  = "E215" // default_language is not declared
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled form against the rules the engine relies on.
// Returns all errors found (does not fail-fast), in form order.
//
// Dependency cycles are not checked here: they need the bind graph, which
// bind.Load builds.
func Validate(form *ir.FormDef) []ValidationError {
	v := &validator{templates: make(map[ir.Reference]*ir.NodeDef)}

	if strings.TrimSpace(form.ID) == "" {
		v.add("id", ErrFormIDEmpty, "form id is required and must be non-empty")
	}
	v.validateRoot(&form.Root)

	secondary := make(map[string]bool)
	for i, s := range form.Secondary {
		if secondary[s.ID] {
			v.add(fmt.Sprintf("secondary[%d].id", i), ErrDuplicateInstance,
				fmt.Sprintf("duplicate secondary instance id %q", s.ID))
		}
		secondary[s.ID] = true
	}

	v.validateBinds(form.Binds, secondary)
	v.validateTemplateExprs(&form.Root, "root", secondary)

	languages := make(map[string]bool)
	for i, l := range form.Languages {
		if languages[l.Name] {
			v.add(fmt.Sprintf("languages[%d].name", i), ErrDuplicateLanguage,
				fmt.Sprintf("duplicate language %q", l.Name))
		}
		languages[l.Name] = true
	}
	if form.DefaultLanguage != "" && !languages[form.DefaultLanguage] {
		v.add("default_language", ErrUnknownDefaultLang,
			fmt.Sprintf("default language %q is not declared", form.DefaultLanguage))
	}
	return v.errs
}

type validator struct {
	errs      []ValidationError
	templates map[ir.Reference]*ir.NodeDef
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (v *validator) validateRoot(root *ir.NodeDef) {
	if root.Kind != ir.KindGroup {
		v.add("root.kind", ErrInvalidRoot,
			fmt.Sprintf("root must be a group, got %q", root.Kind))
	}
	v.validateNode(root, "root", ir.RootReference)
}

func (v *validator) validateNode(n *ir.NodeDef, field string, parent ir.Reference) {
	if !validName(n.Name) {
		v.add(field+".name", ErrInvalidNodeName, fmt.Sprintf("invalid node name %q", n.Name))
		return
	}
	ref := parent.Child(n.Name)
	v.templates[ref] = n

	switch n.Kind {
	case ir.KindRepeat:
		if n.Count < 0 || n.Max < 0 {
			v.add(field, ErrInvalidRepeat, fmt.Sprintf("repeat %q: count and max must not be negative", n.Name))
		} else if n.Max > 0 && n.Count > n.Max {
			v.add(field+".count", ErrInvalidRepeat,
				fmt.Sprintf("repeat %q: count %d exceeds max %d", n.Name, n.Count, n.Max))
		}
	default:
		if n.Count != 0 || n.Max != 0 {
			v.add(field, ErrInvalidRepeat, fmt.Sprintf("%s %q cannot set count or max", n.Kind, n.Name))
		}
	}

	seen := make(map[string]bool)
	for i := range n.Children {
		c := &n.Children[i]
		childField := fmt.Sprintf("%s.children[%d]", field, i)
		if seen[c.Name] {
			v.add(childField+".name", ErrDuplicateNodeName,
				fmt.Sprintf("duplicate child %q under %s", c.Name, ref))
			continue
		}
		seen[c.Name] = true
		v.validateNode(c, childField, ref)
	}
}

func (v *validator) validateBinds(binds []ir.BindDef, secondary map[string]bool) {
	seen := make(map[ir.Reference]bool)
	for i, b := range binds {
		field := fmt.Sprintf("binds[%d]", i)

		ref, err := ir.ParseReference(b.Nodeset)
		if err != nil || ref == ir.RootReference {
			v.add(field+".nodeset", ErrInvalidNodeset, fmt.Sprintf("invalid nodeset %q", b.Nodeset))
			continue
		}
		ref = ref.Pattern()
		def, ok := v.templates[ref]
		if !ok {
			v.add(field+".nodeset", ErrUnknownNodeset,
				fmt.Sprintf("nodeset %s matches no template node", ref))
		}
		if seen[ref] {
			v.add(field+".nodeset", ErrDuplicateBind, fmt.Sprintf("duplicate bind for %s", ref))
		}
		seen[ref] = true

		if !ir.IsDataType(b.Type) {
			v.add(field+".type", ErrUnknownDataType, fmt.Sprintf("unknown data type %q", b.Type))
		}
		if ok && b.Calculate != "" && def.Kind != ir.KindLeaf {
			v.add(field+".calculate", ErrCalculateOnNonLeaf,
				fmt.Sprintf("calculate on %s %s", def.Kind, ref))
		}

		for _, e := range []struct{ name, src string }{
			{"calculate", b.Calculate},
			{"relevant", b.Relevant},
			{"readonly", b.Readonly},
			{"required", b.Required},
			{"constraint", b.Constraint},
		} {
			v.validateExpr(field+"."+e.name, e.src, secondary)
		}
	}
}

func (v *validator) validateTemplateExprs(n *ir.NodeDef, field string, secondary map[string]bool) {
	v.validateExpr(field+".label", n.Label, secondary)
	v.validateExpr(field+".hint", n.Hint, secondary)
	for i := range n.Children {
		v.validateTemplateExprs(&n.Children[i], fmt.Sprintf("%s.children[%d]", field, i), secondary)
	}
}

func (v *validator) validateExpr(field, src string, secondary map[string]bool) {
	if src == "" {
		return
	}
	expr, err := xpath.Parse(src)
	if err != nil {
		v.add(field, ErrInvalidExpression, err.Error())
		return
	}
	xpath.Walk(expr, func(x xpath.Expr) bool {
		c, ok := x.(*xpath.Call)
		if !ok || c.Name != "instance" || len(c.Args) != 1 {
			return true
		}
		if lit, ok := c.Args[0].(*xpath.StringLit); ok && !secondary[lit.Value] {
			v.add(field, ErrUnknownInstance, fmt.Sprintf("unknown secondary instance %q", lit.Value))
		}
		return true
	})
}

// validName reports whether name can be a single reference step.
func validName(name string) bool {
	if strings.ContainsAny(name, "[]/@") {
		return false
	}
	_, err := ir.ParseReference("/" + name)
	return err == nil
}
