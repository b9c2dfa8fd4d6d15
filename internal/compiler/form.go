// Package compiler turns CUE form definitions into ir.FormDef and checks
// them before a session loads them.
package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/xforms/internal/ir"
)

//go:embed schema.cue
var schemaSource []byte

// formSchema compiles the embedded #Form definition in ctx. Values from
// different contexts cannot be unified, so the schema is compiled per
// caller context.
func formSchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile form schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Form")), nil
}

// CompileForm parses a CUE value into a FormDef.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is unified with the #Form schema first, so unknown fields,
// wrong kinds and missing required fields fail with their CUE position:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`form: { id: "chain", root: { name: "data" } }`)
//	form, err := CompileForm(v.LookupPath(cue.ParsePath("form")))
func CompileForm(v cue.Value) (*ir.FormDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "form", Message: "form is required"}
	}
	schema, err := formSchema(v.Context())
	if err != nil {
		return nil, err
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	form := &ir.FormDef{}
	if form.ID, err = stringField(v, "id"); err != nil {
		return nil, err
	}
	if form.Title, err = stringField(v, "title"); err != nil {
		return nil, err
	}
	if form.DefaultLanguage, err = stringField(v, "default_language"); err != nil {
		return nil, err
	}

	root, err := parseNode(v.LookupPath(cue.ParsePath("root")))
	if err != nil {
		return nil, err
	}
	form.Root = root

	if form.Binds, err = parseBinds(v); err != nil {
		return nil, err
	}
	if form.Secondary, err = parseSecondary(v); err != nil {
		return nil, err
	}
	if form.Languages, err = parseLanguages(v); err != nil {
		return nil, err
	}
	return form, nil
}

// parseNode converts a #Node. A node without an explicit kind is a group
// when it has children and a leaf otherwise.
func parseNode(v cue.Value) (ir.NodeDef, error) {
	var (
		n   ir.NodeDef
		err error
	)
	if n.Name, err = stringField(v, "name"); err != nil {
		return n, err
	}
	kind, err := stringField(v, "kind")
	if err != nil {
		return n, err
	}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"default", &n.Default},
		{"label", &n.Label},
		{"hint", &n.Hint},
	} {
		if *f.dst, err = stringField(v, f.name); err != nil {
			return n, err
		}
	}
	if n.Count, err = intField(v, "count"); err != nil {
		return n, err
	}
	if n.Max, err = intField(v, "max"); err != nil {
		return n, err
	}
	if n.Attributes, err = parseAttrs(v); err != nil {
		return n, err
	}

	err = eachElem(v, "children", func(c cue.Value) error {
		child, err := parseNode(c)
		if err != nil {
			return err
		}
		n.Children = append(n.Children, child)
		return nil
	})
	if err != nil {
		return n, err
	}

	switch {
	case kind != "":
		n.Kind = ir.NodeKind(kind)
	case len(n.Children) > 0:
		n.Kind = ir.KindGroup
	default:
		n.Kind = ir.KindLeaf
	}
	if n.Kind == ir.KindLeaf && len(n.Children) > 0 {
		return n, &CompileError{
			Field:   "children",
			Message: fmt.Sprintf("leaf %q cannot have children", n.Name),
			Pos:     v.Pos(),
		}
	}
	return n, nil
}

func parseAttrs(v cue.Value) ([]ir.AttrDef, error) {
	var attrs []ir.AttrDef
	err := eachElem(v, "attributes", func(a cue.Value) error {
		name, err := stringField(a, "name")
		if err != nil {
			return err
		}
		value, err := stringField(a, "value")
		if err != nil {
			return err
		}
		attrs = append(attrs, ir.AttrDef{Name: name, Value: value})
		return nil
	})
	return attrs, err
}

func parseBinds(v cue.Value) ([]ir.BindDef, error) {
	var binds []ir.BindDef
	err := eachElem(v, "binds", func(b cue.Value) error {
		var (
			def ir.BindDef
			err error
		)
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"nodeset", &def.Nodeset},
			{"type", &def.Type},
			{"calculate", &def.Calculate},
			{"relevant", &def.Relevant},
			{"readonly", &def.Readonly},
			{"required", &def.Required},
			{"constraint", &def.Constraint},
		} {
			if *f.dst, err = stringField(b, f.name); err != nil {
				return err
			}
		}
		binds = append(binds, def)
		return nil
	})
	return binds, err
}

func parseSecondary(v cue.Value) ([]ir.SecondaryInstance, error) {
	var out []ir.SecondaryInstance
	err := eachElem(v, "secondary", func(s cue.Value) error {
		id, err := stringField(s, "id")
		if err != nil {
			return err
		}
		root, err := parseData(s.LookupPath(cue.ParsePath("root")))
		if err != nil {
			return err
		}
		out = append(out, ir.SecondaryInstance{ID: id, Root: root})
		return nil
	})
	return out, err
}

func parseData(v cue.Value) (ir.DataNode, error) {
	var (
		d   ir.DataNode
		err error
	)
	if d.Name, err = stringField(v, "name"); err != nil {
		return d, err
	}
	if d.Text, err = stringField(v, "text"); err != nil {
		return d, err
	}
	if d.Attributes, err = parseAttrs(v); err != nil {
		return d, err
	}
	err = eachElem(v, "children", func(c cue.Value) error {
		child, err := parseData(c)
		if err != nil {
			return err
		}
		d.Children = append(d.Children, child)
		return nil
	})
	return d, err
}

// parseLanguages keeps declaration order for languages and reads texts
// into a map; text order carries no meaning.
func parseLanguages(v cue.Value) ([]ir.Language, error) {
	var out []ir.Language
	err := eachElem(v, "languages", func(l cue.Value) error {
		name, err := stringField(l, "name")
		if err != nil {
			return err
		}
		lang := ir.Language{Name: name}
		texts := l.LookupPath(cue.ParsePath("texts"))
		if texts.Exists() {
			iter, err := texts.Fields()
			if err != nil {
				return formatCUEError(err)
			}
			lang.Texts = make(map[string]string)
			for iter.Next() {
				s, err := iter.Value().String()
				if err != nil {
					return formatCUEError(err)
				}
				lang.Texts[iter.Label()] = s
			}
		}
		out = append(out, lang)
		return nil
	})
	return out, err
}

// stringField returns the string at field, or "" when it is absent.
func stringField(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func intField(v cue.Value, field string) (int, error) {
	f := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !f.Exists() {
		return 0, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// eachElem calls fn for every element of the list at field, if present.
func eachElem(v cue.Value, field string, fn func(cue.Value) error) error {
	list := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !list.Exists() {
		return nil
	}
	iter, err := list.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}
