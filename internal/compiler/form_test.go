package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xforms/internal/ir"
)

func compileString(t *testing.T, src string) (*ir.FormDef, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("form.cue"))
	require.NoError(t, v.Err())
	return CompileForm(v.LookupPath(cue.ParsePath("form")))
}

func TestCompileFormBasic(t *testing.T) {
	form, err := compileString(t, `
		form: {
			id: "survey"
			title: "Household survey"
			root: {
				name: "data"
				attributes: [{name: "version", value: "3"}]
				children: [
					{name: "name", label: "jr:itext('name-label')"},
					{
						name: "member"
						kind: "repeat"
						count: 1
						max: 8
						children: [{name: "age", default: "0"}]
					},
					{name: "meta", kind: "group"},
				]
			}
			binds: [
				{nodeset: "/data/member/age", type: "int", constraint: ". >= 0"},
			]
			secondary: [{
				id: "regions"
				root: {
					name: "root"
					children: [{name: "item", children: [{name: "label", text: "North"}]}]
				}
			}]
			languages: [
				{name: "English (en)", texts: {"name-label": "Name"}},
			]
			default_language: "English (en)"
		}
	`)
	require.NoError(t, err)

	assert.Equal(t, "survey", form.ID)
	assert.Equal(t, "Household survey", form.Title)
	assert.Equal(t, "English (en)", form.DefaultLanguage)

	root := form.Root
	assert.Equal(t, "data", root.Name)
	assert.Equal(t, ir.KindGroup, root.Kind, "children imply a group")
	assert.Equal(t, []ir.AttrDef{{Name: "version", Value: "3"}}, root.Attributes)
	require.Len(t, root.Children, 3)

	assert.Equal(t, ir.KindLeaf, root.Children[0].Kind)
	assert.Equal(t, "jr:itext('name-label')", root.Children[0].Label)

	member := root.Children[1]
	assert.Equal(t, ir.KindRepeat, member.Kind)
	assert.Equal(t, 1, member.Count)
	assert.Equal(t, 8, member.Max)
	assert.Equal(t, "0", member.Children[0].Default)

	assert.Equal(t, ir.KindGroup, root.Children[2].Kind, "explicit kind wins")

	assert.Equal(t, []ir.BindDef{{Nodeset: "/data/member/age", Type: "int", Constraint: ". >= 0"}}, form.Binds)

	require.Len(t, form.Secondary, 1)
	assert.Equal(t, "regions", form.Secondary[0].ID)
	assert.Equal(t, "North", form.Secondary[0].Root.Children[0].Children[0].Text)

	require.Len(t, form.Languages, 1)
	assert.Equal(t, map[string]string{"name-label": "Name"}, form.Languages[0].Texts)
}

func TestCompileFormPreservesOrder(t *testing.T) {
	form, err := compileString(t, `
		form: {
			id: "order"
			root: {name: "data", children: [{name: "z"}, {name: "a"}, {name: "m"}]}
			languages: [{name: "Zulu"}, {name: "Afrikaans"}]
		}
	`)
	require.NoError(t, err)

	var names []string
	for _, c := range form.Root.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
	assert.Equal(t, []string{"Zulu", "Afrikaans"}, form.LanguageNames())
}

func TestCompileFormSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "misspelled bind field",
			src:     `form: {id: "x", root: {name: "data"}, binds: [{nodeset: "/data", calcualte: "1"}]}`,
			wantMsg: "calcualte",
		},
		{
			name:    "missing id",
			src:     `form: {root: {name: "data"}}`,
			wantMsg: "id",
		},
		{
			name:    "empty id",
			src:     `form: {id: "", root: {name: "data"}}`,
			wantMsg: "id",
		},
		{
			name:    "unknown kind",
			src:     `form: {id: "x", root: {name: "data", kind: "table"}}`,
			wantMsg: "kind",
		},
		{
			name:    "unknown data type",
			src:     `form: {id: "x", root: {name: "data"}, binds: [{nodeset: "/data", type: "float"}]}`,
			wantMsg: "type",
		},
		{
			name:    "negative count",
			src:     `form: {id: "x", root: {name: "data", children: [{name: "r", kind: "repeat", count: -1}]}}`,
			wantMsg: "count",
		},
		{
			name:    "wrong kind of value",
			src:     `form: {id: "x", root: {name: "data", children: [{name: "a", default: 3}]}}`,
			wantMsg: "default",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.src)
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Error(), tt.wantMsg)
		})
	}
}

func TestCompileFormLeafWithChildren(t *testing.T) {
	_, err := compileString(t, `
		form: {id: "x", root: {name: "data", children: [{name: "a", kind: "leaf", children: [{name: "b"}]}]}}
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `leaf "a" cannot have children`)
}

func TestCompileFormMissing(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`other: 1`)
	_, err := CompileForm(v.LookupPath(cue.ParsePath("form")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "form is required")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "binds[0].type", Message: "bad type"}
	assert.Equal(t, "binds[0].type: bad type", err.Error())
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "root.children[0].name", joinPath([]string{"root", "children", "0", "name"}))
	assert.Equal(t, "binds[2]", joinPath([]string{"binds", "2"}))
	assert.Equal(t, "", joinPath(nil))
}
