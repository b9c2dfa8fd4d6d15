package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/xforms/internal/ir"
)

// FormField is the top-level field a form file declares its form under.
const FormField = "form"

// LoadFormFile loads a single .cue file and compiles its form field.
// Imports and package clauses are resolved by the CUE loader relative to
// the file's directory.
func LoadFormFile(path string) (*ir.FormDef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("load form: %s is a directory", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	cfg := &load.Config{Dir: filepath.Dir(abs)}
	instances := load.Instances([]string{filepath.Base(abs)}, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("load form %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	return compileFormField(value)
}

// LoadFormSource compiles CUE source held in memory. name is used in
// error positions.
func LoadFormSource(name string, src []byte) (*ir.FormDef, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(name))
	return compileFormField(value)
}

func compileFormField(value cue.Value) (*ir.FormDef, error) {
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v := value.LookupPath(cue.ParsePath(FormField))
	if !v.Exists() {
		return nil, &CompileError{
			Field:   FormField,
			Message: "no form field found",
			Pos:     value.Pos(),
		}
	}
	return CompileForm(v)
}
