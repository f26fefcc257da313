package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// Loaded is the result of compiling a CUE schema: the registry holding
// every declared entity plus the contexts, in declaration order.
type Loaded struct {
	Registry *Registry
	Contexts []*Model
}

// Context returns the named context. With an empty name it returns the
// only context, failing when the schema declares more than one.
func (l *Loaded) Context(name string) (*Model, error) {
	if name == "" {
		if len(l.Contexts) != 1 {
			return nil, fmt.Errorf("schema declares %d contexts; name one explicitly", len(l.Contexts))
		}
		return l.Contexts[0], nil
	}
	m, ok := l.Registry.Context(name)
	if !ok {
		return nil, fmt.Errorf("context %q is not declared", name)
	}
	return m, nil
}

// CompileCUE compiles schema declarations from CUE source.
//
// The expected shape mirrors FieldSpec and SetSpec:
//
//	entity: Blog: {
//	    Id:    {dataType: "int", key: true, computed: true}
//	    Name:  {dataType: "string"}
//	    Posts: {dataType: "Array", elementType: "BlogPost", inverseProperty: "Blog"}
//	}
//	context: BlogContext: {
//	    Blogs: {elementType: "Blog"}
//	}
//
// Field declaration order is preserved and becomes column order.
func CompileCUE(filename string, src []byte) (*Loaded, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}

// LoadCUE loads and compiles the CUE package in dir.
func LoadCUE(dir string) (*Loaded, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("schema directory: %v", err), Err: err}
	}
	if !info.IsDir() {
		src, err := os.ReadFile(dir)
		if err != nil {
			return nil, &LoadError{Message: fmt.Sprintf("reading schema: %v", err), Err: err}
		}
		return CompileCUE(dir, src)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("loading CUE files: %v", inst.Err), Err: inst.Err}
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}

func compileValue(v cue.Value) (*Loaded, error) {
	reg := NewRegistry()
	loaded := &Loaded{Registry: reg}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &LoadError{Path: "entity", Message: "schema declares no entities", Pos: v.Pos()}
	}
	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		specs, err := decodeFields(name, iter.Value())
		if err != nil {
			return nil, err
		}
		if _, err := reg.DefineEntity(name, specs...); err != nil {
			return nil, &LoadError{Path: "entity." + name, Message: err.Error(), Pos: iter.Value().Pos(), Err: err}
		}
	}

	contexts := v.LookupPath(cue.ParsePath("context"))
	if !contexts.Exists() {
		return loaded, nil
	}
	citer, err := contexts.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for citer.Next() {
		name := citer.Label()
		sets, err := decodeSets(name, citer.Value())
		if err != nil {
			return nil, err
		}
		m, err := reg.DefineContext(name, sets...)
		if err != nil {
			return nil, &LoadError{Path: "context." + name, Message: err.Error(), Pos: citer.Value().Pos(), Err: err}
		}
		loaded.Contexts = append(loaded.Contexts, m)
	}
	return loaded, nil
}

func decodeFields(entity string, v cue.Value) ([]FieldSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []FieldSpec
	for iter.Next() {
		fv := iter.Value()
		path := "entity." + entity + "." + iter.Label()
		spec := FieldSpec{Name: iter.Label()}

		if spec.DataType, err = lookupString(fv, "dataType", path, true); err != nil {
			return nil, err
		}
		if spec.ElementType, err = lookupString(fv, "elementType", path, false); err != nil {
			return nil, err
		}
		if spec.InverseProperty, err = lookupString(fv, "inverseProperty", path, false); err != nil {
			return nil, err
		}
		if spec.Column, err = lookupString(fv, "column", path, false); err != nil {
			return nil, err
		}
		if spec.Key, err = lookupBool(fv, "key", path); err != nil {
			return nil, err
		}
		if spec.Computed, err = lookupBool(fv, "computed", path); err != nil {
			return nil, err
		}
		if spec.Required, err = lookupBool(fv, "required", path); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func decodeSets(context string, v cue.Value) ([]SetSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var sets []SetSpec
	for iter.Next() {
		name := iter.Label()
		elem, err := lookupString(iter.Value(), "elementType", "context."+context+"."+name, true)
		if err != nil {
			return nil, err
		}
		sets = append(sets, SetSpec{Name: name, ElementType: elem})
	}
	return sets, nil
}

func lookupString(v cue.Value, key, path string, required bool) (string, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		if required {
			return "", &LoadError{Path: path, Message: key + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &LoadError{Path: path + "." + key, Message: "must be a string", Pos: f.Pos(), Err: err}
	}
	return s, nil
}

func lookupBool(v cue.Value, key, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, &LoadError{Path: path + "." + key, Message: "must be a bool", Pos: f.Pos(), Err: err}
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Message: err.Error(), Err: err}
	}

	first := errs[0]
	le := &LoadError{Path: "cue", Message: first.Error(), Err: err}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
