package loader

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/wro/internal/model"
)

// schema constrains CUE models. Resource and group structs are closed, so
// misspelled fields fail validation with a position.
const schema = `
#Attrs: {
	uri:       string
	type?:     "css" | "js"
	minimize?: bool
}
#Ref: group: string
#Resource: string | #Attrs | #Ref
#Group: {
	abstract?: bool
	resources: *[] | [...#Resource]
}
groups: [string]: #Group
`

// LoadCUE reads a CUE group model from a .cue file or from the CUE package
// in a directory.
func LoadCUE(path string) (*model.Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &Error{File: path, Message: "no CUE instances loaded"}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, fromCUE(inst.Err, path)
		}
		v = ctx.BuildInstance(inst)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model file: %w", err)
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}
	return compileCUE(ctx, v, path)
}

// ParseCUE parses a CUE group model from source.
func ParseCUE(src string) (*model.Model, error) {
	ctx := cuecontext.New()
	return compileCUE(ctx, ctx.CompileString(src), "")
}

func compileCUE(ctx *cue.Context, v cue.Value, file string) (*model.Model, error) {
	if err := v.Err(); err != nil {
		return nil, fromCUE(err, file)
	}
	v = v.Unify(ctx.CompileString(schema))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(err, file)
	}

	groups := v.LookupPath(cue.ParsePath("groups"))
	if !groups.Exists() {
		return nil, &Error{File: file, Field: "groups", Message: "groups is required"}
	}
	iter, err := groups.Fields()
	if err != nil {
		return nil, fromCUE(err, file)
	}

	var defs []model.GroupDef
	for iter.Next() {
		name := iter.Label()
		gv := iter.Value()
		def := model.GroupDef{Name: name}

		if av := gv.LookupPath(cue.ParsePath("abstract")); av.Exists() {
			if def.Abstract, err = av.Bool(); err != nil {
				return nil, fromCUE(err, file)
			}
		}

		list, err := gv.LookupPath(cue.ParsePath("resources")).List()
		if err != nil {
			return nil, fromCUE(err, file)
		}
		for i := 0; list.Next(); i++ {
			item, err := cueItem(list.Value())
			if err != nil {
				e := posError(list.Value().Pos(), fmt.Sprintf("groups.%s.resources[%d]", name, i), err.Error())
				if e.File == "" {
					e.File = file
				}
				return nil, e
			}
			def.Items = append(def.Items, item)
		}
		defs = append(defs, def)
	}
	return flatten(defs)
}

func cueItem(v cue.Value) (model.Item, error) {
	if v.Kind() == cue.StringKind {
		uri, err := v.String()
		if err != nil {
			return model.Item{}, err
		}
		return toItem(attrs{URI: uri})
	}

	var a attrs
	for _, f := range []struct {
		name string
		dst  *string
	}{{"uri", &a.URI}, {"type", &a.Type}, {"group", &a.Group}} {
		if fv := v.LookupPath(cue.ParsePath(f.name)); fv.Exists() {
			s, err := fv.String()
			if err != nil {
				return model.Item{}, err
			}
			*f.dst = s
		}
	}
	if mv := v.LookupPath(cue.ParsePath("minimize")); mv.Exists() {
		b, err := mv.Bool()
		if err != nil {
			return model.Item{}, err
		}
		a.Minimize = &b
	}
	return toItem(a)
}
