package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/wro/internal/model"
)

// Load reads a group model, choosing the format by path: a directory or a
// .cue file is loaded as CUE, .yaml, .yml and .json files as YAML.
func Load(path string) (*model.Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path)
	case ".yaml", ".yml", ".json":
		return LoadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported model format %q: use .yaml, .yml, .json or .cue", filepath.Ext(path))
	}
}

// toItem converts parsed item attributes into a model item.
func toItem(a attrs) (model.Item, error) {
	if a.Group != "" {
		if a.URI != "" || a.Type != "" || a.Minimize != nil {
			return model.Item{}, errors.New("group reference cannot have resource attributes")
		}
		return model.RefItem(a.Group), nil
	}
	if strings.TrimSpace(a.URI) == "" {
		return model.Item{}, errors.New("uri is required")
	}

	var (
		t   model.ResourceType
		err error
	)
	if a.Type != "" {
		if t, err = model.ParseResourceType(a.Type); err != nil {
			return model.Item{}, err
		}
	} else {
		var ok bool
		if t, ok = model.TypeFromURI(a.URI); !ok {
			return model.Item{}, fmt.Errorf("cannot infer type of %q: set type to css or js", a.URI)
		}
	}

	r := model.NewResource(a.URI, t)
	if a.Minimize != nil {
		r.Minimize = *a.Minimize
	}
	return model.ResourceItem(r), nil
}

func flatten(defs []model.GroupDef) (*model.Model, error) {
	if len(defs) == 0 {
		return nil, &Error{Field: "groups", Message: "at least one group is required"}
	}
	m, err := model.Flatten(defs)
	if err != nil {
		return nil, fmt.Errorf("invalid group model: %w", err)
	}
	return m, nil
}
