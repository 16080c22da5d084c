package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wro/internal/model"
)

type yamlModel struct {
	Groups []yamlGroup `yaml:"groups"`
}

type yamlGroup struct {
	Name      string     `yaml:"name"`
	Abstract  bool       `yaml:"abstract,omitempty"`
	Resources []yamlItem `yaml:"resources"`
}

// yamlItem is a URI scalar or a mapping with uri/type/minimize or group.
type yamlItem struct {
	attrs
	line, column int
}

type attrs struct {
	URI      string `yaml:"uri"`
	Type     string `yaml:"type"`
	Minimize *bool  `yaml:"minimize"`
	Group    string `yaml:"group"`
}

var itemFields = map[string]bool{"uri": true, "type": true, "minimize": true, "group": true}

func (it *yamlItem) UnmarshalYAML(n *yaml.Node) error {
	it.line, it.column = n.Line, n.Column
	switch n.Kind {
	case yaml.ScalarNode:
		it.URI = n.Value
		return nil
	case yaml.MappingNode:
		// Node.Decode does not inherit the decoder's strictness.
		for i := 0; i < len(n.Content); i += 2 {
			if key := n.Content[i]; !itemFields[key.Value] {
				return &Error{Line: key.Line, Column: key.Column, Message: fmt.Sprintf("unknown resource field %q", key.Value)}
			}
		}
		return n.Decode(&it.attrs)
	default:
		return &Error{Line: n.Line, Column: n.Column, Message: "resource must be a uri or a mapping"}
	}
}

// LoadYAML reads a YAML group model from path.
func LoadYAML(path string) (*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	m, err := ParseYAML(data)
	if err != nil {
		var le *Error
		if errors.As(err, &le) && le.File == "" {
			le.File = path
		}
		return nil, err
	}
	return m, nil
}

// ParseYAML parses a YAML group model. Unknown fields are rejected.
// JSON input is accepted as well.
func ParseYAML(data []byte) (*model.Model, error) {
	var doc yamlModel
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Message: "empty model"}
		}
		var le *Error
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	defs := make([]model.GroupDef, len(doc.Groups))
	for i, g := range doc.Groups {
		defs[i] = model.GroupDef{Name: g.Name, Abstract: g.Abstract}
		for j, it := range g.Resources {
			item, err := toItem(it.attrs)
			if err != nil {
				return nil, &Error{
					Line:    it.line,
					Column:  it.column,
					Field:   fmt.Sprintf("groups[%d].resources[%d]", i, j),
					Message: err.Error(),
				}
			}
			defs[i].Items = append(defs[i].Items, item)
		}
	}
	return flatten(defs)
}
