package model

import (
	"errors"
	"fmt"
	"strings"
)

// GroupDef is a group as declared by a model loader, before group
// references are expanded.
type GroupDef struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`

	// Abstract groups only exist to be referenced. They are expanded into
	// the groups that reference them but are not part of the Model.
	Abstract bool `json:"abstract,omitempty"`
}

// Item is one entry of a GroupDef: either a resource or a reference to
// another group whose resources are spliced in at this position.
type Item struct {
	Resource *Resource `json:"resource,omitempty"`
	GroupRef string    `json:"group_ref,omitempty"`
}

// ResourceItem creates an Item holding a resource.
func ResourceItem(r Resource) Item {
	return Item{Resource: &r}
}

// RefItem creates an Item referencing another group.
func RefItem(name string) Item {
	return Item{GroupRef: name}
}

// GroupCycleError reports group references that form a cycle.
type GroupCycleError struct {
	// Path is the reference chain, first and last element equal:
	// ["a", "b", "a"].
	Path []string
}

func (e *GroupCycleError) Error() string {
	return fmt.Sprintf("group reference cycle: %s", strings.Join(e.Path, " → "))
}

// UnknownGroupError reports a reference to a group that is not declared.
type UnknownGroupError struct {
	Group string // group containing the reference; empty for a direct lookup
	Ref   string // missing group name
}

func (e *UnknownGroupError) Error() string {
	if e.Group == "" {
		return fmt.Sprintf("unknown group %q", e.Ref)
	}
	return fmt.Sprintf("group %q references unknown group %q", e.Group, e.Ref)
}

// IsUnknownGroupError returns true if err is or wraps an UnknownGroupError.
func IsUnknownGroupError(err error) bool {
	var ue *UnknownGroupError
	return errors.As(err, &ue)
}

// IsGroupCycleError returns true if err is or wraps a GroupCycleError.
func IsGroupCycleError(err error) bool {
	var ce *GroupCycleError
	return errors.As(err, &ce)
}

// NewModel builds a Model from already-flat groups.
// Group names must be unique and non-empty.
func NewModel(groups ...Group) (*Model, error) {
	m := &Model{groups: make(map[string]Group, len(groups))}
	for _, g := range groups {
		if err := validateGroupName(g.Name); err != nil {
			return nil, err
		}
		if _, dup := m.groups[g.Name]; dup {
			return nil, fmt.Errorf("duplicate group %q", g.Name)
		}
		for i, r := range g.Resources {
			if err := validateResource(r); err != nil {
				return nil, fmt.Errorf("group %q resource %d: %w", g.Name, i, err)
			}
		}
		resources := make([]Resource, len(g.Resources))
		copy(resources, g.Resources)
		m.groups[g.Name] = Group{Name: g.Name, Resources: resources}
		m.order = append(m.order, g.Name)
	}
	return m, nil
}

// MustModel is like NewModel but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustModel(groups ...Group) *Model {
	m, err := NewModel(groups...)
	if err != nil {
		panic(err)
	}
	return m
}

// Flatten expands group references and returns the resulting Model.
//
// References are spliced in place, depth-first, in declaration order. The
// same group may be referenced from several places; a group that reaches
// itself through references is rejected with a GroupCycleError naming the
// full path. Abstract groups are validated and expanded but left out of the
// result.
func Flatten(defs []GroupDef) (*Model, error) {
	byName := make(map[string]GroupDef, len(defs))
	for _, d := range defs {
		if err := validateGroupName(d.Name); err != nil {
			return nil, err
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate group %q", d.Name)
		}
		byName[d.Name] = d
	}

	f := &flattener{
		defs:     byName,
		done:     make(map[string][]Resource, len(defs)),
		visiting: make(map[string]bool),
	}

	groups := make([]Group, 0, len(defs))
	for _, d := range defs {
		resources, err := f.expand(d.Name)
		if err != nil {
			return nil, err
		}
		if d.Abstract {
			continue
		}
		groups = append(groups, Group{Name: d.Name, Resources: resources})
	}
	return NewModel(groups...)
}

type flattener struct {
	defs     map[string]GroupDef
	done     map[string][]Resource
	visiting map[string]bool
	path     []string
}

func (f *flattener) expand(name string) ([]Resource, error) {
	if resources, ok := f.done[name]; ok {
		return resources, nil
	}
	if f.visiting[name] {
		return nil, &GroupCycleError{Path: f.cyclePath(name)}
	}

	f.visiting[name] = true
	f.path = append(f.path, name)
	defer func() {
		f.visiting[name] = false
		f.path = f.path[:len(f.path)-1]
	}()

	var resources []Resource
	for i, item := range f.defs[name].Items {
		switch {
		case item.Resource != nil && item.GroupRef != "":
			return nil, fmt.Errorf("group %q item %d: both resource and group reference set", name, i)
		case item.Resource != nil:
			resources = append(resources, *item.Resource)
		case item.GroupRef != "":
			if _, ok := f.defs[item.GroupRef]; !ok {
				return nil, &UnknownGroupError{Group: name, Ref: item.GroupRef}
			}
			nested, err := f.expand(item.GroupRef)
			if err != nil {
				return nil, err
			}
			resources = append(resources, nested...)
		default:
			return nil, fmt.Errorf("group %q item %d: empty item", name, i)
		}
	}

	f.done[name] = resources
	return resources, nil
}

// cyclePath returns the portion of the current path starting at name,
// closed with name again.
func (f *flattener) cyclePath(name string) []string {
	for i, p := range f.path {
		if p == name {
			out := append([]string{}, f.path[i:]...)
			return append(out, name)
		}
	}
	return []string{name, name}
}

func validateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("group name is required")
	}
	return nil
}

func validateResource(r Resource) error {
	if strings.TrimSpace(r.URI) == "" {
		return fmt.Errorf("uri is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid resource type %q for %s", r.Type, r.URI)
	}
	return nil
}
