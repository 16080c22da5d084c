package model

import (
	"fmt"
	"strings"
)

// ResourceType identifies the kind of web asset a resource holds.
type ResourceType string

const (
	// TypeCSS is a stylesheet resource.
	TypeCSS ResourceType = "css"

	// TypeJS is a script resource.
	TypeJS ResourceType = "js"
)

// ResourceTypes lists the supported resource types in canonical order.
var ResourceTypes = []ResourceType{TypeCSS, TypeJS}

// ParseResourceType converts a user-facing name into a ResourceType.
// Accepts the canonical names plus the aliases "style" and "script".
func ParseResourceType(s string) (ResourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "css", "style":
		return TypeCSS, nil
	case "js", "script":
		return TypeJS, nil
	default:
		return "", fmt.Errorf("invalid resource type %q: must be css or js", s)
	}
}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	return t == TypeCSS || t == TypeJS
}

// Extension returns the file extension (without dot) used for artifacts of
// this type.
func (t ResourceType) Extension() string {
	return string(t)
}

// ContentType returns the MIME type served for artifacts of this type.
func (t ResourceType) ContentType() string {
	switch t {
	case TypeCSS:
		return "text/css"
	case TypeJS:
		return "application/javascript"
	default:
		return "text/plain"
	}
}

// TypeFromURI infers the resource type from a URI's extension.
// Returns false when the extension is not recognised.
func TypeFromURI(uri string) (ResourceType, bool) {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	switch {
	case strings.HasSuffix(strings.ToLower(uri), ".css"):
		return TypeCSS, true
	case strings.HasSuffix(strings.ToLower(uri), ".js"):
		return TypeJS, true
	default:
		return "", false
	}
}

// Resource is one addressable stylesheet or script asset.
//
// A Resource is an immutable view for the duration of a pipeline run; its
// content is re-read through a locator and never mutated in place.
type Resource struct {
	URI  string       `json:"uri" yaml:"uri"`
	Type ResourceType `json:"type" yaml:"type"`

	// Minimize is false when the resource opts out of minimizing
	// processors (already minified vendor code, for example).
	Minimize bool `json:"minimize" yaml:"minimize"`
}

// NewResource creates a resource that takes part in minimization.
func NewResource(uri string, t ResourceType) Resource {
	return Resource{URI: uri, Type: t, Minimize: true}
}

// String returns "type:uri" for logs and error messages.
func (r Resource) String() string {
	return string(r.Type) + ":" + r.URI
}

// Group is a named, ordered collection of resources processed and cached as
// one unit.
type Group struct {
	Name      string     `json:"name"`
	Resources []Resource `json:"resources"`
}

// Filter returns the resources of type t in declaration order.
// An empty t returns a copy of every resource.
func (g Group) Filter(t ResourceType) []Resource {
	out := make([]Resource, 0, len(g.Resources))
	for _, r := range g.Resources {
		if t == "" || r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// HasType reports whether the group contains at least one resource of type t.
func (g Group) HasType(t ResourceType) bool {
	for _, r := range g.Resources {
		if r.Type == t {
			return true
		}
	}
	return false
}

// Model is the materialized group-definition model.
//
// A Model is produced by an external loader (see internal/loader) and is
// read-only afterwards. Declaration order of groups is preserved.
type Model struct {
	groups map[string]Group
	order  []string
}

// Group returns the named group.
func (m *Model) Group(name string) (Group, bool) {
	if m == nil {
		return Group{}, false
	}
	g, ok := m.groups[name]
	return g, ok
}

// Names returns group names in declaration order.
func (m *Model) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Groups returns every group in declaration order.
func (m *Model) Groups() []Group {
	if m == nil {
		return nil
	}
	out := make([]Group, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.groups[name])
	}
	return out
}

// Len returns the number of groups.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}
