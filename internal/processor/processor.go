package processor

import (
	"context"
	"slices"

	"github.com/roach88/wro/internal/model"
)

// TypeSet is the set of resource types a processor supports.
// A nil TypeSet supports every type.
type TypeSet []model.ResourceType

// AnyType supports every resource type.
var AnyType TypeSet

// Types builds a TypeSet.
func Types(ts ...model.ResourceType) TypeSet {
	return TypeSet(ts)
}

// Supports reports whether t is in the set. The empty type (a mixed
// artifact) is only supported by AnyType.
func (s TypeSet) Supports(t model.ResourceType) bool {
	if s == nil {
		return true
	}
	return t != "" && slices.Contains(s, t)
}

// Processor is the part of the plugin contract shared by both phases.
type Processor interface {
	// Name identifies the processor in chains, logs and errors.
	Name() string

	// Supports reports whether the processor applies to resources of type t.
	Supports(t model.ResourceType) bool
}

// PreProcessor transforms the content of one resource.
type PreProcessor interface {
	Processor
	Pre(ctx context.Context, res model.Resource, content string) (string, error)
}

// Target describes the artifact a post-processor runs on.
type Target struct {
	Group string

	// Type is the artifact type, or "" for an artifact mixing types.
	Type model.ResourceType
}

// Subject returns the failure subject for post-processing: "group:<name>".
func (t Target) Subject() string {
	return "group:" + t.Group
}

// PostProcessor transforms the merged content of a group.
type PostProcessor interface {
	Processor
	Post(ctx context.Context, target Target, content string) (string, error)
}

// Minimizer is implemented by processors that only run when minimization
// is requested. Such processors are skipped when the request context has
// minimize off, and (in the pre phase) for resources that opt out.
type Minimizer interface {
	Minimizes() bool
}

func minimizes(p Processor) bool {
	m, ok := p.(Minimizer)
	return ok && m.Minimizes()
}

// PreFunc is the transformation of a function-backed pre-processor.
type PreFunc func(ctx context.Context, res model.Resource, content string) (string, error)

// PostFunc is the transformation of a function-backed post-processor.
type PostFunc func(ctx context.Context, target Target, content string) (string, error)

// FuncOption configures a function-backed processor.
type FuncOption func(*funcProcessor)

// Minimizing marks a function-backed processor as a Minimizer.
func Minimizing() FuncOption {
	return func(p *funcProcessor) {
		p.minimizes = true
	}
}

type funcProcessor struct {
	name      string
	types     TypeSet
	minimizes bool
	pre       PreFunc
	post      PostFunc
}

func (p *funcProcessor) Name() string                      { return p.name }
func (p *funcProcessor) Supports(t model.ResourceType) bool { return p.types.Supports(t) }
func (p *funcProcessor) Minimizes() bool                    { return p.minimizes }

func (p *funcProcessor) Pre(ctx context.Context, res model.Resource, content string) (string, error) {
	return p.pre(ctx, res, content)
}

func (p *funcProcessor) Post(ctx context.Context, target Target, content string) (string, error) {
	return p.post(ctx, target, content)
}

// NewPre wraps fn as a PreProcessor.
func NewPre(name string, types TypeSet, fn PreFunc, opts ...FuncOption) PreProcessor {
	p := &funcProcessor{name: name, types: types, pre: fn}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPost wraps fn as a PostProcessor.
func NewPost(name string, types TypeSet, fn PostFunc, opts ...FuncOption) PostProcessor {
	p := &funcProcessor{name: name, types: types, post: fn}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
