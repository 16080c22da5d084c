package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

// Resolved is one leaf resource in resolution order.
type Resolved struct {
	Resource model.Resource

	// Content is the decoded content with inlined import directives removed.
	Content string

	// Digest is the content digest of the bytes as read.
	// model.DigestMissing for skipped resources.
	Digest model.Digest

	// Importer is the URI of the resource that imported this one; empty for
	// resources listed in the group.
	Importer string

	// Missing is set for resources that could not be read and were skipped
	// under the skip policy. They carry no content but still take part in
	// the input hash.
	Missing bool
}

// Resolver flattens import graphs.
//
// Thread-safety: a Resolver holds no per-call state and is safe for
// concurrent use.
type Resolver struct {
	reader   locator.Reader
	scanners map[model.ResourceType]Scanner
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithScanner sets the import scanner for a resource type. A nil scanner
// disables import resolution for that type.
func WithScanner(t model.ResourceType, s Scanner) Option {
	return func(r *Resolver) {
		if s == nil {
			delete(r.scanners, t)
			return
		}
		r.scanners[t] = s
	}
}

// New creates a Resolver reading through reader. CSS imports are resolved
// by default; scripts have no import syntax.
func New(reader locator.Reader, opts ...Option) *Resolver {
	r := &Resolver{
		reader:   reader,
		scanners: map[model.ResourceType]Scanner{model.TypeCSS: CSSScanner},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve flattens a single root resource.
func (r *Resolver) Resolve(ctx context.Context, root model.Resource, rc *reqctx.Context) ([]Resolved, error) {
	return r.ResolveAll(ctx, []model.Resource{root}, rc)
}

// frame is one resource on the traversal stack.
type frame struct {
	res      Resolved
	children []model.Resource
	next     int
}

// ResolveAll flattens roots in order. Each URI is emitted once: imported
// resources precede their importers, and a URI already emitted (by an
// earlier root or an unrelated branch) is not emitted again.
func (r *Resolver) ResolveAll(ctx context.Context, roots []model.Resource, rc *reqctx.Context) ([]Resolved, error) {
	var (
		out     []Resolved
		emitted = make(map[string]bool)
		onPath  = make(map[string]int) // uri -> stack index
		stack   []frame
	)

	for _, root := range roots {
		rootKey := locator.Normalize(root.URI)
		if emitted[rootKey] {
			continue
		}

		f, ok, err := r.open(ctx, root, "", rc)
		if err != nil {
			return nil, err
		}
		if !ok {
			emitted[rootKey] = true
			out = append(out, f.res)
			continue
		}
		stack = append(stack[:0], f)
		onPath[rootKey] = 0

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			top := &stack[len(stack)-1]
			if top.next == len(top.children) {
				key := locator.Normalize(top.res.Resource.URI)
				delete(onPath, key)
				emitted[key] = true
				out = append(out, top.res)
				stack = stack[:len(stack)-1]
				continue
			}

			child := top.children[top.next]
			top.next++
			key := locator.Normalize(child.URI)

			if _, cyclic := onPath[key]; cyclic {
				path := make([]string, 0, len(stack)+1)
				for _, fr := range stack {
					path = append(path, fr.res.Resource.URI)
				}
				return nil, &CyclicImportError{Path: append(path, child.URI)}
			}
			if emitted[key] {
				continue
			}

			cf, ok, err := r.open(ctx, child, top.res.Resource.URI, rc)
			if err != nil {
				return nil, err
			}
			if !ok {
				emitted[key] = true
				out = append(out, cf.res)
				continue
			}
			onPath[key] = len(stack)
			stack = append(stack, cf)
		}
	}
	return out, nil
}

// open reads a resource and scans its imports. It returns ok=false for a
// missing resource skipped by policy; the returned frame then holds the
// placeholder entry.
func (r *Resolver) open(ctx context.Context, res model.Resource, importer string, rc *reqctx.Context) (frame, bool, error) {
	content, err := r.reader.Read(ctx, res.URI)
	if err != nil {
		if !locator.IsNotFound(err) {
			return frame{}, false, fmt.Errorf("read %s: %w", res.URI, err)
		}
		nf := &locator.NotFoundError{URI: res.URI, Importer: importer}
		var inner *locator.NotFoundError
		if errors.As(err, &inner) {
			nf.Err = inner.Err
		}
		if !rc.SkipMissing() {
			return frame{}, false, nf
		}
		rc.RecordFailure(reqctx.Warning{
			Kind:    reqctx.WarnMissing,
			Subject: res.URI,
			Message: nf.Error(),
		})
		return frame{res: Resolved{
			Resource: res,
			Digest:   model.DigestMissing,
			Importer: importer,
			Missing:  true,
		}}, false, nil
	}

	text, err := rc.Decode(content.Data)
	if err != nil {
		return frame{}, false, fmt.Errorf("resource %s: %w", res.URI, err)
	}

	f := frame{res: Resolved{
		Resource: res,
		Content:  text,
		Digest:   content.Digest,
		Importer: importer,
	}}

	scanner, ok := r.scanners[res.Type]
	if !ok {
		return f, true, nil
	}

	var inlined []Import
	for _, imp := range scanner.Scan(text) {
		if locator.IsExternal(imp.Ref) {
			// Left in place for the browser to fetch.
			continue
		}
		inlined = append(inlined, imp)
		f.children = append(f.children, model.Resource{
			URI:      locator.Join(res.URI, imp.Ref),
			Type:     res.Type,
			Minimize: res.Minimize,
		})
	}
	f.res.Content = strip(text, inlined)
	return f, true, nil
}
