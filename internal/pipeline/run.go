package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

// Run builds group in its own request scope: a context is acquired from
// the executor's pool with opts and released when Run returns, whatever
// the outcome.
func (e *Executor) Run(ctx context.Context, group model.Group, opts reqctx.Options) (*Artifact, error) {
	var a *Artifact
	err := reqctx.Scope(ctx, e.pool, opts, func(ctx context.Context, rc *reqctx.Context) error {
		var err error
		a, err = e.Build(ctx, group, rc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BuildAll builds the named groups of m concurrently, each in its own
// request scope, and returns the artifacts in the order of names. Empty
// names builds every group in declaration order.
//
// When opts selects a type, groups without resources of that type are
// skipped and have no entry in the result. A failing group does not stop
// the others; the error of the first failing group in the order of names
// is returned.
func (e *Executor) BuildAll(ctx context.Context, m *model.Model, names []string, opts reqctx.Options) ([]*Artifact, error) {
	if len(names) == 0 {
		names = m.Names()
	}
	groups := make([]model.Group, 0, len(names))
	for _, name := range names {
		g, ok := m.Group(name)
		if !ok {
			return nil, &model.UnknownGroupError{Ref: name}
		}
		if opts.Type != "" && !g.HasType(opts.Type) {
			continue
		}
		groups = append(groups, g)
	}

	artifacts := make([]*Artifact, len(groups))
	errs := make([]error, len(groups))
	var eg errgroup.Group
	eg.SetLimit(e.parallelism)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			artifacts[i], errs[i] = e.Run(ctx, g, opts)
			return nil
		})
	}
	_ = eg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}
