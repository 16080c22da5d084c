package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/processor"
	"github.com/roach88/wro/internal/reqctx"
	"github.com/roach88/wro/internal/resolver"
	"github.com/roach88/wro/internal/store"
)

// Artifact is the output of one Build.
type Artifact struct {
	Group string
	Type  model.ResourceType
	Key   cache.Key

	// Content is the merged, processed text in Encoding.
	Content  []byte
	Encoding string

	InputHash    model.Digest
	Constituents []string

	// Warnings are the failures tolerated while computing the artifact,
	// including when it is served from the cache.
	Warnings []reqctx.Warning

	CacheHit   bool
	RequestID  string
	ComputedAt time.Time
}

// ContentType returns the MIME type with charset.
func (a *Artifact) ContentType() string {
	return a.Type.ContentType() + "; charset=" + a.Encoding
}

// Key returns the cache key for building group under rc.
func Key(group string, rc *reqctx.Context) cache.Key {
	k := cache.NewKey(group, rc.Type(), rc.Minimize(), rc.Variant())
	if enc := rc.Encoding(); enc != reqctx.DefaultEncoding {
		k.Encoding = enc
	}
	k.Lenient = rc.Lenient()
	k.SkipMissing = rc.SkipMissing()
	return k
}

// Build returns the artifact for group under rc, served from the cache
// when its inputs are unchanged.
//
// Only the resources of rc's type are built; an empty type builds every
// resource of the group into one artifact.
//
// Errors: *locator.NotFoundError, *resolver.CyclicImportError and
// *processor.ExecutionError reach the caller unchanged when no cache is
// configured, and wrapped in *cache.ComputationError otherwise; errors.As
// finds them either way.
func (e *Executor) Build(ctx context.Context, group model.Group, rc *reqctx.Context) (*Artifact, error) {
	started := e.now()
	key := Key(group.Name, rc)
	logger := rc.Logger()

	a, err := e.build(ctx, group, key, rc)
	duration := e.now().Sub(started)
	e.report(ctx, key, rc, a, err, started, duration)

	if err != nil {
		logger.Error("build failed", "group", group.Name, "key", key.String(), "error", err)
		return nil, err
	}
	logger.Info("build finished",
		"group", group.Name,
		"type", string(key.Type),
		"hit", a.CacheHit,
		"bytes", len(a.Content),
		"warnings", len(a.Warnings),
		"duration", duration,
	)
	return a, nil
}

func (e *Executor) build(ctx context.Context, group model.Group, key cache.Key, rc *reqctx.Context) (*Artifact, error) {
	// A cache computation may keep running after this caller gives up, so
	// it works on a fork of rc that it releases itself. A fork whose
	// computation never starts (another caller holds the flight) is left
	// to the garbage collector.
	crc := e.pool.Fork(rc)
	compute := func(ctx context.Context) (*cache.Entry, error) {
		defer e.pool.Release(crc)
		return e.compute(ctx, group, crc)
	}

	var (
		entry *cache.Entry
		hit   bool
		err   error
	)
	if e.cache != nil {
		entry, hit, err = e.cache.GetOrCompute(ctx, key, compute)
	} else {
		entry, err = compute(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Group:        group.Name,
		Type:         key.Type,
		Key:          key,
		Content:      entry.Artifact,
		Encoding:     rc.Encoding(),
		InputHash:    entry.InputHash,
		Constituents: entry.Constituents,
		Warnings:     entry.Warnings,
		CacheHit:     hit,
		RequestID:    rc.ID(),
		ComputedAt:   entry.ComputedAt,
	}, nil
}

// compute runs the pipeline proper on a fresh context. It reads through a
// snapshot so every stage sees the same content.
func (e *Executor) compute(ctx context.Context, group model.Group, rc *reqctx.Context) (*cache.Entry, error) {
	snap := locator.NewSnapshot(e.reader)
	res := resolver.New(snap, e.resolverOpts...)

	resolved, err := res.ResolveAll(ctx, group.Filter(rc.Type()), rc)
	if err != nil {
		return nil, err
	}

	parts, err := e.preProcess(ctx, resolved, rc)
	if err != nil {
		return nil, err
	}

	merged, err := e.chain.ApplyPost(ctx, processor.Target{Group: group.Name, Type: rc.Type()}, join(parts, resolved), rc)
	if err != nil {
		return nil, err
	}

	out, err := rc.Encode(merged)
	if err != nil {
		return nil, err
	}

	digests := make([]model.Digest, len(resolved))
	uris := make([]string, len(resolved))
	for i, r := range resolved {
		digests[i] = r.Digest
		uris[i] = r.Resource.URI
	}

	return &cache.Entry{
		Artifact:     out,
		InputHash:    model.InputHash(digests),
		ComputedAt:   e.now(),
		Constituents: uris,
		Warnings:     orderWarnings(rc.Warnings(), uris),
	}, nil
}

// preProcess runs the pre-phase for every resolved resource. Resources are
// processed concurrently, but each resource's chain runs in order and the
// results keep resolution order.
func (e *Executor) preProcess(ctx context.Context, resolved []resolver.Resolved, rc *reqctx.Context) ([]string, error) {
	parts := make([]string, len(resolved))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, r := range resolved {
		i, r := i, r
		if r.Missing {
			continue
		}
		g.Go(func() error {
			out, err := e.chain.ApplyPre(gctx, r.Resource, r.Content, rc)
			if err != nil {
				return err
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func join(parts []string, resolved []resolver.Resolved) string {
	var b strings.Builder
	first := true
	for i, part := range parts {
		if resolved[i].Missing {
			continue
		}
		if !first {
			b.WriteString(Separator)
		}
		b.WriteString(part)
		first = false
	}
	return b.String()
}

// orderWarnings sorts warnings into resolution order of their subjects;
// group-level warnings come last. Pre-processing runs concurrently, so the
// recording order is not stable.
func orderWarnings(ws []reqctx.Warning, uris []string) []reqctx.Warning {
	if len(ws) == 0 {
		return nil
	}
	pos := make(map[string]int, len(uris))
	for i, u := range uris {
		pos[u] = i
	}
	rank := func(w reqctx.Warning) int {
		if i, ok := pos[w.Subject]; ok {
			return i
		}
		return len(uris)
	}

	out := append([]reqctx.Warning(nil), ws...)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}

func (e *Executor) report(ctx context.Context, key cache.Key, rc *reqctx.Context, a *Artifact, buildErr error, started time.Time, d time.Duration) {
	if e.reporter == nil {
		return
	}
	r := store.Report{
		RequestID: rc.ID(),
		Key:       key.String(),
		Group:     key.Group,
		StartedAt: started,
		Duration:  d,
	}
	if a != nil {
		r.CacheHit = a.CacheHit
		r.InputHash = string(a.InputHash)
		r.ArtifactSize = len(a.Content)
		r.Warnings = a.Warnings
	}
	if buildErr != nil {
		r.Error = buildErr.Error()
	}
	if err := e.reporter.WriteReport(context.WithoutCancel(ctx), r); err != nil {
		rc.Logger().Warn("build report not written", "group", key.Group, "error", err)
	}
}
