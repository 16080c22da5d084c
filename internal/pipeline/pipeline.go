package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/processor"
	"github.com/roach88/wro/internal/reqctx"
	"github.com/roach88/wro/internal/resolver"
	"github.com/roach88/wro/internal/store"
)

// Separator is inserted between consecutive resource contents.
const Separator = "\n"

// Reporter receives one report per Build call. *store.Store implements it.
type Reporter interface {
	WriteReport(ctx context.Context, r store.Report) error
}

// Executor builds artifacts for groups.
//
// Thread-safety: an Executor is safe for concurrent use. Concurrent builds
// of the same key share one computation when a cache is configured;
// builds of different keys never wait for each other.
type Executor struct {
	reader       locator.Reader
	chain        *processor.Chain
	cache        *cache.Cache
	resolverOpts []resolver.Option
	parallelism  int
	logger       *slog.Logger
	pool         *reqctx.Pool
	reporter     Reporter
	now          func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithCache serves artifacts from c and stores computed ones in it.
// Without a cache every Build computes.
func WithCache(c *cache.Cache) Option {
	return func(e *Executor) {
		e.cache = c
	}
}

// WithResolver configures the resolver created for each computation,
// for example to register import scanners.
func WithResolver(opts ...resolver.Option) Option {
	return func(e *Executor) {
		e.resolverOpts = append(e.resolverOpts, opts...)
	}
}

// WithParallelism bounds how many resources are pre-processed at once
// within one build, and how many groups BuildAll builds at once.
// Default: GOMAXPROCS. Values below 1 mean 1.
func WithParallelism(n int) Option {
	return func(e *Executor) {
		e.parallelism = max(n, 1)
	}
}

// WithLogger sets the logger used outside request scopes.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithPool sets the request context pool used by Run and BuildAll.
func WithPool(p *reqctx.Pool) Option {
	return func(e *Executor) {
		e.pool = p
	}
}

// WithReporter records a report for every Build.
func WithReporter(r Reporter) Option {
	return func(e *Executor) {
		e.reporter = r
	}
}

// WithClock sets the time source for report timestamps and durations.
// Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an Executor reading resources through reader and
// transforming them with chain. A nil chain means no processors.
func New(reader locator.Reader, chain *processor.Chain, opts ...Option) *Executor {
	if chain == nil {
		chain = processor.Empty()
	}
	e := &Executor{
		reader:      reader,
		chain:       chain,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = reqctx.NewPool()
	}
	return e
}

// Hasher returns a cache.Hasher that recomputes input hashes from the
// current content behind reader. Caches passed to WithCache should use it
// with the executor's reader:
//
//	c := cache.New(pipeline.Hasher(reader), cache.WithMaxAge(time.Hour))
//	exec := pipeline.New(reader, chain, pipeline.WithCache(c))
//
// A resource that no longer resolves contributes model.DigestMissing, so
// its disappearance or reappearance changes the hash.
func Hasher(reader locator.Reader) cache.Hasher {
	return cache.HasherFunc(func(ctx context.Context, uris []string) (model.Digest, error) {
		digests := make([]model.Digest, len(uris))
		for i, uri := range uris {
			content, err := reader.Read(ctx, uri)
			switch {
			case err == nil:
				digests[i] = content.Digest
			case locator.IsNotFound(err):
				digests[i] = model.DigestMissing
			default:
				return "", err
			}
		}
		return model.InputHash(digests), nil
	})
}
