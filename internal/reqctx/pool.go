package reqctx

import (
	"context"
	"log/slog"
	"sync"
)

// Pool hands out and recycles Contexts.
//
// Thread-safety: Pool is safe for concurrent use.
type Pool struct {
	contexts sync.Pool
	ids      IDGenerator
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithIDGenerator sets the invocation id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) PoolOption {
	return func(p *Pool) {
		p.ids = g
	}
}

// NewPool creates a Pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(p)
	}
	p.contexts.New = func() any { return new(Context) }
	return p
}

// Acquire returns a Context configured by opts.
// The caller must hand it back with Release when the invocation ends.
func (p *Pool) Acquire(opts Options) (*Context, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	enc, encName, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}

	c := p.contexts.Get().(*Context)
	c.id = p.ids.Generate()
	c.opts = opts
	c.enc = enc
	c.encName = encName
	c.minimize = *opts.Minimize

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger.With("request", c.id)
	c.released.Store(false)
	return c, nil
}

// Fork returns a new Context with c's id, options and logger and an
// empty warning ledger. Work that may outlive the caller's scope, such as
// a cache computation shared with other callers, runs on a fork so that
// releasing c cannot pull state from under it. The fork is released on
// its own.
func (p *Pool) Fork(c *Context) *Context {
	c.check()
	f := p.contexts.Get().(*Context)
	f.id = c.id
	f.opts = c.opts
	f.enc = c.enc
	f.encName = c.encName
	f.logger = c.logger
	f.minimize = c.minimize
	f.released.Store(false)
	return f
}

// Release zeroes c and returns it to the pool. Releasing a nil or already
// released Context is a no-op.
func (p *Pool) Release(c *Context) {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return
	}
	c.reset()
	p.contexts.Put(c)
}

// Scope acquires a Context, runs fn with it and releases it on every exit
// path: normal return, error return and panic.
//
// The context passed to fn carries the invocation logger (see LoggerFrom).
func Scope(ctx context.Context, p *Pool, opts Options, fn func(ctx context.Context, rc *Context) error) error {
	rc, err := p.Acquire(opts)
	if err != nil {
		return err
	}
	defer p.Release(rc)

	return fn(WithLogger(ctx, rc.Logger()), rc)
}
