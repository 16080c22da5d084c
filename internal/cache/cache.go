package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/wro/internal/model"
)

// Hasher recomputes the input hash of a list of resources from their
// current content. A resource that cannot be read contributes
// model.DigestMissing.
type Hasher interface {
	InputHash(ctx context.Context, uris []string) (model.Digest, error)
}

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(ctx context.Context, uris []string) (model.Digest, error)

// InputHash implements Hasher.
func (f HasherFunc) InputHash(ctx context.Context, uris []string) (model.Digest, error) {
	return f(ctx, uris)
}

// Backing is a persistent tier behind the in-memory map.
//
// Load returns (nil, nil) for an unknown key. Backing errors never fail a
// lookup; they are logged and the cache falls back to computing.
type Backing interface {
	Load(ctx context.Context, key Key) (*Entry, error)
	Save(ctx context.Context, key Key, e *Entry) error
	Delete(ctx context.Context, key Key) error
	Purge(ctx context.Context) error
}

// ComputeFunc builds the entry for a key.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// Stats are cumulative counters.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Stale        int64 `json:"stale"`
	Computations int64 `json:"computations"`
	Errors       int64 `json:"errors"`
	Evictions    int64 `json:"evictions"`
	Entries      int   `json:"entries"`
}

// Cache maps keys to entries with per-key single-flight computation.
//
// Thread-safety: Cache is safe for concurrent use.
type Cache struct {
	hasher     Hasher
	backing    Backing
	maxAge     time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[Key]*Entry

	flights singleflight.Group

	hits, misses, stales, computations, errs, evictions atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithBacking adds a persistent tier.
func WithBacking(b Backing) Option {
	return func(c *Cache) {
		c.backing = b
	}
}

// WithMaxAge treats entries older than d as stale regardless of their
// input hash. Zero disables the bound.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		c.maxAge = d
	}
}

// WithMaxEntries bounds the in-memory map; the entry computed longest ago
// is evicted first. Zero disables the bound.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithClock sets the time source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a Cache that checks freshness with hasher.
func New(hasher Hasher, opts ...Option) *Cache {
	c := &Cache{
		hasher:  hasher,
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[Key]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flightResult struct {
	entry *Entry
	hit   bool

	// abandoned is set when the computation failed because the context of
	// the caller running it ended. Waiters with a live context retry.
	abandoned bool
}

// GetOrCompute returns the fresh entry for key, computing it at most once
// across concurrent callers when it is missing or stale. hit reports
// whether the entry was served without running compute.
//
// A caller whose ctx ends while waiting for another caller's computation
// returns ctx.Err() without affecting that computation.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (entry *Entry, hit bool, err error) {
	e, state := c.lookup(ctx, key)
	switch state {
	case fresh:
		c.hits.Add(1)
		return e, true, nil
	case stale:
		c.stales.Add(1)
	default:
		c.misses.Add(1)
	}

	slot := key.String()
	for {
		ch := c.flights.DoChan(slot, func() (any, error) {
			return c.fill(ctx, key, compute)
		})

		select {
		case res := <-ch:
			fr, _ := res.Val.(flightResult)
			if res.Err != nil {
				if fr.abandoned && ctx.Err() == nil {
					continue
				}
				return nil, false, res.Err
			}
			if fr.hit {
				c.hits.Add(1)
			}
			return fr.entry, fr.hit, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// fill runs inside the key's single-flight slot.
func (c *Cache) fill(ctx context.Context, key Key, compute ComputeFunc) (any, error) {
	// A flight that finished just before this one started may have
	// published a fresh entry already.
	if e, state := c.lookup(ctx, key); state == fresh {
		return flightResult{entry: e, hit: true}, nil
	}

	c.computations.Add(1)
	started := c.now()
	e, err := safeCompute(ctx, compute)
	if err != nil {
		c.errs.Add(1)
		c.logger.Debug("cache computation failed", "key", key.String(), "error", err)
		return flightResult{abandoned: ctx.Err() != nil}, &ComputationError{Key: key, Err: err}
	}
	if e.ComputedAt.IsZero() {
		e.ComputedAt = c.now()
	}

	c.store(key, e)
	if c.backing != nil {
		if err := c.backing.Save(ctx, key, e); err != nil {
			c.logger.Warn("cache backing save failed", "key", key.String(), "error", err)
		}
	}
	c.logger.Debug("cache entry computed",
		"key", key.String(),
		"input_hash", e.InputHash.Short(),
		"duration", c.now().Sub(started),
	)
	return flightResult{entry: e}, nil
}

func safeCompute(ctx context.Context, compute ComputeFunc) (e *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	e, err = compute(ctx)
	if err == nil && e == nil {
		err = errors.New("compute returned no entry")
	}
	return e, err
}

type lookupState int

const (
	absent lookupState = iota
	stale
	fresh
)

// lookup returns a fresh entry from memory or the backing tier.
func (c *Cache) lookup(ctx context.Context, key Key) (*Entry, lookupState) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok && c.backing != nil {
		loaded, err := c.backing.Load(ctx, key)
		if err != nil {
			c.logger.Warn("cache backing load failed", "key", key.String(), "error", err)
		} else if loaded != nil {
			e, ok = loaded, true
		}
	}
	if !ok {
		return nil, absent
	}
	if !c.isFresh(ctx, key, e) {
		return nil, stale
	}

	c.mu.Lock()
	if _, present := c.entries[key]; !present {
		c.entries[key] = e
		c.evictLocked()
	}
	c.mu.Unlock()
	return e, fresh
}

func (c *Cache) isFresh(ctx context.Context, key Key, e *Entry) bool {
	if c.maxAge > 0 && c.now().Sub(e.ComputedAt) > c.maxAge {
		return false
	}
	current, err := c.hasher.InputHash(ctx, e.Constituents)
	if err != nil {
		c.logger.Debug("cache freshness check failed", "key", key.String(), "error", err)
		return false
	}
	return current == e.InputHash
}

func (c *Cache) store(key Key, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].ComputedAt.Before(c.entries[keys[j]].ComputedAt)
	})
	for _, k := range keys[:len(keys)-c.maxEntries] {
		delete(c.entries, k)
		c.evictions.Add(1)
	}
}

// Peek returns the in-memory entry for key without checking freshness.
func (c *Cache) Peek(key Key) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Evict removes key from memory and from the backing tier.
func (c *Cache) Evict(ctx context.Context, key Key) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	if c.backing != nil {
		return c.backing.Delete(ctx, key)
	}
	return nil
}

// Purge removes every entry from memory and from the backing tier.
func (c *Cache) Purge(ctx context.Context) error {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	if c.backing != nil {
		return c.backing.Purge(ctx)
	}
	return nil
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Stale:        c.stales.Load(),
		Computations: c.computations.Load(),
		Errors:       c.errs.Load(),
		Evictions:    c.evictions.Load(),
		Entries:      c.Len(),
	}
}
