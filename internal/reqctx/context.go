package reqctx

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/roach88/wro/internal/model"
)

// Context is the state of one pipeline invocation.
//
// A Context is obtained from Pool.Acquire (usually through Scope) and is
// owned by that invocation. RecordFailure and Warnings are safe for
// concurrent use so that parallel pre-processing within the invocation may
// record warnings; everything else is read-only after Acquire.
//
// Every method panics once the Context has been released.
type Context struct {
	released atomic.Bool

	id       string
	opts     Options
	enc      encoding.Encoding
	encName  string
	logger   *slog.Logger
	minimize bool

	mu       sync.Mutex
	warnings []Warning
}

// ID returns the invocation id.
func (c *Context) ID() string {
	c.check()
	return c.id
}

// Options returns the normalized options of this invocation.
func (c *Context) Options() Options {
	c.check()
	return c.opts
}

// Minimize reports whether minimizing processors run.
func (c *Context) Minimize() bool {
	c.check()
	return c.minimize
}

// Type returns the resource type being built, or "" for every type.
func (c *Context) Type() model.ResourceType {
	c.check()
	return c.opts.Type
}

// Variant returns the canonical variant selector.
func (c *Context) Variant() string {
	c.check()
	return c.opts.Variant
}

// Encoding returns the canonical name of the invocation's charset.
func (c *Context) Encoding() string {
	c.check()
	return c.encName
}

// SkipMissing reports whether unreadable resources are skipped.
func (c *Context) SkipMissing() bool {
	c.check()
	return c.opts.MissingResources == MissingSkip
}

// Lenient reports whether processor failures are tolerated.
func (c *Context) Lenient() bool {
	c.check()
	return c.opts.Failures == Lenient
}

// Logger returns a logger tagged with the invocation id.
func (c *Context) Logger() *slog.Logger {
	c.check()
	return c.logger
}

// Decode converts resource bytes in the invocation charset to a string.
func (c *Context) Decode(data []byte) (string, error) {
	c.check()
	if c.enc == nil {
		return string(data), nil
	}
	out, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c.encName, err)
	}
	return string(out), nil
}

// Encode converts artifact text to bytes in the invocation charset.
func (c *Context) Encode(s string) ([]byte, error) {
	c.check()
	if c.enc == nil {
		return []byte(s), nil
	}
	out, err := c.enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.encName, err)
	}
	return []byte(out), nil
}

// RecordFailure appends a warning and logs it.
func (c *Context) RecordFailure(w Warning) {
	c.check()
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()

	c.logger.Warn("tolerated failure",
		"kind", w.Kind,
		"processor", w.Processor,
		"subject", w.Subject,
		"error", w.Message,
	)
}

// Warnings returns a copy of the recorded warnings in recording order.
func (c *Context) Warnings() []Warning {
	c.check()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.warnings) == 0 {
		return nil
	}
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

func (c *Context) check() {
	if c == nil {
		panic("reqctx: nil Context")
	}
	if c.released.Load() {
		panic("reqctx: use of released Context")
	}
}

// reset zeroes every field so nothing survives into the next Acquire.
func (c *Context) reset() {
	c.id = ""
	c.opts = Options{}
	c.enc = nil
	c.encName = ""
	c.logger = nil
	c.minimize = false
	c.mu.Lock()
	c.warnings = nil
	c.mu.Unlock()
}

// lookupEncoding resolves a WHATWG label. UTF-8 yields a nil encoding so
// that content passes through byte-for-byte.
func lookupEncoding(label string) (encoding.Encoding, string, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, "", fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	if name == "utf-8" {
		return nil, name, nil
	}
	return enc, name, nil
}
