package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

// Chain is an ordered list of processors per phase. The order given to
// NewChain is the application order; a Chain never reorders.
//
// Thread-safety: a Chain is immutable and safe for concurrent use; the
// processors it holds must be too.
type Chain struct {
	pre  []PreProcessor
	post []PostProcessor
}

// NewChain creates a Chain. Processor names must be unique within a phase.
func NewChain(pre []PreProcessor, post []PostProcessor) (*Chain, error) {
	seen := make(map[string]bool, len(pre))
	for i, p := range pre {
		if p == nil {
			return nil, fmt.Errorf("pre-processor %d is nil", i)
		}
		if seen[p.Name()] {
			return nil, fmt.Errorf("duplicate pre-processor %q", p.Name())
		}
		seen[p.Name()] = true
	}
	clear(seen)
	for i, p := range post {
		if p == nil {
			return nil, fmt.Errorf("post-processor %d is nil", i)
		}
		if seen[p.Name()] {
			return nil, fmt.Errorf("duplicate post-processor %q", p.Name())
		}
		seen[p.Name()] = true
	}
	return &Chain{
		pre:  append([]PreProcessor(nil), pre...),
		post: append([]PostProcessor(nil), post...),
	}, nil
}

// MustChain is NewChain that panics on error, for tests and static setup.
func MustChain(pre []PreProcessor, post []PostProcessor) *Chain {
	c, err := NewChain(pre, post)
	if err != nil {
		panic(err)
	}
	return c
}

// Empty returns a chain without processors.
func Empty() *Chain {
	return &Chain{}
}

// PreNames returns pre-processor names in application order.
func (c *Chain) PreNames() []string {
	names := make([]string, len(c.pre))
	for i, p := range c.pre {
		names[i] = p.Name()
	}
	return names
}

// PostNames returns post-processor names in application order.
func (c *Chain) PostNames() []string {
	names := make([]string, len(c.post))
	for i, p := range c.post {
		names[i] = p.Name()
	}
	return names
}

// ApplyPre runs the pre phase over one resource's content.
func (c *Chain) ApplyPre(ctx context.Context, res model.Resource, content string, rc *reqctx.Context) (string, error) {
	for _, p := range c.pre {
		if !p.Supports(res.Type) {
			continue
		}
		if minimizes(p) && (!rc.Minimize() || !res.Minimize) {
			continue
		}

		out, err := invoke(ctx, rc, p.Name(), PhasePre, res.URI, func(ctx context.Context) (string, error) {
			return p.Pre(ctx, res, content)
		})
		if err != nil {
			if err := tolerate(ctx, rc, err); err != nil {
				return "", err
			}
			continue
		}
		content = out
	}
	return content, nil
}

// ApplyPost runs the post phase over the merged content of a group.
func (c *Chain) ApplyPost(ctx context.Context, target Target, content string, rc *reqctx.Context) (string, error) {
	for _, p := range c.post {
		if !p.Supports(target.Type) {
			continue
		}
		if minimizes(p) && !rc.Minimize() {
			continue
		}

		out, err := invoke(ctx, rc, p.Name(), PhasePost, target.Subject(), func(ctx context.Context) (string, error) {
			return p.Post(ctx, target, content)
		})
		if err != nil {
			if err := tolerate(ctx, rc, err); err != nil {
				return "", err
			}
			continue
		}
		content = out
	}
	return content, nil
}

// tolerate applies the failure policy. It returns nil when the failure was
// recorded and the chain may continue.
func tolerate(ctx context.Context, rc *reqctx.Context, err error) error {
	var ee *ExecutionError
	if !errors.As(err, &ee) || ee.Kind == KindCanceled || errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	if !rc.Lenient() {
		return err
	}
	rc.RecordFailure(reqctx.Warning{
		Kind:      reqctx.WarnProcessor,
		Processor: ee.Processor,
		Subject:   ee.Subject,
		Message:   fmt.Sprintf("%s: %v", ee.Kind, ee.Err),
	})
	return nil
}

type result struct {
	out      string
	err      error
	panicked bool
}

// invoke runs fn on its own goroutine so that a processor ignoring its
// context cannot hold the chain past the deadline. The goroutine of an
// abandoned invocation finishes in the background and its output is
// dropped.
func invoke(ctx context.Context, rc *reqctx.Context, name string, phase Phase, subject string, fn func(context.Context) (string, error)) (string, error) {
	fail := func(kind FailureKind, err error) (string, error) {
		return "", &ExecutionError{Processor: name, Phase: phase, Subject: subject, Kind: kind, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(contextKind(err), err)
	}

	if timeout := rc.Options().ProcessorTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r), panicked: true}
			}
		}()
		out, err := fn(ctx)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		rc.Logger().Debug("processor finished",
			"processor", name,
			"phase", phase,
			"subject", subject,
			"duration", time.Since(started),
			"ok", res.err == nil,
		)
		switch {
		case res.panicked:
			return fail(KindPanic, res.err)
		case res.err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(contextKind(ctxErr), res.err)
			}
			return fail(KindFailed, res.err)
		}
		return res.out, nil
	case <-ctx.Done():
		return fail(contextKind(ctx.Err()), ctx.Err())
	}
}

func contextKind(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCanceled
}
