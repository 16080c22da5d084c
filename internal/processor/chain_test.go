package processor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

func acquire(t *testing.T, opts reqctx.Options) *reqctx.Context {
	t.Helper()
	pool := reqctx.NewPool()
	rc, err := pool.Acquire(opts)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Release(rc) })
	return rc
}

func appendPre(name, suffix string, types TypeSet, opts ...FuncOption) PreProcessor {
	return NewPre(name, types, func(_ context.Context, _ model.Resource, content string) (string, error) {
		return content + suffix, nil
	}, opts...)
}

func appendPost(name, suffix string, types TypeSet, opts ...FuncOption) PostProcessor {
	return NewPost(name, types, func(_ context.Context, _ Target, content string) (string, error) {
		return content + suffix, nil
	}, opts...)
}

func failingPre(name string) PreProcessor {
	return NewPre(name, AnyType, func(context.Context, model.Resource, string) (string, error) {
		return "garbage", errors.New("engine exploded")
	})
}

var cssRes = model.NewResource("a.css", model.TypeCSS)

// =============================================================================
// Construction
// =============================================================================

func TestNewChain_RejectsDuplicateNames(t *testing.T) {
	_, err := NewChain([]PreProcessor{appendPre("x", "1", AnyType), appendPre("x", "2", AnyType)}, nil)
	assert.ErrorContains(t, err, `duplicate pre-processor "x"`)

	_, err = NewChain(nil, []PostProcessor{appendPost("y", "1", AnyType), appendPost("y", "2", AnyType)})
	assert.ErrorContains(t, err, `duplicate post-processor "y"`)
}

func TestNewChain_SameNameInBothPhases(t *testing.T) {
	c, err := NewChain([]PreProcessor{appendPre("p", "", AnyType)}, []PostProcessor{appendPost("p", "", AnyType)})
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, c.PreNames())
	assert.Equal(t, []string{"p"}, c.PostNames())
}

// =============================================================================
// Ordering and type filtering
// =============================================================================

func TestApplyPre_DeclaredOrder(t *testing.T) {
	c := MustChain([]PreProcessor{
		appendPre("one", "1", AnyType),
		appendPre("two", "2", AnyType),
		appendPre("three", "3", AnyType),
	}, nil)
	rc := acquire(t, reqctx.Options{})

	out, err := c.ApplyPre(context.Background(), cssRes, "x", rc)
	require.NoError(t, err)
	assert.Equal(t, "x123", out)
}

func TestApplyPre_SkipsUnsupportedTypes(t *testing.T) {
	c := MustChain([]PreProcessor{
		appendPre("jsOnly", "J", Types(model.TypeJS)),
		appendPre("cssOnly", "C", Types(model.TypeCSS)),
	}, nil)
	rc := acquire(t, reqctx.Options{})

	out, err := c.ApplyPre(context.Background(), cssRes, "x", rc)
	require.NoError(t, err)
	assert.Equal(t, "xC", out)
}

func TestApplyPost_TypedProcessorsNeedKnownType(t *testing.T) {
	c := MustChain(nil, []PostProcessor{
		appendPost("cssOnly", "C", Types(model.TypeCSS)),
		appendPost("any", "A", AnyType),
	})
	rc := acquire(t, reqctx.Options{})

	out, err := c.ApplyPost(context.Background(), Target{Group: "g", Type: model.TypeCSS}, "x", rc)
	require.NoError(t, err)
	assert.Equal(t, "xCA", out)

	out, err = c.ApplyPost(context.Background(), Target{Group: "g"}, "x", rc)
	require.NoError(t, err)
	assert.Equal(t, "xA", out)
}

func TestApplyPre_MinimizersHonourContextAndResource(t *testing.T) {
	c := MustChain([]PreProcessor{
		appendPre("min", "M", AnyType, Minimizing()),
		appendPre("plain", "P", AnyType),
	}, nil)
	ctx := context.Background()

	out, err := c.ApplyPre(ctx, cssRes, "x", acquire(t, reqctx.Options{}))
	require.NoError(t, err)
	assert.Equal(t, "xMP", out)

	out, err = c.ApplyPre(ctx, cssRes, "x", acquire(t, reqctx.Options{Minimize: reqctx.Bool(false)}))
	require.NoError(t, err)
	assert.Equal(t, "xP", out)

	optOut := cssRes
	optOut.Minimize = false
	out, err = c.ApplyPre(ctx, optOut, "x", acquire(t, reqctx.Options{}))
	require.NoError(t, err)
	assert.Equal(t, "xP", out)
}

func TestApplyPost_MinimizerSkippedWhenMinimizeOff(t *testing.T) {
	c := MustChain(nil, []PostProcessor{appendPost("min", "M", AnyType, Minimizing())})
	out, err := c.ApplyPost(context.Background(), Target{Group: "g"}, "x", acquire(t, reqctx.Options{Minimize: reqctx.Bool(false)}))
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

// =============================================================================
// Failure policy
// =============================================================================

func TestApplyPre_FailFast(t *testing.T) {
	var after atomic.Int32
	c := MustChain([]PreProcessor{
		appendPre("first", "1", AnyType),
		failingPre("broken"),
		NewPre("after", AnyType, func(_ context.Context, _ model.Resource, s string) (string, error) {
			after.Add(1)
			return s, nil
		}),
	}, nil)
	rc := acquire(t, reqctx.Options{})

	_, err := c.ApplyPre(context.Background(), cssRes, "x", rc)
	require.Error(t, err)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "broken", ee.Processor)
	assert.Equal(t, PhasePre, ee.Phase)
	assert.Equal(t, "a.css", ee.Subject)
	assert.Equal(t, KindFailed, ee.Kind)
	assert.ErrorContains(t, err, "engine exploded")
	assert.Zero(t, after.Load(), "chain must stop at the failure")
}

func TestApplyPre_LenientRevertsAndContinues(t *testing.T) {
	c := MustChain([]PreProcessor{
		appendPre("first", "1", AnyType),
		failingPre("broken"),
		appendPre("last", "3", AnyType),
	}, nil)
	rc := acquire(t, reqctx.Options{Failures: reqctx.Lenient})

	out, err := c.ApplyPre(context.Background(), cssRes, "x", rc)
	require.NoError(t, err)
	assert.Equal(t, "x13", out, "failed processor output is discarded")

	warnings := rc.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, reqctx.WarnProcessor, warnings[0].Kind)
	assert.Equal(t, "broken", warnings[0].Processor)
	assert.Equal(t, "a.css", warnings[0].Subject)
	assert.Contains(t, warnings[0].Message, "engine exploded")
}

func TestApplyPost_LenientNamesGroup(t *testing.T) {
	c := MustChain(nil, []PostProcessor{NewPost("broken", AnyType, func(context.Context, Target, string) (string, error) {
		return "", errors.New("nope")
	})})
	rc := acquire(t, reqctx.Options{Failures: reqctx.Lenient})

	out, err := c.ApplyPost(context.Background(), Target{Group: "all"}, "merged", rc)
	require.NoError(t, err)
	assert.Equal(t, "merged", out)
	require.Len(t, rc.Warnings(), 1)
	assert.Equal(t, "group:all", rc.Warnings()[0].Subject)
}

func TestApplyPre_PanicIsIsolated(t *testing.T) {
	c := MustChain([]PreProcessor{NewPre("panicky", AnyType, func(context.Context, model.Resource, string) (string, error) {
		panic("index out of range")
	})}, nil)

	_, err := c.ApplyPre(context.Background(), cssRes, "x", acquire(t, reqctx.Options{}))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindPanic, ee.Kind)

	out, err := c.ApplyPre(context.Background(), cssRes, "x", acquire(t, reqctx.Options{Failures: reqctx.Lenient}))
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

// =============================================================================
// Deadlines and cancellation
// =============================================================================

func blockingPre(name string, release <-chan struct{}) PreProcessor {
	return NewPre(name, AnyType, func(_ context.Context, _ model.Resource, s string) (string, error) {
		<-release // ignores its context on purpose
		return s + "late", nil
	})
}

func TestApplyPre_ProcessorTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	c := MustChain([]PreProcessor{blockingPre("slow", release), appendPre("next", "N", AnyType)}, nil)

	_, err := c.ApplyPre(context.Background(), cssRes, "x", acquire(t, reqctx.Options{ProcessorTimeout: 20 * time.Millisecond}))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	out, err := c.ApplyPre(context.Background(), cssRes, "x", acquire(t, reqctx.Options{
		ProcessorTimeout: 20 * time.Millisecond,
		Failures:         reqctx.Lenient,
	}))
	require.NoError(t, err)
	assert.Equal(t, "xN", out)
}

func TestApplyPre_CallerDeadlineIsTimeoutKind(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := MustChain([]PreProcessor{blockingPre("slow", release)}, nil)
	_, err := c.ApplyPre(ctx, cssRes, "x", acquire(t, reqctx.Options{}))

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindTimeout, ee.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestApplyPre_CancellationAbortsEvenWhenLenient(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	c := MustChain([]PreProcessor{NewPre("slow", AnyType, func(_ context.Context, _ model.Resource, s string) (string, error) {
		close(started)
		<-release
		return s, nil
	})}, nil)

	go func() {
		<-started
		cancel()
	}()

	_, err := c.ApplyPre(ctx, cssRes, "x", acquire(t, reqctx.Options{Failures: reqctx.Lenient}))
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindCanceled, ee.Kind)
}

func TestApplyPre_ProcessorHonouringContext(t *testing.T) {
	c := MustChain([]PreProcessor{NewPre("polite", AnyType, func(ctx context.Context, _ model.Resource, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})}, nil)

	_, err := c.ApplyPre(context.Background(), cssRes, "x", acquire(t, reqctx.Options{ProcessorTimeout: 10 * time.Millisecond}))
	assert.True(t, IsTimeout(err))
}

func TestExecutionError_Message(t *testing.T) {
	err := &ExecutionError{Processor: "p", Phase: PhasePost, Subject: "group:g", Kind: KindTimeout, Err: context.DeadlineExceeded}
	assert.True(t, strings.HasPrefix(err.Error(), "processor p (post) timeout on group:g"))
}
