package reqctx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wro/internal/model"
)

// =============================================================================
// Options
// =============================================================================

func TestOptions_NormalizeDefaults(t *testing.T) {
	o := Options{}.Normalize()

	require.NotNil(t, o.Minimize)
	assert.True(t, *o.Minimize)
	assert.Equal(t, DefaultEncoding, o.Encoding)
	assert.Equal(t, MissingFail, o.MissingResources)
	assert.Equal(t, FailFast, o.Failures)
	assert.NoError(t, o.Validate())
}

func TestOptions_NormalizeCanonicalVariant(t *testing.T) {
	o := Options{Variant: "  café "}.Normalize()
	assert.Equal(t, "café", o.Variant)
}

func TestOptions_NormalizeCanonicalPolicies(t *testing.T) {
	o := Options{Failures: "fail-never", MissingResources: " SKIP "}.Normalize()
	assert.Equal(t, Lenient, o.Failures)
	assert.Equal(t, MissingSkip, o.MissingResources)
	assert.NoError(t, o.Validate())

	o = Options{Failures: "LENIENT"}.Normalize()
	assert.Equal(t, Lenient, o.Failures)

	o = Options{Failures: "yolo"}.Normalize()
	assert.Equal(t, FailurePolicy("yolo"), o.Failures)
}

func TestPool_AcquireHonoursPolicyAliases(t *testing.T) {
	pool := NewPool()
	rc, err := pool.Acquire(Options{Failures: "fail-never", MissingResources: "Skip"})
	require.NoError(t, err)
	defer pool.Release(rc)

	assert.True(t, rc.Lenient())
	assert.True(t, rc.SkipMissing())
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"bad type", Options{Type: "html"}},
		{"bad missing policy", Options{MissingResources: "ignore"}},
		{"bad failure policy", Options{Failures: "yolo"}},
		{"negative timeout", Options{ProcessorTimeout: -time.Second}},
		{"unknown encoding", Options{Encoding: "klingon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.opts.Normalize().Validate())
		})
	}
}

func TestParsePolicies(t *testing.T) {
	p, err := ParseFailurePolicy("fail-never")
	require.NoError(t, err)
	assert.Equal(t, Lenient, p)

	p, err = ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)

	m, err := ParseMissingPolicy("SKIP")
	require.NoError(t, err)
	assert.Equal(t, MissingSkip, m)

	_, err = ParseMissingPolicy("maybe")
	assert.Error(t, err)
}

// =============================================================================
// Pool / Scope
// =============================================================================

func TestPool_AcquireAppliesOptions(t *testing.T) {
	pool := NewPool(WithIDGenerator(NewFixedGenerator("req-1")))

	rc, err := pool.Acquire(Options{
		Minimize:         Bool(false),
		Variant:          "de",
		Type:             model.TypeCSS,
		MissingResources: MissingSkip,
		Failures:         Lenient,
	})
	require.NoError(t, err)
	defer pool.Release(rc)

	assert.Equal(t, "req-1", rc.ID())
	assert.False(t, rc.Minimize())
	assert.Equal(t, "de", rc.Variant())
	assert.Equal(t, model.TypeCSS, rc.Type())
	assert.True(t, rc.SkipMissing())
	assert.True(t, rc.Lenient())
	assert.Equal(t, "utf-8", rc.Encoding())
}

func TestPool_AcquireRejectsUnknownEncoding(t *testing.T) {
	_, err := NewPool().Acquire(Options{Encoding: "klingon-8"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "klingon-8")
}

func TestPool_ReleaseZeroesState(t *testing.T) {
	pool := NewPool(WithIDGenerator(NewFixedGenerator("a", "b")))

	rc, err := pool.Acquire(Options{Variant: "first", Failures: Lenient})
	require.NoError(t, err)
	rc.RecordFailure(Warning{Kind: WarnProcessor, Processor: "p", Subject: "x.css", Message: "boom"})
	pool.Release(rc)

	// Whatever the pool hands out next must not carry the previous
	// invocation's options or warnings.
	rc2, err := pool.Acquire(Options{})
	require.NoError(t, err)
	defer pool.Release(rc2)

	assert.Equal(t, "b", rc2.ID())
	assert.Empty(t, rc2.Variant())
	assert.False(t, rc2.Lenient())
	assert.Empty(t, rc2.Warnings())
}

func TestPool_UseAfterReleasePanics(t *testing.T) {
	pool := NewPool()
	rc, err := pool.Acquire(Options{})
	require.NoError(t, err)
	pool.Release(rc)

	assert.Panics(t, func() { rc.ID() })
	assert.Panics(t, func() { rc.Warnings() })
	assert.NotPanics(t, func() { pool.Release(rc) }, "double release is a no-op")
}

func TestPool_ForkOutlivesParent(t *testing.T) {
	p := NewPool(WithIDGenerator(NewFixedGenerator("req-1")))
	rc, err := p.Acquire(Options{Variant: "de", Failures: Lenient})
	require.NoError(t, err)
	rc.RecordFailure(Warning{Kind: WarnMissing, Subject: "a.css"})

	fork := p.Fork(rc)
	p.Release(rc)

	assert.Equal(t, "req-1", fork.ID())
	assert.Equal(t, "de", fork.Variant())
	assert.True(t, fork.Lenient())
	assert.Empty(t, fork.Warnings())

	p.Release(fork)
	assert.Panics(t, func() { fork.ID() })
}

func TestScope_ReleasesOnEveryExitPath(t *testing.T) {
	pool := NewPool()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		var held *Context
		err := Scope(ctx, pool, Options{}, func(_ context.Context, rc *Context) error {
			held = rc
			return nil
		})
		require.NoError(t, err)
		assert.Panics(t, func() { held.ID() })
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		var held *Context
		err := Scope(ctx, pool, Options{}, func(_ context.Context, rc *Context) error {
			held = rc
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Panics(t, func() { held.ID() })
	})

	t.Run("panic", func(t *testing.T) {
		var held *Context
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = Scope(ctx, pool, Options{}, func(_ context.Context, rc *Context) error {
				held = rc
				panic("kaboom")
			})
		})
		assert.Panics(t, func() { held.ID() })
	})
}

func TestScope_InvalidOptionsNeverCallFn(t *testing.T) {
	called := false
	err := Scope(context.Background(), NewPool(), Options{Failures: "nope"}, func(context.Context, *Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestScope_ContextCarriesInvocationLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	pool := NewPool(WithIDGenerator(NewFixedGenerator("req-42")))

	err := Scope(context.Background(), pool, Options{Logger: logger}, func(ctx context.Context, _ *Context) error {
		LoggerFrom(ctx).Info("hello")
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request=req-42")
}

func TestLoggerFrom_DefaultsToSlogDefault(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFrom(context.Background()))
}

// =============================================================================
// Warnings
// =============================================================================

func TestContext_RecordFailureConcurrent(t *testing.T) {
	pool := NewPool()
	rc, err := pool.Acquire(Options{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
	require.NoError(t, err)
	defer pool.Release(rc)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.RecordFailure(Warning{Kind: WarnMissing, Subject: "x.css", Message: "gone"})
		}()
	}
	wg.Wait()

	assert.Len(t, rc.Warnings(), 50)
}

func TestWarning_String(t *testing.T) {
	w := Warning{Kind: WarnProcessor, Processor: "cssVariables", Subject: "group:all", Message: "bad"}
	assert.Equal(t, "processor cssVariables failed on group:all: bad", w.String())

	w = Warning{Kind: WarnMissing, Subject: "a.css", Message: "not found"}
	assert.Equal(t, "skipped missing resource a.css: not found", w.String())
}

// =============================================================================
// Charset
// =============================================================================

func TestContext_UTF8PassesThrough(t *testing.T) {
	pool := NewPool()
	rc, err := pool.Acquire(Options{Encoding: "UTF8"})
	require.NoError(t, err)
	defer pool.Release(rc)

	raw := []byte("a\xffb")
	s, err := rc.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), s)

	out, err := rc.Encode(s)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestContext_Latin1RoundTrip(t *testing.T) {
	pool := NewPool()
	rc, err := pool.Acquire(Options{Encoding: "latin1"})
	require.NoError(t, err)
	defer pool.Release(rc)

	assert.Equal(t, "windows-1252", rc.Encoding())

	s, err := rc.Decode([]byte{'c', 'a', 'f', 0xe9})
	require.NoError(t, err)
	assert.Equal(t, "café", s)

	out, err := rc.Encode("café")
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9}, out)

	_, err = rc.Encode("日本")
	assert.Error(t, err)
}

// =============================================================================
// IDs
// =============================================================================

func TestFixedGenerator_Exhaustion(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
