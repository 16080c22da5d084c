// Package reqctx implements the per-invocation request context.
//
// A Context bundles the configuration of one pipeline invocation (minimize
// on/off, output encoding, variant selector, missing-resource and failure
// policies) together with the warnings recorded while the invocation runs.
// It is passed explicitly through the resolver, the processor chain and the
// executor; nothing in the pipeline reads request configuration from
// goroutine-local or global state.
//
// Contexts are pooled. Pool.Acquire hands out a Context and Pool.Release
// zeroes it before it can be handed out again, so no option or warning of
// one invocation is visible to the next invocation that reuses the same
// value. Scope pairs the two and releases on every exit path, including
// error returns and panics:
//
//	err := reqctx.Scope(ctx, pool, opts, func(ctx context.Context, rc *reqctx.Context) error {
//	    return exec.Build(ctx, group, rc)
//	})
package reqctx
