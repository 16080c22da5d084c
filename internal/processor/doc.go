// Package processor defines the transformation plugin contract and the
// ordered chain that applies plugins to resource content.
//
// A chain has two phases. Pre-processors run once per resource, in
// declared order, each consuming the previous one's output. Post-processors
// run once over the merged content of a group. A processor declares the
// resource types it supports; a processor that does not support the
// subject's type is skipped.
//
// Failure isolation: every invocation runs on its own goroutine under the
// invocation deadline (and the per-processor timeout, when configured).
// A failure, timeout or panic becomes an *ExecutionError. Under the
// fail-fast policy the first error aborts the chain; under the lenient
// policy the error is recorded on the request context, the failed
// processor's output is discarded and the chain continues with the content
// as it was before that processor ran. Cancellation by the caller always
// aborts.
//
// Chains are assembled explicitly, either directly with NewChain or by
// name through a Registry; there is no discovery.
package processor
