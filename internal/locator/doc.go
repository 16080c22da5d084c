// Package locator provides the "read resource bytes by URI" capability the
// pipeline consumes.
//
// A Reader returns the current content of a resource together with its
// content digest. The pipeline never cares where bytes come from; readers
// for the filesystem and for in-memory content are provided here, and
// ChainReader composes several of them the way a locator factory would.
//
// Snapshot wraps a Reader for the duration of one pipeline run so that every
// stage (import resolution, processors, input hashing) observes the same
// bytes even if the underlying resource changes mid-run.
package locator
