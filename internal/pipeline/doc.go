// Package pipeline turns a group into a merged artifact.
//
// An Executor ties the other packages together:
//
//  1. Derive the cache key from the group name and the request's variant
//     flags (type, minimize, variant, encoding).
//  2. Ask the cache for a fresh entry. Freshness is checked by re-reading
//     every constituent resource and comparing input hashes.
//  3. On a miss or a stale entry, inside the key's single-flight slot:
//     resolve imports for every resource in group order, run the
//     pre-processing chain per resolved resource, join the results with
//     Separator, run the post-processing chain once on the merged text,
//     encode it in the request charset and store the entry.
//
// All reads of one computation go through a locator.Snapshot, so the
// content that is resolved, processed and hashed is the same bytes even if
// a file changes mid-build.
//
// # Separator
//
// Consecutive resource contents are joined with a single "\n". Nothing is
// added before the first or after the last resource, and resources skipped
// as missing contribute nothing. A newline ends a trailing "//" comment in
// a script and cannot merge tokens of adjacent files; scripts that need a
// statement terminator get one from the semicolonAppender processor.
package pipeline
