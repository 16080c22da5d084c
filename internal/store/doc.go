// Package store provides SQLite-backed persistence for the artifact cache
// and for build reports.
//
// The store holds two tables:
//   - cache_entries: one row per cache key with the artifact, its input
//     hash and the URIs it was built from. Store implements cache.Backing,
//     so a cache created with cache.WithBacking(store) survives process
//     restarts; freshness is still checked against current resource
//     content on every lookup.
//   - build_reports: an append-only log of pipeline invocations (request
//     id, key, hit or miss, duration, tolerated warnings, error).
//
// Artifacts are compressed with lz4 or zstd (configurable, see
// WithCompression); content that does not shrink is stored as is.
// Constituent lists and warnings are encoded as deterministic CBOR.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
