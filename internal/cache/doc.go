// Package cache implements the content-hash artifact cache.
//
// An Entry stores an artifact together with the input hash it was built
// from and the URIs of every resource that contributed to it. Freshness is
// decided on every lookup by recomputing the input hash from the current
// content of those resources: an entry is served only while the two
// hashes match. Changing one resource therefore invalidates exactly the
// entries that were built from it.
//
// Misses and stale entries are recomputed under a per-key single-flight
// slot. Concurrent callers for one key share a single computation; callers
// for different keys never wait on each other. The map of entries is
// locked only for insertion, lookup and removal, never across a
// computation.
//
// A Backing (see internal/store) can persist entries across processes; the
// in-memory map stays authoritative while the process runs.
package cache
