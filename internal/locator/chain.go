package locator

import (
	"context"
	"sync"
)

// ChainReader tries each reader in order and returns the first result that
// is not a NotFoundError. Any other error stops the chain.
type ChainReader []Reader

// Chain creates a ChainReader.
func Chain(readers ...Reader) ChainReader {
	return ChainReader(readers)
}

// Read implements Reader.
func (c ChainReader) Read(ctx context.Context, uri string) (Content, error) {
	for _, r := range c {
		content, err := r.Read(ctx, uri)
		if err == nil {
			return content, nil
		}
		if !IsNotFound(err) {
			return Content{}, err
		}
	}
	return Content{}, &NotFoundError{URI: uri}
}

// Snapshot memoizes reads for one pipeline run.
//
// Every URI is read from the underlying Reader at most once; later reads of
// the same URI return the first result, including its error. A Snapshot is
// not meant to outlive the run it was created for.
type Snapshot struct {
	src Reader

	mu      sync.Mutex
	results map[string]snapshotResult
}

type snapshotResult struct {
	content Content
	err     error
}

// NewSnapshot wraps r.
func NewSnapshot(r Reader) *Snapshot {
	return &Snapshot{src: r, results: make(map[string]snapshotResult)}
}

// Read implements Reader.
func (s *Snapshot) Read(ctx context.Context, uri string) (Content, error) {
	key := Normalize(uri)

	s.mu.Lock()
	if res, ok := s.results[key]; ok {
		s.mu.Unlock()
		return res.content, res.err
	}
	s.mu.Unlock()

	content, err := s.src.Read(ctx, uri)
	if err != nil && ctx.Err() != nil {
		// A cancelled read says nothing about the resource; don't pin it.
		return Content{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[key]; ok {
		return res.content, res.err
	}
	s.results[key] = snapshotResult{content: content, err: err}
	return content, err
}
