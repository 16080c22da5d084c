package locator

import (
	"context"
	"sync"
)

// MemoryReader serves resources from memory. It is safe for concurrent use
// and counts reads per URI, which tests use to assert caching behaviour.
type MemoryReader struct {
	mu    sync.RWMutex
	files map[string][]byte
	reads map[string]int
}

// NewMemoryReader creates a reader holding the given uri → content pairs.
func NewMemoryReader(files map[string]string) *MemoryReader {
	m := &MemoryReader{
		files: make(map[string][]byte, len(files)),
		reads: make(map[string]int),
	}
	for uri, content := range files {
		m.files[Normalize(uri)] = []byte(content)
	}
	return m
}

// Set stores or replaces the content for uri.
func (m *MemoryReader) Set(uri, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[Normalize(uri)] = []byte(content)
}

// Remove deletes uri; later reads return NotFoundError.
func (m *MemoryReader) Remove(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, Normalize(uri))
}

// Reads returns how many times uri was read.
func (m *MemoryReader) Reads(uri string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[Normalize(uri)]
}

// Read implements Reader.
func (m *MemoryReader) Read(ctx context.Context, uri string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	key := Normalize(uri)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads[key]++
	data, ok := m.files[key]
	if !ok {
		return Content{}, &NotFoundError{URI: uri}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return NewContent(cp), nil
}
