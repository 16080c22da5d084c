package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates an entry with a compressible artifact.
func createTestEntry(artifact string) *cache.Entry {
	return &cache.Entry{
		Artifact:     []byte(artifact),
		InputHash:    model.InputHash([]model.Digest{model.HashContent([]byte(artifact))}),
		ComputedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Constituents: []string{"css/a.css", "css/b.css"},
		Warnings: []reqctx.Warning{
			{Kind: reqctx.WarnProcessor, Processor: "cssVariables", Subject: "group:main", Message: "failed: bad"},
		},
	}
}

func repeated(s string, n int) string {
	return strings.Repeat(s, n)
}

var testKey = cache.NewKey("main", model.TypeCSS, true, "")
