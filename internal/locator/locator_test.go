package locator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wro/internal/model"
)

// =============================================================================
// URI helpers
// =============================================================================

func TestJoin(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"/css/site.css", "parts/a.css", "/css/parts/a.css"},
		{"css/site.css", "../common.css", "common.css"},
		{"css/site.css", "/abs.css", "/abs.css"},
		{"css/site.css", "./same.css", "css/same.css"},
		{"site.css", "a.css", "a.css"},
		{"css/site.css", "http://cdn.example.com/x.css", "http://cdn.example.com/x.css"},
		{"css/site.css", "//cdn.example.com/x.css", "//cdn.example.com/x.css"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, Join(tt.base, tt.ref))
		})
	}
}

func TestIsExternal(t *testing.T) {
	assert.True(t, IsExternal("https://x/y.css"))
	assert.True(t, IsExternal("data:image/png;base64,AAA"))
	assert.True(t, IsExternal("//cdn/x.js"))
	assert.False(t, IsExternal("css/a.css"))
	assert.False(t, IsExternal("/css/a.css"))
	assert.False(t, IsExternal(":odd"))
}

// =============================================================================
// FileReader
// =============================================================================

func TestFileReader_ReadsRelativeAndRootedURIs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "a.css"), []byte("a{}"), 0o644))

	r := NewFileReader(dir)

	c1, err := r.Read(context.Background(), "css/a.css")
	require.NoError(t, err)
	assert.Equal(t, "a{}", string(c1.Data))
	assert.Equal(t, model.HashContent([]byte("a{}")), c1.Digest)

	c2, err := r.Read(context.Background(), "/css/a.css?v=1")
	require.NoError(t, err)
	assert.Equal(t, c1.Digest, c2.Digest)
}

func TestFileReader_MissingFile(t *testing.T) {
	r := NewFileReader(t.TempDir())

	_, err := r.Read(context.Background(), "nope.css")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope.css", nf.URI)
}

func TestFileReader_RejectsEscape(t *testing.T) {
	r := NewFileReader(t.TempDir())

	_, err := r.Read(context.Background(), "../etc/passwd")
	assert.True(t, IsNotFound(err))

	_, err = r.Read(context.Background(), "https://example.com/a.css")
	assert.True(t, IsNotFound(err))
}

func TestFileReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileReader(t.TempDir()).Read(ctx, "a.css")
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// MemoryReader / ChainReader
// =============================================================================

func TestMemoryReader_SetRemoveAndCount(t *testing.T) {
	m := NewMemoryReader(map[string]string{"/a.css": "a"})
	ctx := context.Background()

	c, err := m.Read(ctx, "/a.css")
	require.NoError(t, err)
	assert.Equal(t, "a", string(c.Data))
	assert.Equal(t, 1, m.Reads("/a.css"))

	m.Set("/a.css", "b")
	c, err = m.Read(ctx, "/a.css")
	require.NoError(t, err)
	assert.Equal(t, "b", string(c.Data))

	m.Remove("/a.css")
	_, err = m.Read(ctx, "/a.css")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 3, m.Reads("/a.css"))
}

func TestChainReader_FallsThroughNotFound(t *testing.T) {
	first := NewMemoryReader(map[string]string{"a.css": "first"})
	second := NewMemoryReader(map[string]string{"a.css": "second", "b.css": "b"})
	chain := Chain(first, second)
	ctx := context.Background()

	c, err := chain.Read(ctx, "a.css")
	require.NoError(t, err)
	assert.Equal(t, "first", string(c.Data))

	c, err = chain.Read(ctx, "b.css")
	require.NoError(t, err)
	assert.Equal(t, "b", string(c.Data))

	_, err = chain.Read(ctx, "c.css")
	assert.True(t, IsNotFound(err))
}

func TestChainReader_StopsOnOtherErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	failing := ReaderFunc(func(context.Context, string) (Content, error) {
		return Content{}, boom
	})
	chain := Chain(failing, NewMemoryReader(map[string]string{"a.css": "a"}))

	_, err := chain.Read(context.Background(), "a.css")
	assert.ErrorIs(t, err, boom)
}

// =============================================================================
// Snapshot
// =============================================================================

func TestSnapshot_ReadsEachURIOnce(t *testing.T) {
	m := NewMemoryReader(map[string]string{"a.css": "v1"})
	snap := NewSnapshot(m)
	ctx := context.Background()

	c1, err := snap.Read(ctx, "a.css")
	require.NoError(t, err)

	m.Set("a.css", "v2")

	c2, err := snap.Read(ctx, "./a.css")
	require.NoError(t, err)

	assert.Equal(t, "v1", string(c2.Data), "snapshot must keep the first observation")
	assert.Equal(t, c1.Digest, c2.Digest)
	assert.Equal(t, 1, m.Reads("a.css"))
}

func TestSnapshot_RemembersNotFound(t *testing.T) {
	m := NewMemoryReader(nil)
	snap := NewSnapshot(m)
	ctx := context.Background()

	_, err := snap.Read(ctx, "gone.css")
	assert.True(t, IsNotFound(err))

	m.Set("gone.css", "late")
	_, err = snap.Read(ctx, "gone.css")
	assert.True(t, IsNotFound(err))
}

func TestNotFoundError_Message(t *testing.T) {
	err := &NotFoundError{URI: "b.css", Importer: "a.css"}
	assert.Equal(t, "resource not found: b.css (imported by a.css)", err.Error())
}
