package locator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileReader reads resources from a directory tree.
//
// URIs are slash-separated paths relative to Root; a leading slash is
// allowed and means the same thing. URIs that would escape Root are
// rejected.
type FileReader struct {
	Root string
}

// NewFileReader creates a reader rooted at dir.
func NewFileReader(dir string) *FileReader {
	return &FileReader{Root: dir}
}

// Read implements Reader.
func (r *FileReader) Read(ctx context.Context, uri string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	p, err := r.resolve(uri)
	if err != nil {
		return Content{}, &NotFoundError{URI: uri, Err: err}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Content{}, &NotFoundError{URI: uri, Err: fs.ErrNotExist}
		}
		return Content{}, fmt.Errorf("read %s: %w", uri, err)
	}
	return NewContent(data), nil
}

func (r *FileReader) resolve(uri string) (string, error) {
	if IsExternal(uri) {
		return "", fmt.Errorf("external uri not served from filesystem")
	}
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	rel := filepath.FromSlash(strings.TrimPrefix(Normalize(uri), "/"))
	if rel == "." || rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root")
	}
	return filepath.Join(r.Root, rel), nil
}
