package locator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/roach88/wro/internal/model"
)

// Content is one read of a resource.
type Content struct {
	Data   []byte
	Digest model.Digest
}

// NewContent builds a Content, computing its digest.
func NewContent(data []byte) Content {
	return Content{Data: data, Digest: model.HashContent(data)}
}

// Reader reads resource content by URI.
//
// Implementations must be safe for concurrent use and must return a
// *NotFoundError (possibly wrapped) when the URI does not resolve.
type Reader interface {
	Read(ctx context.Context, uri string) (Content, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, uri string) (Content, error)

// Read implements Reader.
func (f ReaderFunc) Read(ctx context.Context, uri string) (Content, error) {
	return f(ctx, uri)
}

// NotFoundError reports a resource that cannot be read.
type NotFoundError struct {
	URI string

	// Importer is the URI of the resource whose import directive referenced
	// URI. Empty for resources listed directly in a group.
	Importer string

	Err error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("resource not found: %s", e.URI)
	if e.Importer != "" {
		msg += fmt.Sprintf(" (imported by %s)", e.Importer)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsExternal reports whether uri carries a scheme (http:, data:, ...) and
// therefore must not be resolved against another URI.
func IsExternal(uri string) bool {
	if strings.HasPrefix(uri, "//") {
		return true
	}
	i := strings.Index(uri, ":")
	if i <= 0 {
		return false
	}
	for _, c := range uri[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}

// Join resolves ref relative to the resource at base.
//
// Examples:
//
//	Join("/css/site.css", "parts/a.css")  // "/css/parts/a.css"
//	Join("css/site.css", "../common.css") // "common.css"
//	Join("css/site.css", "/abs.css")      // "/abs.css"
//	Join("css/site.css", "http://x/y.css") // unchanged
func Join(base, ref string) string {
	if IsExternal(ref) {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return path.Clean(ref)
	}
	return path.Join(path.Dir(base), ref)
}

// Normalize cleans a local URI. External URIs are returned unchanged.
func Normalize(uri string) string {
	if IsExternal(uri) || uri == "" {
		return uri
	}
	return path.Clean(uri)
}
