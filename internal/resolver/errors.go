package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// CyclicImportError reports a resource that imports itself, directly or
// transitively. It is always fatal.
type CyclicImportError struct {
	// Path is the import chain from the root resource to the repeated URI:
	// ["main.css", "a.css", "b.css", "a.css"].
	Path []string
}

func (e *CyclicImportError) Error() string {
	return fmt.Sprintf("cyclic import: %s", strings.Join(e.Path, " → "))
}

// IsCyclicImportError returns true if err is or wraps a CyclicImportError.
func IsCyclicImportError(err error) bool {
	var ce *CyclicImportError
	return errors.As(err, &ce)
}
