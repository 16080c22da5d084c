package loader

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error reports an invalid group model with its source position.
type Error struct {
	File   string
	Line   int // 0 when unknown
	Column int

	// Field is the path of the offending value, e.g. "groups[1].resources[0]".
	Field   string
	Message string
}

func (e *Error) Error() string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.File != "":
		loc = e.File + ": "
	case e.Line > 0:
		loc = fmt.Sprintf("%d:%d: ", e.Line, e.Column)
	}
	if e.Field == "" {
		return loc + e.Message
	}
	return fmt.Sprintf("%s%s: %s", loc, e.Field, e.Message)
}

// IsLoadError returns true if err is or wraps a loader Error.
func IsLoadError(err error) bool {
	var le *Error
	return errors.As(err, &le)
}

func posError(pos token.Pos, field, msg string) *Error {
	e := &Error{Field: field, Message: msg}
	if pos.IsValid() {
		e.File, e.Line, e.Column = pos.Filename(), pos.Line(), pos.Column()
	}
	return e
}

// fromCUE extracts the first error and its position from a CUE error list.
func fromCUE(err error, file string) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{File: file, Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	e := &Error{File: file, Field: "cue", Message: fmt.Sprintf(format, args...)}
	if path := first.Path(); len(path) > 0 {
		e.Field = joinPath(path)
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		e.File, e.Line, e.Column = positions[0].Filename(), positions[0].Line(), positions[0].Column()
	}
	return e
}

func joinPath(path []string) string {
	var out string
	for i, p := range path {
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			out += "[" + p + "]"
			continue
		}
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}
