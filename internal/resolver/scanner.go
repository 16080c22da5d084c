package resolver

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// Import is one import directive found in resource content.
type Import struct {
	// Ref is the referenced URI as written, relative to the importer.
	Ref string

	// Media is the media query list following the reference, if any.
	Media string

	// Start and End delimit the directive in the scanned content.
	Start, End int
}

// Scanner finds import directives in the content of one resource type.
type Scanner interface {
	Scan(content string) []Import
}

// ScannerFunc adapts a function to the Scanner interface.
type ScannerFunc func(content string) []Import

// Scan implements Scanner.
func (f ScannerFunc) Scan(content string) []Import {
	return f(content)
}

// CSSScanner recognizes @import url(...), @import "..." and @import '...',
// each with an optional media list. Only top-level at-rules count: text
// inside comments, strings and blocks is never an import.
var CSSScanner Scanner = ScannerFunc(scanCSS)

func scanCSS(content string) []Import {
	var (
		imports []Import
		s       = scanner.New(content)
		pos     int
		depth   int
		cur     *Import
		refSeen bool
		media   int
	)
	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF || tok.Type == scanner.TokenError {
			// An unterminated directive is not an import.
			return imports
		}
		start := pos
		pos += len(tok.Value)

		if cur != nil {
			switch {
			case tok.Type == scanner.TokenS || tok.Type == scanner.TokenComment:
			case !refSeen && tok.Type == scanner.TokenString:
				cur.Ref = strings.TrimSpace(unquote(tok.Value))
				refSeen, media = true, pos
			case !refSeen && tok.Type == scanner.TokenURI:
				cur.Ref = urlRef(tok.Value)
				refSeen, media = true, pos
			case !refSeen:
				cur = nil
			case tok.Type == scanner.TokenChar && tok.Value == ";":
				cur.Media = strings.TrimSpace(content[media:start])
				cur.End = pos + trailingBlank(content[pos:])
				imports = append(imports, *cur)
				cur = nil
			case tok.Type == scanner.TokenChar && (tok.Value == "{" || tok.Value == "}"):
				cur = nil
			}
			if cur != nil {
				continue
			}
		}

		switch {
		case tok.Type == scanner.TokenChar && tok.Value == "{":
			depth++
		case tok.Type == scanner.TokenChar && tok.Value == "}":
			if depth > 0 {
				depth--
			}
		case tok.Type == scanner.TokenAtKeyword && depth == 0 && strings.EqualFold(tok.Value, "@import"):
			cur = &Import{Start: start}
			refSeen = false
		}
	}
}

// unquote drops the quotes of a CSS string token.
func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

// urlRef extracts the reference of a url(...) token.
func urlRef(tok string) string {
	ref := strings.TrimSpace(tok[len("url(") : len(tok)-1])
	if len(ref) >= 2 && (ref[0] == '"' || ref[0] == '\'') {
		ref = strings.TrimSpace(unquote(ref))
	}
	return ref
}

// trailingBlank is the length of the blanks and single line break that
// follow a directive.
func trailingBlank(rest string) int {
	n := len(rest) - len(strings.TrimLeft(rest, " \t"))
	switch {
	case strings.HasPrefix(rest[n:], "\r\n"):
		n += 2
	case strings.HasPrefix(rest[n:], "\n"):
		n++
	}
	return n
}

// strip removes the given directives from content. Directives must be in
// ascending order, as Scan returns them.
func strip(content string, directives []Import) string {
	if len(directives) == 0 {
		return content
	}
	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, d := range directives {
		b.WriteString(content[last:d.Start])
		last = d.End
	}
	b.WriteString(content[last:])
	return b.String()
}
