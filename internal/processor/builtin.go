package processor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
)

// Built-in processor names.
const (
	BOMStripperName       = "bomStripper"
	SemicolonAppenderName = "semicolonAppender"
	CSSURLRewritingName   = "cssUrlRewriting"
	PlaceholderName       = "placeholder"
	CSSVariablesName      = "cssVariables"
)

const bom = "\uFEFF"

// BOMStripper removes a leading byte order mark, which would otherwise end
// up in the middle of the merged artifact.
func BOMStripper() PreProcessor {
	return NewPre(BOMStripperName, AnyType, func(_ context.Context, _ model.Resource, content string) (string, error) {
		return strings.TrimPrefix(content, bom), nil
	})
}

// SemicolonAppender terminates scripts with a semicolon so that merging
// cannot join the last statement of one script to the first of the next.
// Trailing whitespace is kept after the inserted semicolon.
func SemicolonAppender() PreProcessor {
	return NewPre(SemicolonAppenderName, Types(model.TypeJS), func(_ context.Context, _ model.Resource, content string) (string, error) {
		trimmed := strings.TrimRight(content, " \t\r\n")
		if trimmed == "" || strings.HasSuffix(trimmed, ";") {
			return content, nil
		}
		return trimmed + ";" + content[len(trimmed):], nil
	})
}

var cssURLPattern = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s"']*))\s*\)`)

// CSSURLRewriting rewrites relative url(...) references so they stay
// valid once the stylesheet is served from the artifact location: each
// reference becomes rooted ("/css/img/a.png") relative to the directory of
// the resource it came from. Absolute, external, data and fragment
// references are left alone.
func CSSURLRewriting() PreProcessor {
	return NewPre(CSSURLRewritingName, Types(model.TypeCSS), func(_ context.Context, res model.Resource, content string) (string, error) {
		base := "/" + strings.TrimPrefix(res.URI, "/")
		return cssURLPattern.ReplaceAllStringFunc(content, func(match string) string {
			m := cssURLPattern.FindStringSubmatch(match)
			quote, ref := "", m[3]
			switch {
			case m[1] != "":
				quote, ref = `"`, m[1]
			case m[2] != "":
				quote, ref = "'", m[2]
			}
			if ref == "" || locator.IsExternal(ref) || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") {
				return match
			}
			return "url(" + quote + locator.Join(base, ref) + quote + ")"
		}), nil
	})
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.\-]*)\}`)

// PlaceholderProcessor substitutes ${NAME} with values from a lookup
// function. Unknown names are left untouched. It runs in either phase.
type PlaceholderProcessor struct {
	lookup func(string) (string, bool)
}

// Placeholder creates a PlaceholderProcessor.
func Placeholder(lookup func(string) (string, bool)) *PlaceholderProcessor {
	return &PlaceholderProcessor{lookup: lookup}
}

// PlaceholderMap creates a PlaceholderProcessor over a fixed map.
func PlaceholderMap(vars map[string]string) *PlaceholderProcessor {
	return Placeholder(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})
}

func (p *PlaceholderProcessor) Name() string                    { return PlaceholderName }
func (p *PlaceholderProcessor) Supports(model.ResourceType) bool { return true }

func (p *PlaceholderProcessor) Pre(_ context.Context, _ model.Resource, content string) (string, error) {
	return p.replace(content), nil
}

func (p *PlaceholderProcessor) Post(_ context.Context, _ Target, content string) (string, error) {
	return p.replace(content), nil
}

func (p *PlaceholderProcessor) replace(content string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		if v, ok := p.lookup(match[2 : len(match)-1]); ok {
			return v
		}
		return match
	})
}

var (
	cssVariablesBlock = regexp.MustCompile(`@variables\s*[^{]*\{([^}]*)\}[ \t]*(?:\r?\n)?`)
	cssVariableRef    = regexp.MustCompile(`var\(\s*([A-Za-z_][A-Za-z0-9_\-]*)\s*\)`)
)

// CSSVariables expands @variables blocks over the merged stylesheet:
//
//	@variables { accent: #c00; }
//	a { color: var(accent) }   // a { color: #c00 }
//
// Blocks are removed from the output. References to undeclared names are
// left in place so native CSS custom properties pass through. A malformed
// declaration is an error.
func CSSVariables() PostProcessor {
	return NewPost(CSSVariablesName, Types(model.TypeCSS), func(_ context.Context, _ Target, content string) (string, error) {
		vars := make(map[string]string)
		for _, block := range cssVariablesBlock.FindAllStringSubmatch(content, -1) {
			for _, decl := range strings.Split(block[1], ";") {
				decl = strings.TrimSpace(decl)
				if decl == "" {
					continue
				}
				name, value, ok := strings.Cut(decl, ":")
				if !ok || strings.TrimSpace(name) == "" {
					return "", fmt.Errorf("malformed variable declaration %q", decl)
				}
				vars[strings.TrimSpace(name)] = strings.TrimSpace(value)
			}
		}
		if len(vars) == 0 {
			return content, nil
		}
		content = cssVariablesBlock.ReplaceAllString(content, "")
		return cssVariableRef.ReplaceAllStringFunc(content, func(match string) string {
			name := cssVariableRef.FindStringSubmatch(match)[1]
			if v, ok := vars[name]; ok {
				return v
			}
			return match
		}), nil
	})
}
