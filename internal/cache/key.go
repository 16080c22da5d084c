package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

// Key identifies one cached artifact: a group and the variant flags that
// change its output.
type Key struct {
	Group    string
	Type     model.ResourceType
	Minimize bool
	Variant  string

	// Encoding is the artifact charset. Empty means UTF-8.
	Encoding string

	// Lenient and SkipMissing record the failure policies the artifact was
	// built under; a tolerated failure must not be served to a caller that
	// asked for it to be fatal.
	Lenient     bool
	SkipMissing bool
}

// NewKey builds a Key with canonical group and variant names.
func NewKey(group string, t model.ResourceType, minimize bool, variant string) Key {
	return Key{
		Group:    model.CanonicalName(group),
		Type:     t,
		Minimize: minimize,
		Variant:  model.CanonicalName(variant),
	}
}

// String returns the canonical form, used for single-flight slots and as
// the persistent key.
//
// Format: group=<g>;type=<t>;minimize=<bool>;variant=<v>[;encoding=<e>][;lenient][;skip-missing]
// Group and variant are quoted so separators inside names cannot make two
// keys collide. The optional parts are omitted at their defaults.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString("group=")
	b.WriteString(strconv.Quote(model.CanonicalName(k.Group)))
	b.WriteString(";type=")
	b.WriteString(string(k.Type))
	b.WriteString(";minimize=")
	b.WriteString(strconv.FormatBool(k.Minimize))
	b.WriteString(";variant=")
	b.WriteString(strconv.Quote(model.CanonicalName(k.Variant)))
	if enc := strings.ToLower(k.Encoding); enc != "" && enc != reqctx.DefaultEncoding {
		b.WriteString(";encoding=")
		b.WriteString(enc)
	}
	if k.Lenient {
		b.WriteString(";lenient")
	}
	if k.SkipMissing {
		b.WriteString(";skip-missing")
	}
	return b.String()
}

// Hash returns a fixed-length identifier of the key.
func (k Key) Hash() model.Digest {
	return model.KeyHash(k.String())
}

// Entry is a computed artifact.
//
// Entries are shared between every caller that receives them and must be
// treated as read-only.
type Entry struct {
	Artifact []byte

	// InputHash is model.InputHash over the digests of Constituents, in
	// order, as observed when the artifact was built.
	InputHash model.Digest

	ComputedAt time.Time

	// Constituents are the URIs of every resource that contributed to the
	// artifact, imports included, in resolution order.
	Constituents []string

	// Warnings are the failures tolerated while building the artifact.
	// Every caller served from this entry sees them.
	Warnings []reqctx.Warning
}
