package reqctx

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/wro/internal/model"
)

// MissingPolicy decides what happens when a resource cannot be read.
type MissingPolicy string

const (
	// MissingFail aborts the build with a NotFoundError (default).
	MissingFail MissingPolicy = "fail"

	// MissingSkip records a warning and leaves the resource out.
	MissingSkip MissingPolicy = "skip"
)

// ParseMissingPolicy converts a flag or config value into a MissingPolicy.
// Empty selects the default.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissingFail:
		return MissingFail, nil
	case MissingSkip:
		return MissingSkip, nil
	default:
		return "", fmt.Errorf("invalid missing-resource policy %q: must be fail or skip", s)
	}
}

// FailurePolicy decides what happens when a processor fails.
type FailurePolicy string

const (
	// FailFast aborts the build on the first processor failure (default).
	FailFast FailurePolicy = "fail-fast"

	// Lenient records the failure, discards the failed processor's output
	// and continues with the next processor.
	Lenient FailurePolicy = "lenient"
)

// ParseFailurePolicy converts a flag or config value into a FailurePolicy.
// "fail-never" is accepted as an alias for lenient.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailFast:
		return FailFast, nil
	case Lenient, "fail-never":
		return Lenient, nil
	default:
		return "", fmt.Errorf("invalid failure policy %q: must be fail-fast or lenient", s)
	}
}

// DefaultEncoding is the charset used when Options.Encoding is empty.
const DefaultEncoding = "utf-8"

// Options configures one pipeline invocation.
//
// The zero value is usable: Normalize fills in minimize on, UTF-8,
// fail on missing resources and fail-fast.
type Options struct {
	// Minimize enables minimizing processors. Nil means true.
	Minimize *bool

	// Encoding is the charset of resource content and of the artifact.
	// Any WHATWG encoding label is accepted.
	Encoding string

	// Variant selects an artifact variant (locale, theme). It is part of
	// the cache key and otherwise opaque to the pipeline.
	Variant string

	// Type selects which resources of a group are built. Empty builds the
	// resources of every type into one artifact.
	Type model.ResourceType

	MissingResources MissingPolicy
	Failures         FailurePolicy

	// ProcessorTimeout bounds each single processor invocation.
	// Zero means only the caller's deadline applies.
	ProcessorTimeout time.Duration

	// Logger receives invocation logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// Bool returns a pointer to b, for Options.Minimize.
func Bool(b bool) *bool {
	return &b
}

// Normalize returns a copy of o with defaults applied.
func (o Options) Normalize() Options {
	if o.Minimize == nil {
		o.Minimize = Bool(true)
	}
	if strings.TrimSpace(o.Encoding) == "" {
		o.Encoding = DefaultEncoding
	}
	// Unparseable policies are kept as given for Validate to reject.
	if p, err := ParseMissingPolicy(string(o.MissingResources)); err == nil {
		o.MissingResources = p
	}
	if p, err := ParseFailurePolicy(string(o.Failures)); err == nil {
		o.Failures = p
	}
	o.Variant = model.CanonicalName(o.Variant)
	return o
}

// Validate checks a normalized Options value.
func (o Options) Validate() error {
	if o.Type != "" && !o.Type.Valid() {
		return fmt.Errorf("invalid resource type %q", o.Type)
	}
	if _, err := ParseMissingPolicy(string(o.MissingResources)); err != nil {
		return err
	}
	if _, err := ParseFailurePolicy(string(o.Failures)); err != nil {
		return err
	}
	if o.ProcessorTimeout < 0 {
		return fmt.Errorf("processor timeout must not be negative, got %s", o.ProcessorTimeout)
	}
	if _, _, err := lookupEncoding(o.Encoding); err != nil {
		return err
	}
	return nil
}
