package reqctx

import "fmt"

// WarningKind classifies a recorded, non-fatal failure.
type WarningKind string

const (
	// WarnProcessor is a processor failure tolerated by the lenient policy.
	WarnProcessor WarningKind = "processor"

	// WarnMissing is an unreadable resource tolerated by the skip policy.
	WarnMissing WarningKind = "missing"
)

// Warning is a failure that did not abort the invocation.
type Warning struct {
	Kind WarningKind `json:"kind"`

	// Processor names the failed processor (WarnProcessor only).
	Processor string `json:"processor,omitempty"`

	// Subject is the resource URI, or "group:<name>" for post-processors.
	Subject string `json:"subject"`

	Message string `json:"message"`
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnProcessor:
		return fmt.Sprintf("processor %s failed on %s: %s", w.Processor, w.Subject, w.Message)
	case WarnMissing:
		return fmt.Sprintf("skipped missing resource %s: %s", w.Subject, w.Message)
	default:
		return fmt.Sprintf("%s: %s", w.Subject, w.Message)
	}
}
