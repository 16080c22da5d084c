package harness

// TraceEvent records what one step observed.
type TraceEvent struct {
	Step   int    `json:"step"`
	Action string `json:"action"` // "build", "set" or "remove"

	// Target is the group for builds and the uri for file edits.
	Target string `json:"target"`

	// Hit is always false for concurrent builds.
	Hit          bool     `json:"hit,omitempty"`
	Content      string   `json:"content,omitempty"`
	Constituents []string `json:"constituents,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`

	// Error is the error class of a failed build (see classify).
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per file edit and per build, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Computations and Reports are read after the last step.
	Computations int64 `json:"computations"`
	Reports      int   `json:"reports"`

	// ProcessorCalls counts suffix processor invocations per subject.
	ProcessorCalls map[string]int `json:"processor_calls,omitempty"`

	// contents holds the raw artifact of each build step, by step number.
	contents map[int][]byte
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:           true,
		Trace:          []TraceEvent{},
		Errors:         []string{},
		ProcessorCalls: make(map[string]int),
		contents:       make(map[int][]byte),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// event returns the build event for step n, if any.
func (r *Result) event(n int) (TraceEvent, bool) {
	for _, e := range r.Trace {
		if e.Step == n && e.Action == "build" {
			return e, true
		}
	}
	return TraceEvent{}, false
}
