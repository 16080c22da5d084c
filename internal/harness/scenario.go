package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a pipeline conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Files is the initial resource tree: uri -> content.
	Files map[string]string `yaml:"files"`

	// Groups in declaration order. Resource types come from the extension.
	Groups []GroupSpec `yaml:"groups"`

	Processors ProcessorSpec `yaml:"processors"`

	// Options apply to every build step unless the step overrides them.
	Options OptionsSpec `yaml:"options"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// GroupSpec declares one group.
type GroupSpec struct {
	Name      string   `yaml:"name"`
	Resources []string `yaml:"resources"`
}

// ProcessorSpec declares the chain.
type ProcessorSpec struct {
	Pre  []string `yaml:"pre,omitempty"`
	Post []string `yaml:"post,omitempty"`

	// Suffix defines processors that append text: name -> suffix.
	Suffix map[string]string `yaml:"suffix,omitempty"`

	// Failing defines processors that always fail.
	Failing []string `yaml:"failing,omitempty"`
}

// OptionsSpec mirrors reqctx.Options with YAML-friendly fields.
type OptionsSpec struct {
	Type     string `yaml:"type,omitempty"`
	Minimize *bool  `yaml:"minimize,omitempty"`
	Encoding string `yaml:"encoding,omitempty"`
	Variant  string `yaml:"variant,omitempty"`
	Missing  string `yaml:"missing,omitempty"`
	Failures string `yaml:"failures,omitempty"`
}

// Step is one scenario action. Exactly one of Build, Set and Remove is set.
type Step struct {
	// Build names the group to build.
	Build string `yaml:"build,omitempty"`

	// Concurrent runs the build this many times in parallel; the trace
	// records one result and the step fails unless all results agree.
	// Cache hits are not traced for concurrent builds since which caller
	// computes is not deterministic.
	Concurrent int `yaml:"concurrent,omitempty"`

	// Options override the scenario options for this build.
	Options *OptionsSpec `yaml:"options,omitempty"`

	// Set writes files: uri -> content.
	Set map[string]string `yaml:"set,omitempty"`

	// Remove deletes files.
	Remove []string `yaml:"remove,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a build step. Unset fields are not checked.
type Expect struct {
	Hit      *bool   `yaml:"hit,omitempty"`
	Content  *string `yaml:"content,omitempty"`
	Warnings *int    `yaml:"warnings,omitempty"`

	// Error is the expected error class (see classify); empty expects
	// success.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the scenario as a whole.
type Assertion struct {
	Type string `yaml:"type"`

	Count   int      `yaml:"count,omitempty"`
	Step    int      `yaml:"step,omitempty"`
	Steps   []int    `yaml:"steps,omitempty"`
	URIs    []string `yaml:"uris,omitempty"`
	Subject string   `yaml:"subject,omitempty"`
}

// Assertion type constants.
const (
	AssertComputations   = "computations"
	AssertSameContent    = "same_content"
	AssertConstituents   = "constituents"
	AssertProcessorCalls = "processor_calls"
	AssertReports        = "reports"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Groups) == 0 {
		return fmt.Errorf("groups list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, g := range s.Groups {
		if g.Name == "" {
			return fmt.Errorf("groups[%d]: name is required", i)
		}
	}

	for i, step := range s.Steps {
		actions := 0
		if step.Build != "" {
			actions++
		}
		if step.Set != nil {
			actions++
		}
		if step.Remove != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("steps[%d]: exactly one of build, set, remove is required", i)
		}
		if step.Build == "" && (step.Expect != nil || step.Options != nil || step.Concurrent != 0) {
			return fmt.Errorf("steps[%d]: expect, options and concurrent apply to build steps only", i)
		}
		if step.Concurrent < 0 {
			return fmt.Errorf("steps[%d]: concurrent must be non-negative", i)
		}
		if step.Concurrent > 1 && step.Expect != nil && step.Expect.Hit != nil {
			return fmt.Errorf("steps[%d]: hit cannot be expected for concurrent builds", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, steps int) error {
	validStep := func(n int) error {
		if n < 1 || n > steps {
			return fmt.Errorf("assertions[%d]: step %d out of range 1..%d", index, n, steps)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertComputations, AssertReports:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSameContent:
		if len(a.Steps) < 2 {
			return fmt.Errorf("assertions[%d]: at least two steps are required for same_content", index)
		}
		for _, n := range a.Steps {
			if err := validStep(n); err != nil {
				return err
			}
		}
	case AssertConstituents:
		if err := validStep(a.Step); err != nil {
			return err
		}
	case AssertProcessorCalls:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for processor_calls", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
