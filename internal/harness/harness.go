package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/locator"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/pipeline"
	"github.com/roach88/wro/internal/processor"
	"github.com/roach88/wro/internal/reqctx"
	"github.com/roach88/wro/internal/resolver"
	"github.com/roach88/wro/internal/store"
	"github.com/roach88/wro/internal/testutil"
)

// Harness is the scenario execution environment.
// Every scenario runs against a fresh in-memory store, cache and resource
// tree, with deterministic ids and clock.
type Harness struct {
	store   *store.Store
	reader  *locator.MemoryReader
	model   *model.Model
	cache   *cache.Cache
	exec    *pipeline.Executor
	counter *testutil.Counter
	logger  *slog.Logger
	opts    OptionsSpec
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh in-memory database, resource tree and cache
//  2. Build the group model and the processor chain
//  3. Execute steps in order, checking per-step expectations
//  4. Evaluate assertions against the result
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	m, err := buildModel(scenario.Groups)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}

	counter := testutil.NewCounter()
	chain, err := buildChain(scenario.Processors, counter)
	if err != nil {
		return nil, fmt.Errorf("failed to build processor chain: %w", err)
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock(0)
	reader := locator.NewMemoryReader(scenario.Files)
	c := cache.New(pipeline.Hasher(reader),
		cache.WithBacking(st),
		cache.WithClock(clock.Now),
		cache.WithLogger(logger),
	)

	h := &Harness{
		store:  st,
		reader: reader,
		model:  m,
		cache:  c,
		exec: pipeline.New(reader, chain,
			pipeline.WithCache(c),
			pipeline.WithReporter(st),
			pipeline.WithPool(reqctx.NewPool(reqctx.WithIDGenerator(testutil.NewSequentialIDs("req")))),
			pipeline.WithClock(clock.Now),
			pipeline.WithLogger(logger),
		),
		counter: counter,
		logger:  logger,
		opts:    scenario.Options,
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	result.Computations = c.Stats().Computations
	reports, err := st.Reports(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	result.Reports = len(reports)
	for _, subject := range counter.Subjects() {
		result.ProcessorCalls[subject] = counter.Calls(subject)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	switch {
	case step.Set != nil:
		for _, uri := range sortedKeys(step.Set) {
			h.reader.Set(uri, step.Set[uri])
			result.Trace = append(result.Trace, TraceEvent{Step: n, Action: "set", Target: uri})
		}
		return nil
	case step.Remove != nil:
		for _, uri := range step.Remove {
			h.reader.Remove(uri)
			result.Trace = append(result.Trace, TraceEvent{Step: n, Action: "remove", Target: uri})
		}
		return nil
	default:
		return h.executeBuild(ctx, n, step, result)
	}
}

func (h *Harness) executeBuild(ctx context.Context, n int, step Step, result *Result) error {
	spec := h.opts
	if step.Options != nil {
		spec = *step.Options
	}
	opts, err := spec.options()
	if err != nil {
		return err
	}
	opts.Logger = h.logger

	runs := max(step.Concurrent, 1)
	artifacts := make([]*pipeline.Artifact, runs)
	errs := make([]error, runs)

	g, ok := h.model.Group(step.Build)
	if !ok {
		errs[0] = &model.UnknownGroupError{Ref: step.Build}
		runs = 1
	} else {
		var wg sync.WaitGroup
		for i := 0; i < runs; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				artifacts[i], errs[i] = h.exec.Run(ctx, g, opts)
			}()
		}
		wg.Wait()
	}

	event := TraceEvent{Step: n, Action: "build", Target: step.Build, Error: classify(errs[0])}
	if a := artifacts[0]; a != nil {
		event.Hit = a.CacheHit && runs == 1
		event.Content = string(a.Content)
		event.Constituents = a.Constituents
		for _, w := range a.Warnings {
			event.Warnings = append(event.Warnings, w.String())
		}
		result.contents[n] = a.Content
	}
	result.Trace = append(result.Trace, event)

	for i := 1; i < runs; i++ {
		if classify(errs[i]) != event.Error {
			result.AddError(fmt.Sprintf("step %d: concurrent build %d failed differently: %v", n, i, errs[i]))
		} else if artifacts[i] != nil && !bytes.Equal(artifacts[i].Content, artifacts[0].Content) {
			result.AddError(fmt.Sprintf("step %d: concurrent build %d produced different content", n, i))
		}
	}

	h.logger.Info("build step completed", "step", n, "group", step.Build, "error", errs[0])
	checkExpect(n, step.Expect, event, result)
	return nil
}

func checkExpect(n int, exp *Expect, event TraceEvent, result *Result) {
	if exp == nil {
		if event.Error != "" {
			result.AddError(fmt.Sprintf("step %d: unexpected error class %q", n, event.Error))
		}
		return
	}
	if exp.Error != event.Error {
		result.AddError(fmt.Sprintf("step %d: expected error class %q, got %q", n, exp.Error, event.Error))
	}
	if exp.Hit != nil && *exp.Hit != event.Hit {
		result.AddError(fmt.Sprintf("step %d: expected hit=%v, got %v", n, *exp.Hit, event.Hit))
	}
	if exp.Content != nil && *exp.Content != event.Content {
		result.AddError(fmt.Sprintf("step %d: expected content %q, got %q", n, *exp.Content, event.Content))
	}
	if exp.Warnings != nil && *exp.Warnings != len(event.Warnings) {
		result.AddError(fmt.Sprintf("step %d: expected %d warnings, got %d", n, *exp.Warnings, len(event.Warnings)))
	}
}

// classify maps a build error to the stable class recorded in traces.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case resolver.IsCyclicImportError(err):
		return "cyclic_import"
	case locator.IsNotFound(err):
		return "not_found"
	case processor.IsTimeout(err):
		return "processor_timeout"
	case processor.IsExecutionError(err):
		return "processor"
	case model.IsUnknownGroupError(err):
		return "unknown_group"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func (o OptionsSpec) options() (reqctx.Options, error) {
	opts := reqctx.Options{
		Minimize: o.Minimize,
		Encoding: o.Encoding,
		Variant:  o.Variant,
	}
	var err error
	if o.Type != "" {
		if opts.Type, err = model.ParseResourceType(o.Type); err != nil {
			return reqctx.Options{}, err
		}
	}
	if o.Missing != "" {
		if opts.MissingResources, err = reqctx.ParseMissingPolicy(o.Missing); err != nil {
			return reqctx.Options{}, err
		}
	}
	if o.Failures != "" {
		if opts.Failures, err = reqctx.ParseFailurePolicy(o.Failures); err != nil {
			return reqctx.Options{}, err
		}
	}
	return opts, nil
}

func buildModel(specs []GroupSpec) (*model.Model, error) {
	groups := make([]model.Group, len(specs))
	for i, spec := range specs {
		groups[i] = model.Group{Name: spec.Name}
		for _, uri := range spec.Resources {
			t, ok := model.TypeFromURI(uri)
			if !ok {
				return nil, fmt.Errorf("group %q: cannot infer type of %q", spec.Name, uri)
			}
			groups[i].Resources = append(groups[i].Resources, model.NewResource(uri, t))
		}
	}
	return model.NewModel(groups...)
}

func buildChain(spec ProcessorSpec, counter *testutil.Counter) (*processor.Chain, error) {
	reg := processor.Default()
	for _, name := range sortedKeys(spec.Suffix) {
		name := name
		suffix := spec.Suffix[name]
		if err := reg.RegisterPre(name, func() processor.PreProcessor {
			return testutil.CountingPre(name, suffix, processor.AnyType, counter)
		}); err != nil {
			return nil, err
		}
		if err := reg.RegisterPost(name, func() processor.PostProcessor {
			return testutil.CountingPost(name, suffix, processor.AnyType, counter)
		}); err != nil {
			return nil, err
		}
	}
	for _, name := range spec.Failing {
		name := name
		if err := reg.RegisterPre(name, func() processor.PreProcessor {
			return testutil.FailingPre(name)
		}); err != nil {
			return nil, err
		}
		if err := reg.RegisterPost(name, func() processor.PostProcessor {
			return testutil.FailingPost(name)
		}); err != nil {
			return nil, err
		}
	}
	return reg.Chain(spec.Pre, spec.Post)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
