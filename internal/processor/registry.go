package processor

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// Registry maps processor names to factories.
//
// Chains are built from a registry by listing names in application order;
// the registry itself imposes no order. Aliases let configuration keep
// working when a processor is renamed.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	pre     map[string]func() PreProcessor
	post    map[string]func() PostProcessor
	aliases map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		pre:     make(map[string]func() PreProcessor),
		post:    make(map[string]func() PostProcessor),
		aliases: make(map[string]string),
	}
}

// Default returns a registry holding the built-in processors:
//
//	pre:  bomStripper, semicolonAppender, cssUrlRewriting, placeholder
//	post: cssVariables, placeholder
//
// placeholder substitutes ${NAME} from the process environment.
func Default() *Registry {
	return DefaultWithLookup(os.LookupEnv)
}

// DefaultWithLookup is like Default but placeholder resolves names with
// lookup.
func DefaultWithLookup(lookup func(string) (string, bool)) *Registry {
	r := NewRegistry()
	r.MustRegisterPre(BOMStripperName, func() PreProcessor { return BOMStripper() })
	r.MustRegisterPre(SemicolonAppenderName, func() PreProcessor { return SemicolonAppender() })
	r.MustRegisterPre(CSSURLRewritingName, func() PreProcessor { return CSSURLRewriting() })
	r.MustRegisterPre(PlaceholderName, func() PreProcessor { return Placeholder(lookup) })
	r.MustRegisterPost(CSSVariablesName, func() PostProcessor { return CSSVariables() })
	r.MustRegisterPost(PlaceholderName, func() PostProcessor { return Placeholder(lookup) })

	r.Alias("bom", BOMStripperName)
	r.Alias("semicolon", SemicolonAppenderName)
	r.Alias("cssUrl", CSSURLRewritingName)
	return r
}

// RegisterPre adds a pre-processor factory. Registering a name twice in
// the same phase is an error.
func (r *Registry) RegisterPre(name string, factory func() PreProcessor) error {
	if name == "" || factory == nil {
		return fmt.Errorf("pre-processor registration requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.pre[name]; dup {
		return fmt.Errorf("pre-processor %q already registered", name)
	}
	r.pre[name] = factory
	return nil
}

// RegisterPost adds a post-processor factory.
func (r *Registry) RegisterPost(name string, factory func() PostProcessor) error {
	if name == "" || factory == nil {
		return fmt.Errorf("post-processor registration requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.post[name]; dup {
		return fmt.Errorf("post-processor %q already registered", name)
	}
	r.post[name] = factory
	return nil
}

// MustRegisterPre is RegisterPre that panics on error.
func (r *Registry) MustRegisterPre(name string, factory func() PreProcessor) {
	if err := r.RegisterPre(name, factory); err != nil {
		panic(err)
	}
}

// MustRegisterPost is RegisterPost that panics on error.
func (r *Registry) MustRegisterPost(name string, factory func() PostProcessor) {
	if err := r.RegisterPost(name, factory); err != nil {
		panic(err)
	}
}

// Alias makes alias resolve to name in both phases.
func (r *Registry) Alias(alias, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = name
}

// Names returns the registered names per phase, sorted.
func (r *Registry) Names() (pre, post []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name := range r.pre {
		pre = append(pre, name)
	}
	for name := range r.post {
		post = append(post, name)
	}
	sort.Strings(pre)
	sort.Strings(post)
	return pre, post
}

// Chain instantiates the named processors, in the given order, into a
// Chain. Unknown names are an error.
func (r *Registry) Chain(preNames, postNames []string) (*Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pre := make([]PreProcessor, 0, len(preNames))
	for _, name := range preNames {
		factory, ok := r.pre[r.canonical(name)]
		if !ok {
			return nil, fmt.Errorf("unknown pre-processor %q", name)
		}
		pre = append(pre, factory())
	}
	post := make([]PostProcessor, 0, len(postNames))
	for _, name := range postNames {
		factory, ok := r.post[r.canonical(name)]
		if !ok {
			return nil, fmt.Errorf("unknown post-processor %q", name)
		}
		post = append(post, factory())
	}
	return NewChain(pre, post)
}

func (r *Registry) canonical(name string) string {
	if target, ok := r.aliases[name]; ok {
		return target
	}
	return name
}
