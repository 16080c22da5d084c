package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/processor"
)

// ErrInjected is returned by the failing processors.
var ErrInjected = errors.New("injected failure")

// Counter records processor invocations per subject.
//
// Thread-safety: Counter is safe for concurrent use.
type Counter struct {
	mu    sync.Mutex
	calls map[string]int
	order []string
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{calls: make(map[string]int)}
}

func (c *Counter) record(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[subject]++
	c.order = append(c.order, subject)
}

// Calls returns how often subject was processed.
func (c *Counter) Calls(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[subject]
}

// Total returns the number of invocations across all subjects.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Subjects returns every subject seen, sorted.
func (c *Counter) Subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	subjects := make([]string, 0, len(c.calls))
	for s := range c.calls {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects
}

// CountingPre returns a pre-processor that appends marker to the content
// and counts invocations per resource URI.
func CountingPre(name, marker string, types processor.TypeSet, c *Counter) processor.PreProcessor {
	return processor.NewPre(name, types, func(_ context.Context, res model.Resource, content string) (string, error) {
		c.record(res.URI)
		return content + marker, nil
	})
}

// CountingPost returns a post-processor that appends marker to the merged
// content and counts invocations per target subject.
func CountingPost(name, marker string, types processor.TypeSet, c *Counter) processor.PostProcessor {
	return processor.NewPost(name, types, func(_ context.Context, t processor.Target, content string) (string, error) {
		c.record(t.Subject())
		return content + marker, nil
	})
}

// FailingPre returns a pre-processor that fails with ErrInjected for every
// resource whose URI is in uris, or for every resource when uris is empty.
func FailingPre(name string, uris ...string) processor.PreProcessor {
	fail := make(map[string]bool, len(uris))
	for _, u := range uris {
		fail[u] = true
	}
	return processor.NewPre(name, processor.AnyType, func(_ context.Context, res model.Resource, content string) (string, error) {
		if len(fail) == 0 || fail[res.URI] {
			return "garbage", ErrInjected
		}
		return content, nil
	})
}

// FailingPost returns a post-processor that always fails with ErrInjected.
func FailingPost(name string) processor.PostProcessor {
	return processor.NewPost(name, processor.AnyType, func(context.Context, processor.Target, string) (string, error) {
		return "garbage", ErrInjected
	})
}

// BlockingPre returns a pre-processor that signals on started and then
// waits for release to be closed or its context to end.
func BlockingPre(name string, started chan<- string, release <-chan struct{}) processor.PreProcessor {
	return processor.NewPre(name, processor.AnyType, func(ctx context.Context, res model.Resource, content string) (string, error) {
		if started != nil {
			select {
			case started <- res.URI:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		select {
		case <-release:
			return content, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}
