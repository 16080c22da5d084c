package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/processor"
)

func TestDeterministicClock_StepsAndReset(t *testing.T) {
	c := NewDeterministicClock(time.Second)

	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(2*time.Second+time.Hour), c.Now())

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestDeterministicClock_ZeroStepIsFrozen(t *testing.T) {
	c := NewDeterministicClock(0)
	assert.Equal(t, c.Now(), c.Now())
}

func TestSequentialIDs_UniqueUnderConcurrency(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "req-1", g.Generate())

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestCountingProcessors(t *testing.T) {
	c := NewCounter()
	ctx := context.Background()
	res := model.NewResource("a.css", model.TypeCSS)

	pre := CountingPre("p", "!", processor.AnyType, c)
	out, err := pre.Pre(ctx, res, "x")
	require.NoError(t, err)
	assert.Equal(t, "x!", out)

	post := CountingPost("q", "?", processor.AnyType, c)
	out, err = post.Post(ctx, processor.Target{Group: "g"}, "y")
	require.NoError(t, err)
	assert.Equal(t, "y?", out)

	assert.Equal(t, 1, c.Calls("a.css"))
	assert.Equal(t, 1, c.Calls("group:g"))
	assert.Equal(t, 2, c.Total())
	assert.Equal(t, []string{"a.css", "group:g"}, c.Subjects())
}

func TestFailingPre_OnlyListedURIs(t *testing.T) {
	p := FailingPre("f", "bad.css")
	ctx := context.Background()

	_, err := p.Pre(ctx, model.NewResource("bad.css", model.TypeCSS), "x")
	assert.ErrorIs(t, err, ErrInjected)

	out, err := p.Pre(ctx, model.NewResource("good.css", model.TypeCSS), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestBlockingPre_HonoursContext(t *testing.T) {
	started := make(chan string, 1)
	p := BlockingPre("b", started, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := p.Pre(ctx, model.NewResource("a.js", model.TypeJS), "x")
		errc <- err
	}()

	assert.Equal(t, "a.js", <-started)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
