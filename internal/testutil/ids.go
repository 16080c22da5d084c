package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates invocation ids "<prefix>-1", "<prefix>-2", ...
//
// Unlike reqctx.FixedGenerator it never runs out, which suits tests that
// build many groups concurrently and only need ids to be unique.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix means "req".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements reqctx.IDGenerator.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
