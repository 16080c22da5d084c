// Package resolver flattens resources with nested import directives into
// an ordered list of leaf resources.
//
// Resolution is a depth-first, left-to-right traversal that emits
// dependencies before their importers. Traversal state lives on an
// explicit stack, so deep or wide import graphs cost heap memory rather
// than goroutine stack. A URI that reappears among its own ancestors is a
// CyclicImportError; the same URI reached through unrelated branches is
// emitted once, at its first occurrence.
package resolver
