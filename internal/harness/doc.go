// Package harness runs pipeline conformance scenarios.
//
// A scenario declares an in-memory resource tree, a group model, a
// processor chain and a sequence of steps (builds and file edits). The
// harness runs the steps against a real pipeline with a cache backed by an
// in-memory store, records a trace of what each step observed, and checks
// per-step expectations and scenario-level assertions. Traces are compared
// against golden files with RunWithGolden.
//
// # Scenario Format
//
//	name: css_imports
//	description: "Imports are inlined before their importer"
//	files:
//	  css/main.css: "@import 'reset.css';\nbody {}"
//	  css/reset.css: "* { margin: 0 }"
//	groups:
//	  - name: site
//	    resources: [css/main.css]
//	processors:
//	  pre: [cssUrlRewriting, mark]
//	  post: [broken]
//	  suffix: { mark: "/*m*/" }
//	  failing: [broken]
//	options:
//	  type: css
//	  failures: lenient
//	steps:
//	  - build: site
//	    expect: { hit: false, warnings: 1 }
//	  - set: { css/reset.css: "* { padding: 0 }" }
//	  - build: site
//	    expect: { hit: false }
//	assertions:
//	  - type: computations
//	    count: 2
//
// Processor names resolve against processor.Default(). Names listed under
// suffix become processors that append the given text (pre: to each
// resource, post: to the merged output); names listed under failing always
// fail. Both kinds may be used in either phase.
//
// # Assertion Types
//
//   - computations: the cache ran exactly count computations
//   - same_content: the builds at steps produced identical bytes
//   - constituents: the build at step was made from uris, in order
//   - processor_calls: suffix processors ran count times in total on subject
//   - reports: the store holds count build reports
package harness
