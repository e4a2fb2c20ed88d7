// Package harness runs conformance scenarios against the completion tracker.
//
// A scenario names its invocations, then lists steps: staging a
// registration for a consumer, feeding one event, or shutting the tracker
// down. Steps may carry expectations about which consumers have been told
// their invocation completed or was forced, which invocations are still
// pending, and which invocation is the current attribution target.
//
// Scenarios are written in YAML or CUE:
//
//	name: single_return
//	description: an invocation with no side effects settles on return
//	invocations:
//	  A: {actor: alice, target: blog.post}
//	steps:
//	  - register: A
//	  - event: invocation_started
//	    invocation: A
//	  - event: invocation_returned
//	    invocation: A
//	    expect:
//	      completed: [A]
//
// Run drives a fresh tracker through the steps on the calling goroutine,
// with one background consumer per registration, so every run of the same
// scenario produces the same trace. Traces can be compared against golden
// files with RunWithGolden.
package harness
