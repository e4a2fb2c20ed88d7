// Package tracker detects when an invocation's asynchronous side effects
// have settled.
//
// A Tracker consumes an ordered stream of domain events (see package event)
// and keeps one ConditionSet per registered invocation. Events are
// processed in two phases:
//
//  1. Attribution. An invocation_started that coincides with a pending
//     registration creates a ConditionSet and makes that invocation the
//     current attribution target. Writes and round-trip peer messages add
//     conditions to the current target. A start without a registration
//     clears the target, so side effects of untracked (often nested)
//     invocations are never charged to an unrelated outer one.
//  2. Evaluation. Every live ConditionSet drops the conditions the event
//     satisfies. A set that empties is removed and its consumer is told
//     Completed, exactly once.
//
// Shutdown forces every remaining set, delivering ForcedCompletion so no
// consumer is left blocked.
//
// Concurrency model:
//
// Tracker state is owned by a single goroutine, normally the Runner's Run
// loop, and has no locks. Other goroutines talk to it through channels
// only: the event Source, the capacity-zero registration Intake, and one
// capacity-zero completion channel per Registration.
//
// Attribution is a heuristic. A registration must be handed to the intake
// before its invocation_started is emitted upstream; a registration that
// arrives later is silently missed and the invocation proceeds untracked.
// Callers needing a hard guarantee put their own timeout around Wait.
package tracker
