// Package event defines the domain events consumed by the completion tracker.
//
// Events come from an upstream event-sourced core and are only read here,
// never produced or validated beyond their shape. Invocation identity is
// content-addressed: an InvocationID is the SHA-256 of the canonical JSON
// (RFC 8785) of the call's actor, target and params, so a start and its
// return computed independently agree.
//
// This package imports nothing internal.
package event
