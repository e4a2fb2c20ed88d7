package store

import "github.com/roach88/settle/internal/event"

// Run identifies one journaled tracker run.
type Run struct {
	ID            string
	Name          string
	EngineVersion string
}

// Tracking records that a registration was attached to the
// invocation_started event at Seq.
type Tracking struct {
	Registration string
	Invocation   event.InvocationID
	Seq          int64
}

// Outcome records what a registration was told.
type Outcome struct {
	Registration string
	Invocation   event.InvocationID
	Result       string // "completed" or "forced"
	Seq          int64
	ConsumerGone bool
}
