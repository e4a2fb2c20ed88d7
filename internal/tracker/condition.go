package tracker

import (
	"fmt"

	"github.com/roach88/settle/internal/event"
)

// ConditionKind tags the variants of Condition.
type ConditionKind int

const (
	// AwaitReturn waits for invocation_returned of the tracked invocation.
	AwaitReturn ConditionKind = iota + 1
	// AwaitDurable waits for record_durable of a written record.
	AwaitDurable
	// AwaitPeerOutcome waits for a peer message to resolve or time out.
	AwaitPeerOutcome
)

func (k ConditionKind) String() string {
	switch k {
	case AwaitReturn:
		return "await_return"
	case AwaitDurable:
		return "await_durable"
	case AwaitPeerOutcome:
		return "await_peer_outcome"
	default:
		return fmt.Sprintf("condition_kind(%d)", int(k))
	}
}

// Condition is one outstanding side effect of an invocation. Only the field
// matching Kind is meaningful.
type Condition struct {
	Kind       ConditionKind
	Invocation event.InvocationID
	Record     event.Record
	MsgID      string
}

// ReturnOf is satisfied when invocation id returns.
func ReturnOf(id event.InvocationID) Condition {
	return Condition{Kind: AwaitReturn, Invocation: id}
}

// DurabilityOf is satisfied when record r is acknowledged durable.
func DurabilityOf(r event.Record) Condition {
	return Condition{Kind: AwaitDurable, Record: r}
}

// OutcomeOf is satisfied when peer message msgID resolves or times out.
func OutcomeOf(msgID string) Condition {
	return Condition{Kind: AwaitPeerOutcome, MsgID: msgID}
}

// SatisfiedBy reports whether ev discharges the condition.
func (c Condition) SatisfiedBy(ev event.Event) bool {
	switch c.Kind {
	case AwaitReturn:
		return ev.Kind == event.KindInvocationReturned && ev.Invocation == c.Invocation
	case AwaitDurable:
		return ev.Kind == event.KindRecordDurable && ev.Record == c.Record
	case AwaitPeerOutcome:
		return (ev.Kind == event.KindPeerMessageResolved || ev.Kind == event.KindPeerMessageTimedOut) &&
			ev.MsgID == c.MsgID
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Kind {
	case AwaitReturn:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Invocation.Short())
	case AwaitDurable:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Record)
	case AwaitPeerOutcome:
		return fmt.Sprintf("%s(%s)", c.Kind, c.MsgID)
	default:
		return c.Kind.String()
	}
}
