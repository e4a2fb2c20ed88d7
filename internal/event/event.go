package event

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the kind of a domain event. Kinds this module does not
// know about are carried through untouched and treated as "other".
type Kind string

const (
	// KindInvocationStarted marks the start of an invocation.
	KindInvocationStarted Kind = "invocation_started"
	// KindInvocationReturned marks the return of an invocation.
	KindInvocationReturned Kind = "invocation_returned"
	// KindRecordWritten marks a record write (commit) by whoever is running.
	KindRecordWritten Kind = "record_written"
	// KindRecordDurable acknowledges that a written record is durable.
	KindRecordDurable Kind = "record_durable"
	// KindPeerMessageSent marks an outgoing peer message.
	KindPeerMessageSent Kind = "peer_message_sent"
	// KindPeerMessageResolved marks a peer message round trip that completed.
	KindPeerMessageResolved Kind = "peer_message_resolved"
	// KindPeerMessageTimedOut marks a peer message round trip that timed out.
	KindPeerMessageTimedOut Kind = "peer_message_timed_out"
)

// Known reports whether the kind is one the tracker reacts to.
func (k Kind) Known() bool {
	switch k {
	case KindInvocationStarted, KindInvocationReturned,
		KindRecordWritten, KindRecordDurable,
		KindPeerMessageSent, KindPeerMessageResolved, KindPeerMessageTimedOut:
		return true
	}
	return false
}

// MessageKind distinguishes peer messages that wait for a round trip from
// those that do not.
type MessageKind string

// MessageCustom is the only kind of peer message whose outcome is awaited.
const MessageCustom MessageKind = "custom"

// RequiresRoundTrip reports whether a message of this kind must be resolved
// or time out before its sender's invocation can settle.
func (k MessageKind) RequiresRoundTrip() bool {
	return k == MessageCustom
}

// Event is one item of the upstream event stream. Which fields are set
// depends on Kind:
//
//	invocation_started, invocation_returned  Invocation (and usually Call)
//	record_written, record_durable           Record
//	peer_message_sent                        MsgID, MessageKind
//	peer_message_resolved, _timed_out        MsgID
//
// Seq is stamped by the queue the event travels through.
type Event struct {
	Kind        Kind
	Seq         int64
	Invocation  InvocationID
	Call        *Call
	Record      Record
	MsgID       string
	MessageKind MessageKind
}

// Started builds an invocation_started event for the call.
func Started(c Call) Event {
	return Event{Kind: KindInvocationStarted, Invocation: c.MustID(), Call: &c}
}

// Returned builds an invocation_returned event for the call.
func Returned(c Call) Event {
	return Event{Kind: KindInvocationReturned, Invocation: c.MustID(), Call: &c}
}

// Written builds a record_written event.
func Written(r Record) Event {
	return Event{Kind: KindRecordWritten, Record: r}
}

// Durable builds a record_durable event.
func Durable(r Record) Event {
	return Event{Kind: KindRecordDurable, Record: r}
}

// Sent builds a peer_message_sent event.
func Sent(msgID string, kind MessageKind) Event {
	return Event{Kind: KindPeerMessageSent, MsgID: msgID, MessageKind: kind}
}

// Resolved builds a peer_message_resolved event.
func Resolved(msgID string) Event {
	return Event{Kind: KindPeerMessageResolved, MsgID: msgID}
}

// TimedOut builds a peer_message_timed_out event.
func TimedOut(msgID string) Event {
	return Event{Kind: KindPeerMessageTimedOut, MsgID: msgID}
}

// String summarizes the event for logs and traces.
func (e Event) String() string {
	switch e.Kind {
	case KindInvocationStarted, KindInvocationReturned:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Invocation.Short())
	case KindRecordWritten, KindRecordDurable:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Record)
	case KindPeerMessageSent:
		return fmt.Sprintf("%s(%s,%s)", e.Kind, e.MsgID, e.MessageKind)
	case KindPeerMessageResolved, KindPeerMessageTimedOut:
		return fmt.Sprintf("%s(%s)", e.Kind, e.MsgID)
	default:
		return string(e.Kind)
	}
}

// wireEvent is the JSON shape of an Event.
type wireEvent struct {
	Kind        Kind         `json:"kind"`
	Seq         int64        `json:"seq,omitempty"`
	Invocation  InvocationID `json:"invocation_id,omitempty"`
	Call        *Call        `json:"call,omitempty"`
	Record      *Record      `json:"record,omitempty"`
	MsgID       string       `json:"msg_id,omitempty"`
	MessageKind MessageKind  `json:"message_kind,omitempty"`
}

// MarshalJSON encodes the event, omitting fields its kind does not use.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Kind:        e.Kind,
		Seq:         e.Seq,
		Invocation:  e.Invocation,
		Call:        e.Call,
		MsgID:       e.MsgID,
		MessageKind: e.MessageKind,
	}
	if e.Record != (Record{}) {
		r := e.Record
		w.Record = &r
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event. When only a call is given, the invocation
// ID is derived from it.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kind == "" {
		return fmt.Errorf("event: missing kind")
	}

	*e = Event{
		Kind:        w.Kind,
		Seq:         w.Seq,
		Invocation:  w.Invocation,
		Call:        w.Call,
		MsgID:       w.MsgID,
		MessageKind: w.MessageKind,
	}
	if w.Record != nil {
		e.Record = *w.Record
	}
	if e.Invocation == "" && e.Call != nil {
		id, err := e.Call.ID()
		if err != nil {
			return fmt.Errorf("event %s: %w", e.Kind, err)
		}
		e.Invocation = id
	}
	return e.Validate()
}

// Validate checks that the fields required by a known kind are present.
// Unknown kinds are always valid.
func (e Event) Validate() error {
	switch e.Kind {
	case KindInvocationStarted, KindInvocationReturned:
		if e.Invocation == "" {
			return fmt.Errorf("event %s: missing invocation", e.Kind)
		}
	case KindRecordWritten, KindRecordDurable:
		if e.Record == (Record{}) {
			return fmt.Errorf("event %s: missing record", e.Kind)
		}
	case KindPeerMessageSent, KindPeerMessageResolved, KindPeerMessageTimedOut:
		if e.MsgID == "" {
			return fmt.Errorf("event %s: missing msg_id", e.Kind)
		}
	}
	return nil
}
