package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallID_Deterministic(t *testing.T) {
	a := Call{Actor: "alice", Target: "blog.post", Params: Object{"title": String("hi"), "n": Int(1)}}
	b := Call{Actor: "alice", Target: "blog.post", Params: Object{"n": Int(1), "title": String("hi")}}

	assert.Equal(t, a.MustID(), b.MustID(), "param order must not change identity")
	assert.Len(t, string(a.MustID()), 64)
}

func TestCallID_DistinguishesFields(t *testing.T) {
	base := Call{Actor: "alice", Target: "blog.post"}

	assert.NotEqual(t, base.MustID(), Call{Actor: "bob", Target: "blog.post"}.MustID())
	assert.NotEqual(t, base.MustID(), Call{Actor: "alice", Target: "blog.edit"}.MustID())
	assert.NotEqual(t, base.MustID(),
		Call{Actor: "alice", Target: "blog.post", Params: Object{"x": Int(1)}}.MustID())
}

func TestCallID_NilAndEmptyParamsAgree(t *testing.T) {
	assert.Equal(t,
		Call{Actor: "a", Target: "t"}.MustID(),
		Call{Actor: "a", Target: "t", Params: Object{}}.MustID())
}

func TestRecordEquality(t *testing.T) {
	r1 := Record{Type: "post", Content: "x"}
	r2 := Record{Type: "post", Content: "x"}

	assert.True(t, r1 == r2)
	assert.Equal(t, r1.Hash(), r2.Hash())
	assert.NotEqual(t, r1.Hash(), Record{Type: "post", Content: "y"}.Hash())
	assert.Equal(t, "post/x", r1.String())
}

func TestMessageKind_RequiresRoundTrip(t *testing.T) {
	assert.True(t, MessageCustom.RequiresRoundTrip())
	assert.False(t, MessageKind("response").RequiresRoundTrip())
	assert.False(t, MessageKind("").RequiresRoundTrip())
}

func TestKind_Known(t *testing.T) {
	assert.True(t, KindRecordDurable.Known())
	assert.False(t, Kind("gossip_received").Known())
}

func TestEventJSON_DerivesInvocationFromCall(t *testing.T) {
	call := Call{Actor: "alice", Target: "blog.post", Params: Object{"n": Int(3)}}
	line := `{"kind":"invocation_started","call":{"actor":"alice","target":"blog.post","params":{"n":3}}}`

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(line), &ev))

	assert.Equal(t, KindInvocationStarted, ev.Kind)
	assert.Equal(t, call.MustID(), ev.Invocation)
	require.NotNil(t, ev.Call)
	assert.Equal(t, "alice", ev.Call.Actor)
}

func TestEventJSON_RoundTrip(t *testing.T) {
	events := []Event{
		Started(Call{Actor: "a", Target: "t"}),
		Written(Record{Type: "post", Content: "x"}),
		Sent("m1", MessageCustom),
		TimedOut("m1"),
		{Kind: "gossip_received", Seq: 9},
	}

	for _, ev := range events {
		t.Run(string(ev.Kind), func(t *testing.T) {
			data, err := json.Marshal(ev)
			require.NoError(t, err)

			var got Event
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, ev, got)
		})
	}
}

func TestEventJSON_OmitsUnusedFields(t *testing.T) {
	data, err := json.Marshal(Durable(Record{Type: "post", Content: "x"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"record_durable","record":{"type":"post","content":"x"}}`, string(data))
}

func TestEventJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"missing kind", `{"msg_id":"m1"}`, "missing kind"},
		{"start without invocation", `{"kind":"invocation_started"}`, "missing invocation"},
		{"write without record", `{"kind":"record_written"}`, "missing record"},
		{"resolve without msg", `{"kind":"peer_message_resolved"}`, "missing msg_id"},
		{"float param", `{"kind":"invocation_started","call":{"actor":"a","target":"t","params":{"x":1.5}}}`, "floats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			err := json.Unmarshal([]byte(tt.line), &ev)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "record_written(post/x)", Written(Record{Type: "post", Content: "x"}).String())
	assert.Equal(t, "peer_message_sent(m1,custom)", Sent("m1", MessageCustom).String())
	assert.Equal(t, "other", Event{Kind: "other"}.String())
}
