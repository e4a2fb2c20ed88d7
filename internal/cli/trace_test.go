package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/event"
	"github.com/roach88/settle/internal/store"
)

type traceResponse struct {
	Status string      `json:"status"`
	Data   TraceResult `json:"data"`
}

var (
	literalA = event.Call{Actor: "alice", Target: "blog.post", Params: event.Object{"n": event.Int(1)}}.MustID()
	literalB = event.Call{Actor: "alice", Target: "blog.post", Params: event.Object{"n": event.Int(2)}}.MustID()
)

func TestTraceMissingDatabaseFlag(t *testing.T) {
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", "/nonexistent/settle.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settle.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "no runs in database")
}

func TestTraceLatestRunText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settle.db")
	recordRun(t, dbPath, "older")
	latest := recordRun(t, dbPath, "latest")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Trace for Run: "+latest+" (latest, engine")
	assert.Contains(t, output, "[1] invocation_started("+literalA.Short()+") alice -> blog.post")
	assert.Contains(t, output, "tracked by")
	assert.Contains(t, output, "completed "+literalA.Short())
	assert.Contains(t, output, "forced "+literalB.Short())
	assert.Contains(t, output, "Total Events: 9")
	assert.Contains(t, output, "Tracked:      2")
	assert.Contains(t, output, "Completed:    1")
	assert.Contains(t, output, "Forced:       1")
}

func TestTraceSpecificRunJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settle.db")
	first := recordRun(t, dbPath, "first")
	recordRun(t, dbPath, "second")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", first})

	require.NoError(t, cmd.Execute())

	var resp traceResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	result := resp.Data
	assert.Equal(t, first, result.RunID)
	assert.Equal(t, "first", result.Name)
	require.Len(t, result.Events, 9)
	assert.Equal(t, event.KindInvocationStarted, result.Events[0].Kind)
	assert.Equal(t, int64(1), result.Events[0].Seq)
	require.Len(t, result.Trackings, 2)
	assert.Equal(t, literalA, result.Trackings[0].Invocation)
	assert.Equal(t, int64(4), result.Trackings[1].Seq)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, OutcomeRecord{Invocation: literalA, Target: "blog.post", Result: "completed", Seq: 7}, result.Outcomes[0])
	assert.Equal(t, TraceStats{TotalEvents: 9, Tracked: 2, Completed: 1, Forced: 1}, result.Stats)
}

func TestTraceInvocationFilter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settle.db")
	recordRun(t, dbPath, "filtered")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--invocation", string(literalB)[:10]})

	require.NoError(t, cmd.Execute())

	var resp traceResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	result := resp.Data
	assert.Equal(t, string(literalB), result.Invocation)
	require.Len(t, result.Events, 2)
	assert.Equal(t, event.KindInvocationReturned, result.Events[1].Kind)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "forced", result.Outcomes[0].Result)
}

func TestTraceInvocationFilterText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settle.db")
	recordRun(t, dbPath, "filtered")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--invocation", string(literalA)})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "[7] completed "+literalA.Short())
}

func TestTraceUnknownInvocation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settle.db")
	recordRun(t, dbPath, "filtered")

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--invocation", "zzzz"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "not found in run")
}

func TestResolveInvocation(t *testing.T) {
	events := []event.Event{
		{Kind: event.KindInvocationStarted, Invocation: "abc123"},
		{Kind: event.KindInvocationStarted, Invocation: "abd456"},
		{Kind: event.KindInvocationReturned, Invocation: "abc123"},
	}

	id, err := resolveInvocation(events, "abc")
	require.NoError(t, err)
	assert.Equal(t, event.InvocationID("abc123"), id)

	_, err = resolveInvocation(events, "ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestCallSuffix(t *testing.T) {
	call := event.Call{Actor: "alice", Target: "blog.post", Params: event.Object{"n": event.Int(1)}}
	ev := event.Started(call)

	assert.Equal(t, " alice -> blog.post", callSuffix(ev, false))
	assert.Equal(t, ` alice -> blog.post {"n":1}`, callSuffix(ev, true))
	assert.Equal(t, "", callSuffix(event.Written(event.Record{Type: "entry", Content: "x"}), true))
}
