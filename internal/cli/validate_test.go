package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validateResponse struct {
	Status string           `json:"status"`
	Data   ValidationResult `json:"data"`
	Error  *CLIError        `json:"error"`
}

func TestValidateShippedScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "file(s) valid")
}

func TestValidateShippedScenariosJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "forced_shutdown.cue")})

	require.NoError(t, cmd.Execute())

	var resp validateResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 1)
	assert.Equal(t, "scenario", resp.Data.Files[0].Kind)
}

func TestValidateNonExistentPath(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestValidateInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: bad
description: refers to an invocation nobody declared
steps:
  - event: invocation_started
    invocation: Z
`), 0644))

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ "+path)
	assert.Contains(t, buf.String(), "invalid scenario")
}

func TestValidateInvalidScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\nbogus: true\n"), 0644))

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)

	var resp validateResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 1)
	assert.Contains(t, resp.Data.Files[0].Errors[0], "failed to parse YAML")
}

func TestValidateEventStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(literalEvents), 0644))

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "(events)")
	assert.Contains(t, buf.String(), "1 file(s) valid")
}

func TestValidateEventStreamReportsEveryBadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`# comment
{"kind":"record_written","record":{"type":"entry","content":"a1"}}
{"kind":"record_durable"}

not json
{"record":{"type":"entry","content":"a1"}}
`), 0644))

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp validateResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Files, 1)
	errs := resp.Data.Files[0].Errors
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "line 3:")
	assert.Contains(t, errs[0], "missing record")
	assert.Contains(t, errs[1], "line 5:")
	assert.Contains(t, errs[2], "missing kind")
}
