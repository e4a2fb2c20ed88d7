package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

// TestScenarios runs every scenario shipped in testdata/scenarios.
func TestScenarios(t *testing.T) {
	paths, err := FindScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario from %s", path)
			assert.NotEmpty(t, scenario.Description)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{"literal_ab.yaml", "peer_round_trip.yaml", "forced_shutdown.cue"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join(scenarioDir, name))
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestScenarios_DuplicateConsumerRejected(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "duplicate_invocation.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Consumers["first"])
	assert.Contains(t, result.Consumers["second"], "already tracked")
}
