package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempPolicy(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const samplePolicy = `
providers:
  active_provider: gemini
  agents:
    evaluator:
      provider: qwen

profiles:
  quality-first:
    name: quality-first
    checkpoints: [3, 6]
    top_k_for_synthesis: 5
    min_iterations: 10
    max_iterations: 15
    confidence_stop: 0.9
    parallel_research: 3
`

func TestLoad_ParsesNamedProfileFromFile(t *testing.T) {
	path := writeTempPolicy(t, samplePolicy)

	providers, policy, err := Load("", path, "quality-first")
	require.NoError(t, err)
	assert.Equal(t, "gemini", providers.ActiveProvider)
	assert.Equal(t, "qwen", providers.Agents["evaluator"].Provider)
	assert.Equal(t, []int{3, 6}, policy.Checkpoints)
	assert.Equal(t, 5, policy.TopKForSynthesis)
	assert.Equal(t, 0.9, policy.ConfidenceStop)
}

func TestLoad_FallsBackToBuiltinPresetWhenFileMissingProfile(t *testing.T) {
	path := writeTempPolicy(t, samplePolicy)

	_, policy, err := Load("", path, "cost-optimized")
	require.NoError(t, err)
	assert.Equal(t, CostOptimized, policy)
}

func TestLoad_NoPolicyPathUsesBuiltinPresets(t *testing.T) {
	_, policy, err := Load("", "", "quality-first")
	require.NoError(t, err)
	assert.Equal(t, QualityFirst, policy)
}

func TestLoad_UnknownProfileIsAnError(t *testing.T) {
	_, _, err := Load("", "", "nonexistent-profile")
	require.Error(t, err)
}

func TestWorkDir_DefaultsWhenEnvUnset(t *testing.T) {
	t.Setenv("ANALYSIS_WORK_DIR", "")
	assert.Equal(t, "./data", WorkDir())
}

func TestWorkDir_HonorsEnvOverride(t *testing.T) {
	t.Setenv("ANALYSIS_WORK_DIR", "/tmp/custom-analyses")
	assert.Equal(t, "/tmp/custom-analyses", WorkDir())
}

func TestAPIKey_ReportsPresenceAndValue(t *testing.T) {
	t.Setenv("EQUITY_TEST_KEY", "secret")
	v, ok := APIKey("EQUITY_TEST_KEY")
	assert.True(t, ok)
	assert.Equal(t, "secret", v)

	_, ok = APIKey("EQUITY_TEST_KEY_ABSENT")
	assert.False(t, ok)
}
