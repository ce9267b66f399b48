package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_orchestrator/internal/core/llm"
)

func testManager() *Manager {
	return NewManagerWithProviders(
		Config{
			ActiveProvider: "primary",
			Agents: map[string]AgentConfig{
				"evaluator": {Provider: "evaluator-override"},
			},
		},
		map[string]llm.Provider{
			"primary":            &llm.MockProvider{Response: "primary response"},
			"evaluator-override": &llm.MockProvider{Response: "override response"},
		},
	)
}

func TestGetProvider_UsesGlobalActiveByDefault(t *testing.T) {
	m := testManager()
	p := m.GetProvider("hypothesis_generator")
	out, err := p.GenerateResponse(context.Background(), "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "primary response", out)
}

func TestGetProvider_PerAgentOverrideWins(t *testing.T) {
	m := testManager()
	p := m.GetProvider("evaluator")
	out, err := p.GenerateResponse(context.Background(), "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "override response", out)
}

func TestExecutePrompt_RoutesThroughResolvedProvider(t *testing.T) {
	m := testManager()
	out, err := m.ExecutePrompt(context.Background(), "evaluator", "prompt", "system", nil)
	require.NoError(t, err)
	assert.Equal(t, "override response", out)
}

func TestSetGlobalProvider_RejectsUnknownProvider(t *testing.T) {
	m := testManager()
	err := m.SetGlobalProvider("does-not-exist")
	require.Error(t, err)
	assert.Equal(t, "primary", m.GetActiveProvider())
}

func TestSetGlobalProvider_SwitchesDefault(t *testing.T) {
	m := testManager()
	require.NoError(t, m.SetGlobalProvider("evaluator-override"))
	assert.Equal(t, "evaluator-override", m.GetActiveProvider())
}
