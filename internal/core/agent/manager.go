// Package agent routes each Worker Agent's prompt to an LLM Provider
// and implements the five worker contracts of spec.md §4.5. Manager is
// adapted verbatim in idiom from pkg/core/agent/manager.go: the same
// global/override provider resolution, generalized to accept the
// caller's context.Context instead of synthesizing context.Background()
// internally.
package agent

import (
	"context"
	"fmt"

	"equity_orchestrator/internal/core/llm"
	"equity_orchestrator/internal/diag"
)

// Config is the provider-routing policy loaded from the policy YAML.
type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Agents         map[string]AgentConfig `yaml:"agents"`
}

// AgentConfig optionally pins one worker kind to a specific provider,
// overriding ActiveProvider.
type AgentConfig struct {
	Provider    string `yaml:"provider"`
	Description string `yaml:"description"`
}

// Manager resolves a worker kind to an llm.Provider and executes
// prompts against it.
type Manager struct {
	config    Config
	providers map[string]llm.Provider
}

// NewManager builds a Manager with every wired provider registered by
// name, matching the teacher's provider map shape.
func NewManager(config Config) *Manager {
	return &Manager{
		config: config,
		providers: map[string]llm.Provider{
			"gemini":   &llm.GeminiProvider{},
			"deepseek": &llm.DeepSeekProvider{},
			"qwen":     &llm.QwenProvider{},
		},
	}
}

// NewManagerWithProviders builds a Manager over a caller-supplied
// provider map, used by tests to inject llm.MockProvider.
func NewManagerWithProviders(config Config, providers map[string]llm.Provider) *Manager {
	return &Manager{config: config, providers: providers}
}

// GetProvider resolves the provider for one worker kind: an
// agent-specific override first, then the global active provider.
func (m *Manager) GetProvider(agentType string) llm.Provider {
	if agentConfig, ok := m.config.Agents[agentType]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return p
		}
	}
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return p
	}
	return m.providers["gemini"]
}

// GetProviderByName retrieves a provider instance by its registered
// name (e.g. "deepseek", "gemini").
func (m *Manager) GetProviderByName(name string) llm.Provider {
	if p, ok := m.providers[name]; ok {
		return p
	}
	return nil
}

// ExecutePrompt adapts the worker's system prompt for the resolved
// provider's style, then generates a response under the caller's
// context (honoring spec.md §4.6.6's per-call timeout).
func (m *Manager) ExecutePrompt(ctx context.Context, agentType, rawPrompt, rawSystemPrompt string, options map[string]interface{}) (string, error) {
	provider := m.GetProvider(agentType)
	diag.Debugf("agent: executing %s via provider=%T", agentType, provider)

	adaptedSystemPrompt := provider.AdaptInstructions(rawSystemPrompt)
	return provider.GenerateResponse(ctx, rawPrompt, adaptedSystemPrompt, options)
}

// SetGlobalProvider changes the default provider used when no
// per-agent override applies.
func (m *Manager) SetGlobalProvider(newProvider string) error {
	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not registered", newProvider)
	}
	m.config.ActiveProvider = newProvider
	return nil
}

// GetActiveProvider returns the current global provider name.
func (m *Manager) GetActiveProvider() string {
	return m.config.ActiveProvider
}
