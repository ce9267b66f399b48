// Package llm defines the Provider contract used by the five Worker
// Agents (spec.md §4.5) and its real implementations. Adapted in idiom
// from pkg/core/llm/provider.go: the same GenerateResponse/AdaptInstructions
// contract, generalized to take a caller-supplied context.Context all
// the way down rather than the teacher's context.Background() at the
// call site.
package llm

import "context"

// Provider is one LLM backend.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error)
	// AdaptInstructions transforms raw worker instructions into the
	// model-specific phrasing that backend responds best to.
	AdaptInstructions(rawInstructions string) string
}

// MockProvider returns a fixed response without calling out, used for
// deterministic tests.
type MockProvider struct {
	Response string
	Err      error
}

var _ Provider = (*MockProvider)(nil)

func (p *MockProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.Response, nil
}

func (p *MockProvider) AdaptInstructions(raw string) string {
	return raw
}
