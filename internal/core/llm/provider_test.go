package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_ReturnsFixedResponse(t *testing.T) {
	p := &MockProvider{Response: `{"ok":true}`}
	out, err := p.GenerateResponse(context.Background(), "prompt", "system", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestMockProvider_ReturnsConfiguredError(t *testing.T) {
	p := &MockProvider{Err: errors.New("boom")}
	_, err := p.GenerateResponse(context.Background(), "prompt", "system", nil)
	require.Error(t, err)
}

func TestMockProvider_AdaptInstructionsIsIdentity(t *testing.T) {
	p := &MockProvider{}
	assert.Equal(t, "raw instructions", p.AdaptInstructions("raw instructions"))
}
