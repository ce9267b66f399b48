package workerio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleHypothesis struct {
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
}

func TestSmartParse_StandardJSON(t *testing.T) {
	var out sampleHypothesis
	_, tier, err := SmartParse(`{"title":"Margin expansion","confidence":0.6}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "standard", tier)
	assert.Equal(t, "Margin expansion", out.Title)
}

func TestSmartParse_RepairsTrailingComma(t *testing.T) {
	var out sampleHypothesis
	_, tier, err := SmartParse(`{"title":"Margin expansion","confidence":0.6,}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "repaired", tier)
}

func TestSmartParse_FallsBackToHjson(t *testing.T) {
	var out sampleHypothesis
	input := "{\n  title: 'Margin expansion'\n  confidence: 0.6\n}"
	_, tier, err := SmartParse(input, &out)
	require.NoError(t, err)
	assert.Contains(t, []string{"repaired", "hjson"}, tier)
	assert.Equal(t, "Margin expansion", out.Title)
}

func TestSmartParse_AllStrategiesFail(t *testing.T) {
	var out sampleHypothesis
	_, _, err := SmartParse("not json at all {{{", &out)
	require.Error(t, err)
}

func TestDecode_ValidatesAgainstDerivedSchema(t *testing.T) {
	var out sampleHypothesis
	err := Decode(`{"title":"Margin expansion","confidence":0.6}`, &out)
	require.NoError(t, err)
	assert.Equal(t, 0.6, out.Confidence)
}
