package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_orchestrator/internal/core/llm"
	"equity_orchestrator/internal/core/models"
)

func managerWith(response string) *Manager {
	return NewManagerWithProviders(
		Config{ActiveProvider: "mock"},
		map[string]llm.Provider{"mock": &llm.MockProvider{Response: response}},
	)
}

func TestHypothesisGenerator_ValidOutput(t *testing.T) {
	resp := `{"hypotheses":[
		{"id":"h1","title":"Margin expansion continues","thesis":"Gross margin rose 3% last quarter on mix shift.","evidence_needed":["10-Q"],"impact":"HIGH"},
		{"id":"h2","title":"Cloud revenue growth reaccelerates","thesis":"Cloud grew 20% in Q3 versus 12% prior year.","evidence_needed":["10-Q"],"impact":"MEDIUM"},
		{"id":"h3","title":"Pricing power in core segment","thesis":"Price increases of 5% saw no volume loss this quarter.","evidence_needed":["transcript"],"impact":"LOW"},
		{"id":"h4","title":"International expansion accelerating","thesis":"International revenue grew 15% over 2 years.","evidence_needed":["10-K"],"impact":"MEDIUM"},
		{"id":"h5","title":"Cost discipline holds through cycle","thesis":"Opex grew only 2% despite 8% revenue growth.","evidence_needed":["10-K"],"impact":"HIGH"}
	]}`
	g := &HypothesisGenerator{Manager: managerWith(resp), Breakers: NewBreakers()}
	out, err := g.Generate(context.Background(), HypothesisGeneratorInput{Company: "Acme", Ticker: "ACME", Iteration: 1})
	require.NoError(t, err)
	assert.Len(t, out.Hypotheses, 5)
}

func TestHypothesisGenerator_TooFewRejected(t *testing.T) {
	resp := `{"hypotheses":[{"id":"h1","title":"Only one","thesis":"Grew 5% this quarter on volume.","evidence_needed":[],"impact":"HIGH"}]}`
	g := &HypothesisGenerator{Manager: managerWith(resp), Breakers: NewBreakers()}
	_, err := g.Generate(context.Background(), HypothesisGeneratorInput{})
	require.Error(t, err)
}

func TestDeepResearchAgent_ValidOutput(t *testing.T) {
	resp := `{"hypothesis_id":"h1","evidence_items":[
		{"id":"e1","hypothesis_id":"h1","claim":"Margin rose","source_type":"10-Q","source_reference":"Q3 2024","quote":"...","confidence":0.8,"impact_direction":"+"}
	],"sources_processed":3,"source_diversity":1,"contradictions":[]}`
	a := &DeepResearchAgent{Manager: managerWith(resp), Breakers: NewBreakers()}
	out, err := a.Research(context.Background(), ResearchInput{Hypothesis: models.Hypothesis{ID: "h1", Title: "Margin expansion"}})
	require.NoError(t, err)
	assert.Equal(t, "h1", out.HypothesisID)
	assert.Len(t, out.EvidenceItems, 1)
}

func TestDeepResearchAgent_BadImpactDirectionRejected(t *testing.T) {
	resp := `{"hypothesis_id":"h1","evidence_items":[
		{"id":"e1","hypothesis_id":"h1","claim":"Margin rose","source_type":"10-Q","source_reference":"Q3","quote":"...","confidence":0.8,"impact_direction":"sideways"}
	],"sources_processed":1,"source_diversity":1,"contradictions":[]}`
	a := &DeepResearchAgent{Manager: managerWith(resp), Breakers: NewBreakers()}
	_, err := a.Research(context.Background(), ResearchInput{})
	require.Error(t, err)
}

func TestDialecticalSynthesisAgent_ValidOutput(t *testing.T) {
	resp := `{"hypothesis_id":"h1","checkpoint_iteration":3,
		"bull_case":[{"argument":"Margins expand","evidence_ids":["e1"],"strength":"strong","confidence":0.7}],
		"bear_case":[{"argument":"Competition intensifies","evidence_ids":["e1"],"strength":"moderate","confidence":0.5}],
		"insights":["insight one","insight two","insight three"],
		"tension_resolution":"Margins outweigh competitive risk near-term.",
		"confidence_rationale":"Evidence consistent across two quarters.",
		"updated_confidence":0.65,
		"scenarios":[{"name":"bull","probability":0.3,"conditions":"strong demand","fair_value":120},
		{"name":"base","probability":0.5,"conditions":"steady state","fair_value":100},
		{"name":"bear","probability":0.2,"conditions":"margin compression","fair_value":80}]}`
	a := &DialecticalSynthesisAgent{Manager: managerWith(resp), Breakers: NewBreakers()}
	out, err := a.Synthesize(context.Background(), SynthesisInput{
		Hypothesis:          models.Hypothesis{ID: "h1"},
		AccumulatedEvidence: []models.EvidenceItem{{ID: "e1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.65, out.UpdatedConfidence)
}

func TestDialecticalSynthesisAgent_BadProbabilitySumRejected(t *testing.T) {
	resp := `{"hypothesis_id":"h1","checkpoint_iteration":3,"bull_case":[],"bear_case":[],
		"insights":["a","b","c"],"tension_resolution":"x","confidence_rationale":"y","updated_confidence":0.5,
		"scenarios":[{"name":"bull","probability":0.5,"conditions":"x","fair_value":1},
		{"name":"base","probability":0.5,"conditions":"x","fair_value":1},
		{"name":"bear","probability":0.5,"conditions":"x","fair_value":1}]}`
	a := &DialecticalSynthesisAgent{Manager: managerWith(resp), Breakers: NewBreakers()}
	_, err := a.Synthesize(context.Background(), SynthesisInput{})
	require.Error(t, err)
}

func TestNarrativeBuilder_ConsistentRecommendationAccepted(t *testing.T) {
	resp := `{"executive_summary":"x","investment_thesis":"y","financial_analysis":"z",
		"valuation":{"fair_value":120,"current_price":100,"scenarios":[
		{"name":"bull","probability":0.3,"conditions":"x","fair_value":140},
		{"name":"base","probability":0.5,"conditions":"x","fair_value":120},
		{"name":"bear","probability":0.2,"conditions":"x","fair_value":90}],"methodology":"DCF"},
		"bull_bear_analysis":"...","risks":"...",
		"recommendation":{"action":"BUY","conviction":"HIGH","timeframe":"12m","entry_conditions":["x"],"exit_conditions":["y"]},
		"sections":[],"limitations":[]}`
	n := &NarrativeBuilder{Manager: managerWith(resp), Breakers: NewBreakers()}
	out, err := n.Build(context.Background(), NarrativeInput{}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, "BUY", out.Recommendation.Action)
}

func TestNarrativeBuilder_InconsistentRecommendationRejected(t *testing.T) {
	resp := `{"executive_summary":"x","investment_thesis":"y","financial_analysis":"z",
		"valuation":{"fair_value":80,"current_price":100,"scenarios":[
		{"name":"bull","probability":0.3,"conditions":"x","fair_value":90},
		{"name":"base","probability":0.5,"conditions":"x","fair_value":80},
		{"name":"bear","probability":0.2,"conditions":"x","fair_value":60}],"methodology":"DCF"},
		"bull_bear_analysis":"...","risks":"...",
		"recommendation":{"action":"BUY","conviction":"HIGH","timeframe":"12m","entry_conditions":["x"],"exit_conditions":["y"]},
		"sections":[],"limitations":[]}`
	n := &NarrativeBuilder{Manager: managerWith(resp), Breakers: NewBreakers()}
	_, err := n.Build(context.Background(), NarrativeInput{}, 0.05)
	require.Error(t, err)
}

func TestEvaluator_ConsistentPassFlagAccepted(t *testing.T) {
	resp := `{"overall_score":0.9,"dimensions":{"data_quality":0.9,"thesis":0.9},"passed":true,"issues":[],"recommendations":[]}`
	e := &Evaluator{Manager: managerWith(resp), Breakers: NewBreakers()}
	out, err := e.Evaluate(context.Background(), EvaluatorInput{
		EvaluationType: EvaluationIteration,
		Criteria:       map[string]float64{"data_quality": 0, "thesis": 0, "threshold": 0.8},
	})
	require.NoError(t, err)
	assert.True(t, out.Passed)
}

func TestEvaluator_MissingDimensionRejected(t *testing.T) {
	resp := `{"overall_score":0.9,"dimensions":{"data_quality":0.9},"passed":true,"issues":[],"recommendations":[]}`
	e := &Evaluator{Manager: managerWith(resp), Breakers: NewBreakers()}
	_, err := e.Evaluate(context.Background(), EvaluatorInput{
		Criteria: map[string]float64{"data_quality": 0, "thesis": 0, "threshold": 0.8},
	})
	require.Error(t, err)
}

func TestEvaluator_InconsistentPassFlagRejected(t *testing.T) {
	resp := `{"overall_score":0.5,"dimensions":{"data_quality":0.5},"passed":true,"issues":[],"recommendations":[]}`
	e := &Evaluator{Manager: managerWith(resp), Breakers: NewBreakers()}
	_, err := e.Evaluate(context.Background(), EvaluatorInput{
		Criteria: map[string]float64{"data_quality": 0, "threshold": 0.8},
	})
	require.Error(t, err)
}
