package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/llm"
	"equity_orchestrator/internal/core/models"
)

func validReport() models.FinalReport {
	return models.FinalReport{
		ExecutiveSummary:  repeatWords("summary word ", 10),
		InvestmentThesis:  repeatWords("thesis word ", 10),
		FinancialAnalysis: repeatWords("analysis word ", 10),
		Valuation: models.ValuationSection{
			FairValue:    120,
			CurrentPrice: 100,
			Methodology:  "DCF",
			Scenarios: []models.Scenario{
				{Name: "bull", Probability: 0.3, FairValue: 150},
				{Name: "base", Probability: 0.5, FairValue: 120},
				{Name: "bear", Probability: 0.2, FairValue: 90},
			},
		},
		BullBearAnalysis: "bull and bear case text",
		Recommendation: models.Recommendation{
			Action:          "BUY",
			Conviction:      "HIGH",
			EntryConditions: []string{"x"},
			ExitConditions:  []string{"y"},
		},
	}
}

func repeatWords(w string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += w
	}
	return out
}

func TestValidateSchema_ScenarioProbabilitiesMustSumToOne(t *testing.T) {
	r := validReport()
	r.Valuation.Scenarios[0].Probability = 0.9
	check := ValidateSchema(r)
	assert.False(t, check.Passed)
}

func TestValidateStructure_MissingScenariosIsCritical(t *testing.T) {
	r := validReport()
	r.Valuation.Scenarios = nil
	check := ValidateStructure(r)
	assert.True(t, check.HasCritical())
}

func TestValidateHeuristics_FlagsOutOfOrderScenarios(t *testing.T) {
	r := validReport()
	r.Valuation.Scenarios[0].FairValue = 50 // bull below bear
	structure := ValidateStructure(r)
	h := ValidateHeuristics(r, structure, 0.05)
	found := false
	for _, f := range h.Findings {
		if f.Message == "scenario fair values are not ordered bear < base < bull" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateHeuristics_FlagsInconsistentRecommendation(t *testing.T) {
	r := validReport()
	r.Recommendation.Action = "SELL" // fair value is above current price
	structure := ValidateStructure(r)
	h := ValidateHeuristics(r, structure, 0.05)
	found := false
	for _, f := range h.Findings {
		if f.Severity == SeverityHigh {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPipeline_Run_PassingReportGetsGoodGrade(t *testing.T) {
	resp := `{"overall_score":0.9,"dimensions":{"decision_readiness":0.9,"data_quality":0.9,
		"investment_thesis":0.9,"financial_analysis":0.9,"risk_assessment":0.9,"presentation":0.9},
		"passed":true,"issues":[],"recommendations":[]}`
	evaluator := &agent.Evaluator{
		Manager:  agent.NewManagerWithProviders(agent.Config{ActiveProvider: "mock"}, map[string]llm.Provider{"mock": &llm.MockProvider{Response: resp}}),
		Breakers: agent.NewBreakers(),
	}
	p := NewPipeline(evaluator)

	result, err := p.Run(context.Background(), validReport(), 0.6)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.NotEqual(t, "F", result.Grade)
}

func TestPipeline_Run_CriticalFindingCapsGradeAtB(t *testing.T) {
	resp := `{"overall_score":0.98,"dimensions":{"decision_readiness":0.98,"data_quality":0.98,
		"investment_thesis":0.98,"financial_analysis":0.98,"risk_assessment":0.98,"presentation":0.98},
		"passed":true,"issues":[],"recommendations":[]}`
	evaluator := &agent.Evaluator{
		Manager:  agent.NewManagerWithProviders(agent.Config{ActiveProvider: "mock"}, map[string]llm.Provider{"mock": &llm.MockProvider{Response: resp}}),
		Breakers: agent.NewBreakers(),
	}
	p := NewPipeline(evaluator)

	r := validReport()
	r.Valuation.Scenarios = nil // forces a CRITICAL structure finding

	result, err := p.Run(context.Background(), r, 0.6)
	require.NoError(t, err)
	assert.LessOrEqual(t, gradeRank(result.Grade), gradeRank("B"))
}
