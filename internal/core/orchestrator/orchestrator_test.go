package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/budget"
	"equity_orchestrator/internal/core/llm"
	"equity_orchestrator/internal/core/memory"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/store"
	"equity_orchestrator/internal/core/trace"
)

const hypothesesJSON = `{"hypotheses":[
{"id":"h1","title":"Margin expands on mix shift","thesis":"Gross margin rises 3 percent over 2 quarters on mix","impact":"HIGH","evidence_needed":["10-Q margin trend"]},
{"id":"h2","title":"Cloud segment grows 20 percent","thesis":"Cloud revenue grows 20 percent this year","impact":"HIGH","evidence_needed":["segment disclosure"]},
{"id":"h3","title":"Churn stabilizes below 5 percent","thesis":"Customer churn falls below 5 percent next quarter","impact":"MEDIUM","evidence_needed":["retention metrics"]},
{"id":"h4","title":"Opex grows slower than revenue","thesis":"Opex grows 4 percent versus 10 percent revenue growth","impact":"MEDIUM","evidence_needed":["opex trend"]},
{"id":"h5","title":"Buyback reduces share count 2 percent","thesis":"Share count falls 2 percent this year from buybacks","impact":"LOW","evidence_needed":["capital allocation"]}
]}`

const researchJSON = `{"hypothesis_id":"h1","evidence_items":[
{"id":"tmp-1","hypothesis_id":"h1","claim":"Gross margin rose 120bps YoY","source_type":"10-Q","source_reference":"Q2 10-Q","quote":"gross margin improved","confidence":0.7,"impact_direction":"+"}
],"sources_processed":1,"source_diversity":1,"contradictions":[]}`

const evaluatorJSON = `{"overall_score":0.8,"dimensions":{
"data_quality":0.8,"evidence_coverage":0.8,"decision_readiness":0.8,
"investment_thesis":0.8,"financial_analysis":0.8,"risk_assessment":0.8,"presentation":0.8
},"passed":true,"issues":[],"recommendations":[]}`

const narrativeJSON = `{"executive_summary":"` + longText + `",
"investment_thesis":"` + longText + `",
"financial_analysis":"` + longText + `",
"valuation":{"fair_value":150,"current_price":100,"methodology":"DCF","scenarios":[
{"name":"bear","probability":0.25,"conditions":"downside case","fair_value":110},
{"name":"base","probability":0.5,"conditions":"base case","fair_value":150},
{"name":"bull","probability":0.25,"conditions":"upside case","fair_value":190}
]},
"bull_bear_analysis":"` + longText + `",
"risks":"` + longText + `",
"recommendation":{"action":"BUY","conviction":"HIGH","timeframe":"12 months","entry_conditions":["pullback to 120"],"exit_conditions":["thesis break"]},
"sections":[],"limitations":[]}`

const longText = "This is a sufficiently long section of narrative text that exceeds the minimum word count floor enforced by the heuristic layer of the validation pipeline so the test report passes review cleanly without tripping a structure or heuristic finding during finalize."

func testPolicy() models.PolicyConfig {
	return models.PolicyConfig{
		Name:                   "test",
		Checkpoints:            nil, // no checkpoint synthesis in these tests
		TopKForSynthesis:       2,
		MinSynthesisConfidence: 0.5,
		MinIterations:          1,
		MaxIterations:          2,
		ConfidenceStop:         0.99,
		RefinementThreshold:    0.9,
		MinDelta:               0.01,
		ParallelResearch:       2,
		HoldBandPct:            0.05,
		WorkerTimeoutSeconds:   5,
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *models.Analysis) {
	t.Helper()
	return newTestOrchestratorWithDir(t, t.TempDir(), "test-analysis")
}

func newTestOrchestratorWithDir(t *testing.T, workDir, analysisID string) (*Orchestrator, *models.Analysis) {
	t.Helper()

	providers := map[string]llm.Provider{
		"hyp":    &llm.MockProvider{Response: hypothesesJSON},
		"resrch": &llm.MockProvider{Response: researchJSON},
		"eval":   &llm.MockProvider{Response: evaluatorJSON},
		"narr":   &llm.MockProvider{Response: narrativeJSON},
		"synth":  &llm.MockProvider{Response: `{}`}, // never exercised: no checkpoints configured
	}
	cfg := agent.Config{
		ActiveProvider: "hyp",
		Agents: map[string]agent.AgentConfig{
			"hypothesis_generator": {Provider: "hyp"},
			"deep_research_agent":  {Provider: "resrch"},
			"evaluator":            {Provider: "eval"},
			"narrative_builder":    {Provider: "narr"},
			"synthesis_agent":      {Provider: "synth"},
		},
	}
	mgr := agent.NewManagerWithProviders(cfg, providers)
	breakers := agent.NewBreakers()

	workers := Workers{
		Hypothesis: &agent.HypothesisGenerator{Manager: mgr, Breakers: breakers},
		Research:   &agent.DeepResearchAgent{Manager: mgr, Breakers: breakers},
		Synthesis:  &agent.DialecticalSynthesisAgent{Manager: mgr, Breakers: breakers},
		Narrative:  &agent.NarrativeBuilder{Manager: mgr, Breakers: breakers},
		Evaluator:  &agent.Evaluator{Manager: mgr, Breakers: breakers},
	}

	st := store.NewAnalysisStore(workDir)
	tr, err := trace.NewRecorder(workDir, analysisID)
	require.NoError(t, err)

	o := New(st, tr, workers, memory.NullRetriever{}, budget.NewGovernor(0), NullSourceProvider{})

	a := &models.Analysis{
		AnalysisID:  analysisID,
		Ticker:      "ACME",
		CompanyName: "Acme Corp",
		StartedAt:   time.Now(),
		Status:      models.StatusRunning,
		Config:      testPolicy(),
		Hypotheses:  map[string]*models.Hypothesis{},
		Evidence:    map[string]*models.EvidenceBundle{},
		Synthesis:   map[string][]models.SynthesisRecord{},
	}
	return o, a
}

func TestRun_CompletesWithinMaxIterations(t *testing.T) {
	o, a := newTestOrchestrator(t)

	result, err := o.Run(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.NotNil(t, result.Report)
	assert.LessOrEqual(t, len(result.Iterations), testPolicy().MaxIterations)
	assert.Len(t, result.Hypotheses, 5)
}

func TestRun_StopsAtMaxIterationsWhenConfidenceNeverReachesStop(t *testing.T) {
	o, a := newTestOrchestrator(t)
	a.Config.MaxIterations = 1
	a.Config.MinIterations = 1

	result, err := o.Run(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, len(result.Iterations))
	assert.Equal(t, models.StatusCompleted, result.Status)
}

func TestRun_FatalOnIteration1HypothesisFailure(t *testing.T) {
	o, a := newTestOrchestrator(t)
	o.Hypothesis.Manager = agent.NewManagerWithProviders(agent.Config{ActiveProvider: "broken"}, map[string]llm.Provider{
		"broken": &llm.MockProvider{Response: `not json at all, no braces`},
	})

	_, err := o.Run(context.Background(), a)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, a.Status)
}

func TestRecomputeImpactRanks_OrdersHighMediumLowThenInsertion(t *testing.T) {
	a := &models.Analysis{
		Hypotheses: map[string]*models.Hypothesis{
			"a": {ID: "a", Impact: models.ImpactLow, InsertionIndex: 0},
			"b": {ID: "b", Impact: models.ImpactHigh, InsertionIndex: 1},
			"c": {ID: "c", Impact: models.ImpactHigh, InsertionIndex: 2},
			"d": {ID: "d", Impact: models.ImpactMedium, InsertionIndex: 3},
		},
		HypothesisOrder: []string{"a", "b", "c", "d"},
	}
	recomputeImpactRanks(a)

	assert.Equal(t, 1, a.Hypotheses["b"].ImpactRank)
	assert.Equal(t, 2, a.Hypotheses["c"].ImpactRank)
	assert.Equal(t, 3, a.Hypotheses["d"].ImpactRank)
	assert.Equal(t, 4, a.Hypotheses["a"].ImpactRank)
}

func TestSelectForResearch_HighAlwaysSelectedMediumGatedByThreshold(t *testing.T) {
	a := &models.Analysis{
		Config: models.PolicyConfig{RefinementThreshold: 0.6},
		Hypotheses: map[string]*models.Hypothesis{
			"high":         {ID: "high", Impact: models.ImpactHigh, Confidence: 0.9},
			"medium-low":   {ID: "medium-low", Impact: models.ImpactMedium, Confidence: 0.3},
			"medium-high":  {ID: "medium-high", Impact: models.ImpactMedium, Confidence: 0.8},
			"low":          {ID: "low", Impact: models.ImpactLow, Confidence: 0.1},
			"uncertainHigh": {ID: "uncertainHigh", Impact: models.ImpactHigh, Confidence: 0.9, Uncertain: true},
		},
		HypothesisOrder: []string{"high", "medium-low", "medium-high", "low", "uncertainHigh"},
	}
	selected := selectForResearch(a)
	assert.ElementsMatch(t, []string{"high", "medium-low"}, selected)
}

func TestMergeEvidence_RemapsIDsAndIntraBatchContradictions(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.ids = newIDAllocator(0)

	a := &models.Analysis{
		Evidence: map[string]*models.EvidenceBundle{
			"h1": {HypothesisID: "h1"},
		},
	}
	out := agent.ResearchOutput{
		HypothesisID: "h1",
		EvidenceItems: []models.EvidenceItem{
			{ID: "tmp-a", HypothesisID: "h1", Claim: "first"},
			{ID: "tmp-b", HypothesisID: "h1", Claim: "second", Contradicts: []string{"tmp-a"}},
		},
	}

	newIDs := o.mergeEvidence(a, "h1", out)
	require.Len(t, newIDs, 2)
	assert.NotEqual(t, "tmp-a", newIDs[0])
	assert.NotEqual(t, "tmp-b", newIDs[1])

	bundle := a.Evidence["h1"]
	require.Len(t, bundle.Items, 2)
	assert.Equal(t, newIDs[0], bundle.Items[0].ID)
	assert.Equal(t, []string{newIDs[0]}, bundle.Items[1].Contradicts)
}

func TestMergeEvidence_AllocatesDistinctIDsAcrossHypotheses(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.ids = newIDAllocator(0)

	a := &models.Analysis{
		Evidence: map[string]*models.EvidenceBundle{
			"h1": {HypothesisID: "h1"},
			"h2": {HypothesisID: "h2"},
		},
	}

	o.mergeEvidence(a, "h1", agent.ResearchOutput{EvidenceItems: []models.EvidenceItem{{ID: "x", HypothesisID: "h1"}}})
	o.mergeEvidence(a, "h2", agent.ResearchOutput{EvidenceItems: []models.EvidenceItem{{ID: "y", HypothesisID: "h2"}}})

	assert.NotEqual(t, a.Evidence["h1"].Items[0].ID, a.Evidence["h2"].Items[0].ID)
}

func TestShouldSynthesize_RequiresCheckpointImpactRankAndConfidence(t *testing.T) {
	policy := models.PolicyConfig{Checkpoints: []int{3, 6}, TopKForSynthesis: 2, MinSynthesisConfidence: 0.5}

	assert.True(t, shouldSynthesize(policy, 3, &models.Hypothesis{ImpactRank: 1, Confidence: 0.6}))
	assert.False(t, shouldSynthesize(policy, 4, &models.Hypothesis{ImpactRank: 1, Confidence: 0.6}), "not a checkpoint iteration")
	assert.False(t, shouldSynthesize(policy, 3, &models.Hypothesis{ImpactRank: 3, Confidence: 0.6}), "outside top K")
	assert.False(t, shouldSynthesize(policy, 3, &models.Hypothesis{ImpactRank: 1, Confidence: 0.2}), "below min synthesis confidence")
}

func TestEvaluateStop_MaxIterationsAndBudgetExhaustionIgnoreMinIterations(t *testing.T) {
	a := &models.Analysis{Config: models.PolicyConfig{MinIterations: 10, MaxIterations: 2, ConfidenceStop: 0.99}}

	d := evaluateStop(a, 2, false)
	assert.True(t, d.Stop)

	d = evaluateStop(a, 1, true)
	assert.True(t, d.Stop)
}

func TestEvaluateStop_ConfidenceStopGatedByMinIterations(t *testing.T) {
	a := &models.Analysis{
		Config: models.PolicyConfig{MinIterations: 3, MaxIterations: 10, ConfidenceStop: 0.8},
		Hypotheses: map[string]*models.Hypothesis{
			"h1": {ID: "h1", Confidence: 0.95},
		},
	}

	assert.False(t, evaluateStop(a, 1, false).Stop, "below MinIterations, confidence_stop does not apply yet")
	assert.True(t, evaluateStop(a, 3, false).Stop)
}

func TestEvaluateStop_FlatQualityStreakStops(t *testing.T) {
	a := &models.Analysis{
		Config: models.PolicyConfig{MinIterations: 1, MaxIterations: 20, ConfidenceStop: 0.99},
		Iterations: []models.IterationRecord{
			{Iteration: 1, QualityScore: 0.70},
			{Iteration: 2, QualityScore: 0.71},
			{Iteration: 3, QualityScore: 0.72},
			{Iteration: 4, QualityScore: 0.72},
		},
	}
	assert.True(t, evaluateStop(a, 4, false).Stop)
}

func TestDeriveResearchGaps_FlagsStalledHypothesisAndUnresolvedContradiction(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	a := &models.Analysis{
		Config: models.PolicyConfig{MinDelta: 0.05},
		Hypotheses: map[string]*models.Hypothesis{
			"h1": {ID: "h1", Title: "stalled hypothesis", Confidence: 0.51, ConfidenceTrajectory: []float64{0.5, 0.51}},
		},
		HypothesisOrder: []string{"h1"},
		Evidence: map[string]*models.EvidenceBundle{
			"h1": {HypothesisID: "h1", Items: []models.EvidenceItem{
				{ID: "ev-1", HypothesisID: "h1", Contradicts: []string{"ev-2"}},
				{ID: "ev-2", HypothesisID: "h1"},
			}},
		},
		Synthesis: map[string][]models.SynthesisRecord{},
	}

	gaps := o.deriveResearchGaps(a)
	require.NotEmpty(t, gaps)

	foundStalled, foundContradiction := false, false
	for _, g := range gaps {
		if g == "confidence stalled on \"stalled hypothesis\" (0.51)" {
			foundStalled = true
		}
		if g == "unresolved contradiction involving evidence ev-1" {
			foundContradiction = true
		}
	}
	assert.True(t, foundStalled)
	assert.True(t, foundContradiction)
}

func TestRunResearchStep_WorkerFailureMarksHypothesisUncertainWithoutAborting(t *testing.T) {
	o, a := newTestOrchestrator(t)
	o.Research.Manager = agent.NewManagerWithProviders(agent.Config{ActiveProvider: "broken"}, map[string]llm.Provider{
		"broken": &llm.MockProvider{Err: assertErr{}},
	})

	h := &models.Hypothesis{ID: "h1", Title: "h1", Impact: models.ImpactHigh}
	a.Hypotheses["h1"] = h
	a.HypothesisOrder = []string{"h1"}
	a.Evidence["h1"] = &models.EvidenceBundle{HypothesisID: "h1"}

	evidenceIDs := o.runResearchStep(context.Background(), a, []string{"h1"})
	assert.Empty(t, evidenceIDs)
	assert.True(t, h.Uncertain)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated deep research failure" }

// TestRun_ResumesFromHighestPersistedIterationAfterCrash exercises the
// crash-recovery path (spec.md §4.3, §8.1 #7, §8.3 Scenario D): a second
// Orchestrator, pointed at the same work_dir and reloading the persisted
// Analysis via LoadAnalysisState/HighestPersistedIteration, continues
// from the next iteration instead of repeating or losing iteration 1.
func TestRun_ResumesFromHighestPersistedIterationAfterCrash(t *testing.T) {
	workDir := t.TempDir()
	const analysisID = "resume-analysis"

	o1, a1 := newTestOrchestratorWithDir(t, workDir, analysisID)
	a1.Config.MinIterations = 1
	a1.Config.MaxIterations = 1 // "crash" after exactly one persisted iteration

	result1, err := o1.Run(context.Background(), a1)
	require.NoError(t, err)
	require.Len(t, result1.Iterations, 1)
	require.Equal(t, 1, result1.Iterations[0].Iteration)

	st := store.NewAnalysisStore(workDir)
	highest, err := st.HighestPersistedIteration(analysisID)
	require.NoError(t, err)
	require.Equal(t, 1, highest)

	resumed, err := st.LoadAnalysisState(analysisID)
	require.NoError(t, err)
	require.Equal(t, 1, len(resumed.Iterations))

	o2, _ := newTestOrchestratorWithDir(t, workDir, analysisID)
	resumed.Config.MinIterations = 1
	resumed.Config.MaxIterations = 2
	resumed.Status = models.StatusRunning

	result2, err := o2.Run(context.Background(), resumed)
	require.NoError(t, err)
	require.Len(t, result2.Iterations, 2, "resume must append iteration 2, not replay iteration 1")
	assert.Equal(t, 1, result2.Iterations[0].Iteration)
	assert.Equal(t, 2, result2.Iterations[1].Iteration)
	assert.Equal(t, models.StatusCompleted, result2.Status)

	highestAfterResume, err := st.HighestPersistedIteration(analysisID)
	require.NoError(t, err)
	assert.Equal(t, 2, highestAfterResume)
}
