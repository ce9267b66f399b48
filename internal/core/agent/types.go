package agent

import "equity_orchestrator/internal/core/models"

// HypothesisGeneratorInput is the input to the Hypothesis Generator
// (spec.md §4.5.1).
type HypothesisGeneratorInput struct {
	Company                 string   `json:"company"`
	Ticker                  string   `json:"ticker"`
	PreviousHypothesisTitles []string `json:"previous_hypothesis_titles"`
	ResearchGaps            []string `json:"research_gaps"`
	Iteration               int      `json:"iteration"`
	EnrichedContext         string   `json:"enriched_context,omitempty"`
}

// HypothesisGeneratorOutput is the Hypothesis Generator's declared
// output shape.
type HypothesisGeneratorOutput struct {
	Hypotheses []models.Hypothesis `json:"hypotheses"`
}

// ResearchInput is the input to the Deep Research Agent (spec.md §4.5.2).
type ResearchInput struct {
	Hypothesis              models.Hypothesis    `json:"hypothesis"`
	PriorEvidenceForHypothesis []models.EvidenceItem `json:"prior_evidence_for_hypothesis"`
	Sources                 []SourceDescriptor   `json:"sources"`
}

// SourceDescriptor is one candidate evidence source supplied by the
// Orchestrator for the Deep Research Agent to read.
type SourceDescriptor struct {
	SourceType string `json:"source_type"`
	Reference  string `json:"reference"`
	Content    string `json:"content"`
}

// Contradiction links two evidence items the Deep Research Agent found
// in tension.
type Contradiction struct {
	EvidenceA string `json:"evidence_a"`
	EvidenceB string `json:"evidence_b"`
	Nature    string `json:"nature"`
}

// ResearchOutput is the Deep Research Agent's declared output shape.
type ResearchOutput struct {
	HypothesisID     string                `json:"hypothesis_id"`
	EvidenceItems    []models.EvidenceItem `json:"evidence_items"`
	SourcesProcessed int                   `json:"sources_processed"`
	SourceDiversity  int                   `json:"source_diversity"`
	Contradictions   []Contradiction       `json:"contradictions"`
}

// SynthesisInput is the input to the Dialectical Synthesis Agent
// (spec.md §4.5.3).
type SynthesisInput struct {
	Hypothesis           models.Hypothesis        `json:"hypothesis"`
	AccumulatedEvidence  []models.EvidenceItem    `json:"accumulated_evidence"`
	PriorSynthesis       *models.SynthesisRecord  `json:"prior_synthesis,omitempty"`
	Iteration            int                      `json:"iteration"`
	ConfidenceTrajectory []float64                `json:"confidence_trajectory"`
}

// NarrativeInput is the input to the Narrative Builder (spec.md §4.5.4).
type NarrativeInput struct {
	ValidatedHypotheses map[string]*models.Hypothesis       `json:"validated_hypotheses"`
	EvidenceBundle      map[string]*models.EvidenceBundle   `json:"evidence_bundle"`
	SynthesisRecords    map[string][]models.SynthesisRecord `json:"synthesis_records"`
	ValuationResult     models.ValuationResult              `json:"valuation_result"`
	CompressedHistory   interface{}                         `json:"compressed_history"`
}

// EvaluationType distinguishes the two Evaluator modes (spec.md §4.5.5).
type EvaluationType string

const (
	EvaluationIteration EvaluationType = "iteration"
	EvaluationFinal      EvaluationType = "final"
)

// EvaluatorInput is the input to the Evaluator.
type EvaluatorInput struct {
	EvaluationType EvaluationType         `json:"evaluation_type"`
	Output         interface{}            `json:"output"`
	Criteria       map[string]float64     `json:"criteria"` // dimension name -> threshold; "threshold" key is the pass bar
}

// EvaluatorOutput is the Evaluator's declared output shape.
type EvaluatorOutput struct {
	OverallScore    float64            `json:"overall_score"`
	Dimensions      map[string]float64 `json:"dimensions"`
	Passed          bool               `json:"passed"`
	Issues          []string           `json:"issues"`
	Recommendations []string           `json:"recommendations"`
}
