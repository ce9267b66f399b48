// Package models defines the shared data model for an equity research
// Analysis: hypotheses, evidence, checkpoint synthesis, iteration
// history, valuation, and the final narrative report.
package models

import "time"

// AnalysisStatus is the lifecycle state of an Analysis.
type AnalysisStatus string

const (
	StatusRunning   AnalysisStatus = "running"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

// Impact is the qualitative weight of a Hypothesis.
type Impact string

const (
	ImpactHigh   Impact = "HIGH"
	ImpactMedium Impact = "MEDIUM"
	ImpactLow    Impact = "LOW"
)

// Analysis is one end-to-end run, keyed by AnalysisID.
type Analysis struct {
	AnalysisID  string         `json:"analysis_id"`
	Ticker      string         `json:"ticker"`
	CompanyName string         `json:"company_name"`
	StartedAt   time.Time      `json:"started_at"`
	Status      AnalysisStatus `json:"status"`
	Config      PolicyConfig   `json:"config"`

	Iterations          []IterationRecord         `json:"iterations"`
	Hypotheses          map[string]*Hypothesis    `json:"hypotheses"`
	HypothesisOrder     []string                  `json:"hypothesis_order"` // insertion order, tie-break key
	Evidence            map[string]*EvidenceBundle `json:"evidence"` // hypothesis_id -> bundle
	Synthesis           map[string][]SynthesisRecord `json:"synthesis"` // hypothesis_id -> checkpoint history
	Valuation           *ValuationResult          `json:"valuation,omitempty"`
	Report              *FinalReport              `json:"final_report,omitempty"`
	ResearchGaps        []string                   `json:"research_gaps"`
	FailureReason       string                     `json:"failure_reason,omitempty"`
}

// PolicyConfig parameterizes the Orchestrator's iteration and checkpoint
// policy. Two named presets ("quality-first", "cost-optimized") are
// provided by internal/config; either is a valid PolicyConfig value.
type PolicyConfig struct {
	Name                   string  `json:"name" yaml:"name"`
	Checkpoints            []int   `json:"checkpoints" yaml:"checkpoints"`
	TopKForSynthesis       int     `json:"top_k_for_synthesis" yaml:"top_k_for_synthesis"`
	MinSynthesisConfidence float64 `json:"min_synthesis_confidence" yaml:"min_synthesis_confidence"`
	MinIterations          int     `json:"min_iterations" yaml:"min_iterations"`
	MaxIterations          int     `json:"max_iterations" yaml:"max_iterations"`
	ConfidenceStop         float64 `json:"confidence_stop" yaml:"confidence_stop"`
	RefinementThreshold    float64 `json:"refinement_threshold" yaml:"refinement_threshold"` // MEDIUM confidence floor that triggers research
	MinDelta               float64 `json:"min_delta" yaml:"min_delta"`                       // minimum confidence improvement between checkpoints
	ParallelResearch       int     `json:"parallel_research" yaml:"parallel_research"`       // K
	HoldBandPct            float64 `json:"hold_band_pct" yaml:"hold_band_pct"`               // default 0.05
	WorkerTimeoutSeconds   int     `json:"worker_timeout_seconds" yaml:"worker_timeout_seconds"`
}

// Hypothesis is a falsifiable investment claim.
type Hypothesis struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	Thesis                string    `json:"thesis"`
	EvidenceNeeded        []string  `json:"evidence_needed"`
	Impact                Impact    `json:"impact"`
	ImpactRank            int       `json:"impact_rank"`
	Confidence            float64   `json:"confidence"`
	ConfidenceTrajectory  []float64 `json:"confidence_trajectory"`
	Uncertain             bool      `json:"uncertain"`
	InsertionIndex        int       `json:"-"`
}

// EvidenceItem is one attributable claim extracted from one source.
type EvidenceItem struct {
	ID              string   `json:"id"`
	HypothesisID    string   `json:"hypothesis_id"`
	Claim           string   `json:"claim"`
	SourceType      string   `json:"source_type"` // 10-K, 10-Q, 8-K, transcript, news, analyst, prior_knowledge, other
	SourceReference string   `json:"source_reference"`
	Quote           string   `json:"quote"`
	Confidence      float64  `json:"confidence"`
	ImpactDirection string   `json:"impact_direction"` // +, -, unclear
	Contradicts     []string `json:"contradicts,omitempty"`
}

// EvidenceBundle is the append-only ordered union of EvidenceItems for
// one Hypothesis.
type EvidenceBundle struct {
	HypothesisID string         `json:"hypothesis_id"`
	Items        []EvidenceItem `json:"items"`
}

// SourceDiversity returns the count of distinct SourceType values.
func (b *EvidenceBundle) SourceDiversity() int {
	seen := map[string]bool{}
	for _, it := range b.Items {
		seen[it.SourceType] = true
	}
	return len(seen)
}

// BullBearArgument is one argument with supporting evidence in a
// SynthesisRecord.
type BullBearArgument struct {
	Argument    string   `json:"argument"`
	EvidenceIDs []string `json:"evidence_ids"`
	Strength    string   `json:"strength"` // strong, moderate, weak
	Confidence  float64  `json:"confidence"`
}

// Scenario is one of the three valuation cases.
type Scenario struct {
	Name        string  `json:"name"` // bull, base, bear
	Probability float64 `json:"probability"`
	Conditions  string  `json:"conditions"`
	FairValue   float64 `json:"fair_value,omitempty"`
}

// SynthesisRecord is the output of one checkpoint synthesis on one
// Hypothesis.
type SynthesisRecord struct {
	HypothesisID        string             `json:"hypothesis_id"`
	CheckpointIteration int                `json:"checkpoint_iteration"`
	BullCase            []BullBearArgument `json:"bull_case"`
	BearCase            []BullBearArgument `json:"bear_case"`
	Insights            []string           `json:"insights"`
	TensionResolution   string             `json:"tension_resolution"`
	ConfidenceRationale string             `json:"confidence_rationale"`
	UpdatedConfidence   float64            `json:"updated_confidence"`
	Scenarios           []Scenario         `json:"scenarios"`
}

// IterationRecord is state captured at the end of iteration N.
type IterationRecord struct {
	Iteration             int      `json:"iteration"`
	DurationS              float64  `json:"duration_s"`
	HypothesesGenerated    int      `json:"hypotheses_generated"`
	HypothesesValidated    int      `json:"hypotheses_validated"`
	Confidence             float64  `json:"confidence"`
	QualityScore           float64  `json:"quality_score"`
	CostUSD                float64  `json:"cost_usd"`
	EvidenceIDs            []string `json:"evidence_ids"`
	SynthesizedHypotheses  []string `json:"synthesized_hypotheses"`
	Resolution             string   `json:"resolution"` // L1, L2, L3 — set at compression time
}

// ValuationInputs is the structured DCF input (spec.md §3.1).
type ValuationInputs struct {
	BaseRevenue       float64   `json:"base_revenue"`
	Growth            []float64 `json:"growth"`
	Margin            []float64 `json:"margin"`
	SalesToCapital    []float64 `json:"sales_to_capital"`
	WACC              []float64 `json:"wacc"`
	StableGrowth      float64   `json:"stable_growth"`
	StableMargin      float64   `json:"stable_margin"`
	TaxRate           float64   `json:"tax_rate"`
	NetDebt           float64   `json:"net_debt"`
	Cash              float64   `json:"cash"`
	SharesOutstanding float64   `json:"shares_outstanding"`
}

// ValuationResult is the deterministic DCF output (spec.md §3.1).
type ValuationResult struct {
	ValuePerShare float64 `json:"value_per_share"`
	EquityValue   float64 `json:"equity_value"`
	PVExplicit    float64 `json:"pv_explicit"`
	PVTerminal    float64 `json:"pv_terminal"`

	Years             []int     `json:"years"`
	Revenue           []float64 `json:"revenue"`
	EBIT              []float64 `json:"ebit"`
	NOPAT             []float64 `json:"nopat"`
	Reinvestment      []float64 `json:"reinvestment"`
	FCFF              []float64 `json:"fcff"`
	DiscountFactors   []float64 `json:"discount_factors"`
}

// Recommendation is the FinalReport's actionable recommendation.
type Recommendation struct {
	Action          string   `json:"action"` // BUY, HOLD, SELL
	Conviction      string   `json:"conviction"` // HIGH, MEDIUM, LOW
	Timeframe       string   `json:"timeframe"`
	EntryConditions []string `json:"entry_conditions"`
	ExitConditions  []string `json:"exit_conditions"`
}

// ReportSection is one titled, evidence-linked block of the narrative.
type ReportSection struct {
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// ValuationSection is the valuation block of a FinalReport (spec.md §6.5).
type ValuationSection struct {
	FairValue     float64    `json:"fair_value"`
	CurrentPrice  float64    `json:"current_price"`
	Scenarios     []Scenario `json:"scenarios"`
	Methodology   string     `json:"methodology"`
}

// FinalReport is the narrative emission (spec.md §3.1, §6.5).
type FinalReport struct {
	ExecutiveSummary  string            `json:"executive_summary"`
	InvestmentThesis  string            `json:"investment_thesis"`
	FinancialAnalysis string            `json:"financial_analysis"`
	Valuation         ValuationSection  `json:"valuation"`
	BullBearAnalysis  string            `json:"bull_bear_analysis"`
	Risks             string            `json:"risks"`
	Recommendation    Recommendation    `json:"recommendation"`
	Sections          []ReportSection   `json:"sections"`
	Limitations       []string          `json:"limitations,omitempty"`
}

// TraceEvent is an append-only record in the Reasoning Trace.
type TraceEvent struct {
	AnalysisID string                 `json:"analysis_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Kind       string                 `json:"kind"` // planning, agent_call, tool_call, evaluation, checkpoint, error
	Agent      string                 `json:"agent,omitempty"`
	InputsHash string                 `json:"inputs_hash,omitempty"`
	OutputsHash string                `json:"outputs_hash,omitempty"`
	DurationS  float64                `json:"duration_s,omitempty"`
	CostUSD    float64                `json:"cost_usd,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}
