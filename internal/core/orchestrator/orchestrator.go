// Package orchestrator implements the Orchestrator (spec.md §4.6), the
// bounded iteration loop with checkpoint synthesis and adaptive
// stopping that is the paper's central contribution. Rewired from the
// teacher's fixed three-phase debate
// (pkg/core/debate/orchestrator.go) into spec.md §4.6's
// iterate -> checkpoint -> evaluate -> refine -> stop loop, keeping the
// same broadcast-driven progress narration (internal/core/trace) and
// the same per-call retry/circuit-breaker plumbing
// (internal/core/agent). Parallel research fan-out (spec.md §4.6.2 step
// 2) is grounded on the teacher's pkg/core/pipeline/orchestrator.go
// filing-extraction loop, converted from sequential to a
// semaphore-bounded goroutine fan-out: stdlib sync + a buffered
// channel, not errgroup, matching the teacher's own concurrency style.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/budget"
	"equity_orchestrator/internal/core/memory"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/review"
	"equity_orchestrator/internal/core/store"
	"equity_orchestrator/internal/core/trace"
	"equity_orchestrator/internal/core/valuation"
	"equity_orchestrator/internal/diag"
)

// SourceProvider supplies the raw documents a hypothesis's research
// step reads from (EDGAR filings, transcripts, news). Decoupled behind
// an interface so the Orchestrator does not depend on any one ingest
// implementation.
type SourceProvider interface {
	Sources(ctx context.Context, h models.Hypothesis) ([]agent.SourceDescriptor, error)
}

// NullSourceProvider supplies no documents; the Deep Research Agent
// then reasons from prior evidence and retrieved memory context alone.
type NullSourceProvider struct{}

func (NullSourceProvider) Sources(ctx context.Context, h models.Hypothesis) ([]agent.SourceDescriptor, error) {
	return nil, nil
}

// Orchestrator wires the five Worker Agents, the Hierarchical State
// Store, the Reasoning Trace, Memory Retrieval, and the Cost/Budget
// Governor into the state machine of spec.md §4.6.1:
// INIT -> ITERATING -> (CHECKPOINT?) -> EVALUATING -> REFINING ->
// (STOP? -> FINALIZING -> TERMINAL) | ERROR.
type Orchestrator struct {
	Store      *store.AnalysisStore
	Hypothesis *agent.HypothesisGenerator
	Research   *agent.DeepResearchAgent
	Synthesis  *agent.DialecticalSynthesisAgent
	Narrative  *agent.NarrativeBuilder
	Evaluator  *agent.Evaluator
	Review     *review.Pipeline
	Memory     memory.Retriever
	Budget     *budget.Governor
	Sources    SourceProvider

	Trace *trace.Recorder

	ids *idAllocator
}

// New wires an Orchestrator for one Analysis. trace is created by the
// caller (it owns the analysis_id-keyed trace.jsonl file) so it can
// also be handed to an HTTP live-tail endpoint.
func New(st *store.AnalysisStore, tr *trace.Recorder, workers Workers, mem memory.Retriever, gov *budget.Governor, sources SourceProvider) *Orchestrator {
	if mem == nil {
		mem = memory.NullRetriever{}
	}
	if sources == nil {
		sources = NullSourceProvider{}
	}
	return &Orchestrator{
		Store:      st,
		Trace:      tr,
		Hypothesis: workers.Hypothesis,
		Research:   workers.Research,
		Synthesis:  workers.Synthesis,
		Narrative:  workers.Narrative,
		Evaluator:  workers.Evaluator,
		Review:     review.NewPipeline(workers.Evaluator),
		Memory:     mem,
		Budget:     gov,
		Sources:    sources,
		ids:        newIDAllocator(0),
	}
}

// Workers groups the five agent.* worker types so New's signature stays
// short.
type Workers struct {
	Hypothesis *agent.HypothesisGenerator
	Research   *agent.DeepResearchAgent
	Synthesis  *agent.DialecticalSynthesisAgent
	Narrative  *agent.NarrativeBuilder
	Evaluator  *agent.Evaluator
}

// Run drives one Analysis from INIT through TERMINAL (or ERROR),
// persisting after every iteration so a crash can resume from
// store.HighestPersistedIteration.
func (o *Orchestrator) Run(ctx context.Context, a *models.Analysis) (*models.Analysis, error) {
	o.ids = newIDAllocator(totalEvidenceItems(a))

	n := highestIterationNumber(a) + 1
	for {
		select {
		case <-ctx.Done():
			a.Status = models.StatusFailed
			a.FailureReason = "cancelled"
			_ = o.Store.SaveAnalysisState(a)
			return a, ctx.Err()
		default:
		}

		start := time.Now()
		if err := o.runIteration(ctx, a, n); err != nil {
			a.Status = models.StatusFailed
			a.FailureReason = err.Error()
			_ = o.Store.SaveAnalysisState(a)
			return a, err
		}

		degraded, reason := o.Budget.CheckAndDegrade(&a.Config, o.totalCostUSD(a), n)
		if degraded {
			_ = o.Trace.Record(models.TraceEvent{AnalysisID: a.AnalysisID, Timestamp: time.Now(), Kind: "checkpoint", Details: map[string]interface{}{"budget_degraded": reason}})
		}

		decision := evaluateStop(a, n, o.Budget.Exhausted(o.totalCostUSD(a), n, a.Config.MaxIterations, a.Config))
		rec := a.Iterations[len(a.Iterations)-1]
		rec.DurationS = time.Since(start).Seconds()
		a.Iterations[len(a.Iterations)-1] = rec
		_ = o.Store.SaveIteration(a.AnalysisID, rec)
		_ = o.Store.SaveAnalysisState(a)

		if decision.Stop {
			return o.finalize(ctx, a, decision.Reason)
		}
		n++
	}
}

func highestIterationNumber(a *models.Analysis) int {
	if len(a.Iterations) == 0 {
		return 0
	}
	return a.Iterations[len(a.Iterations)-1].Iteration
}

func totalEvidenceItems(a *models.Analysis) int {
	total := 0
	for _, b := range a.Evidence {
		total += len(b.Items)
	}
	return total
}

func (o *Orchestrator) totalCostUSD(a *models.Analysis) float64 {
	var total float64
	for _, it := range a.Iterations {
		total += it.CostUSD
	}
	return total
}

// runIteration implements spec.md §4.6.2's eight-step per-iteration
// procedure for iteration n.
func (o *Orchestrator) runIteration(ctx context.Context, a *models.Analysis, n int) error {
	diag.Infof("analysis %s: starting iteration %d", a.AnalysisID, n)

	// Step 1: hypothesis step.
	generated, err := o.runHypothesisStep(ctx, a, n)
	if err != nil {
		if n == 1 {
			return fmt.Errorf("iteration 1 hypothesis step failed fatally: %w", err)
		}
		o.recordError(a, "hypothesis_generator", err)
	}

	// Step 2: research step, K-bounded fan-out.
	selected := selectForResearch(a)
	evidenceIDs := o.runResearchStep(ctx, a, selected)

	// Step 3: checkpoint synthesis (conditional).
	synthesized := o.runCheckpointSynthesis(ctx, a, n)

	// Step 4: evaluation.
	quality := o.runEvaluation(ctx, a, n, generated, len(selected), len(evidenceIDs))

	// Step 5: refinement.
	a.ResearchGaps = o.deriveResearchGaps(a)

	// The record is appended here; step 8 (persisting it) happens in
	// Run after the stop check reads it. Step 7 (compression) runs below.
	a.Iterations = append(a.Iterations, models.IterationRecord{
		Iteration:            n,
		HypothesesGenerated:  generated,
		HypothesesValidated:  len(a.Hypotheses),
		Confidence:           overallConfidence(a),
		QualityScore:         quality,
		EvidenceIDs:          evidenceIDs,
		SynthesizedHypotheses: synthesized,
	})

	if err := o.Store.SaveValidatedHypotheses(a.AnalysisID, a.Hypotheses); err != nil {
		diag.Warnf("persist validated hypotheses: %v", err)
	}
	if err := o.Store.SaveEvidenceBundle(a.AnalysisID, a.Evidence); err != nil {
		diag.Warnf("persist evidence bundle: %v", err)
	}
	if hist, err := o.Store.LoadAllIterations(a.AnalysisID); err == nil {
		compressed := store.Compress(append(hist, a.Iterations[len(a.Iterations)-1]))
		if werr := o.Store.SaveCompressedHistory(a.AnalysisID, compressed); werr != nil {
			diag.Warnf("persist compressed history: %v", werr)
		}
	}

	return nil
}

func (o *Orchestrator) runHypothesisStep(ctx context.Context, a *models.Analysis, n int) (int, error) {
	out, err := o.Hypothesis.Generate(ctx, agent.HypothesisGeneratorInput{
		Company:                  a.CompanyName,
		Ticker:                   a.Ticker,
		PreviousHypothesisTitles: previousTitles(a),
		ResearchGaps:             a.ResearchGaps,
		Iteration:                n,
		EnrichedContext:          o.retrieveContext(ctx, fmt.Sprintf("%s %s prior analyses and notes", a.CompanyName, a.Ticker)),
	})
	if err != nil {
		return 0, err
	}

	added := 0
	for _, h := range out.Hypotheses {
		if _, exists := a.Hypotheses[h.ID]; exists {
			diag.Warnf("analysis %s: rejecting duplicate hypothesis id %q", a.AnalysisID, h.ID)
			continue
		}
		h.InsertionIndex = len(a.HypothesisOrder)
		hCopy := h
		a.Hypotheses[h.ID] = &hCopy
		a.HypothesisOrder = append(a.HypothesisOrder, h.ID)
		a.Evidence[h.ID] = &models.EvidenceBundle{HypothesisID: h.ID}
		added++
	}
	recomputeImpactRanks(a)
	return added, nil
}

// retrieveContext queries Memory Retrieval's personal_knowledge and
// analysis_memory collections and flattens the result into a short
// context string for the Hypothesis Generator (spec.md §4.7: "The
// Orchestrator injects retrieved context into the Hypothesis
// Generator").
func (o *Orchestrator) retrieveContext(ctx context.Context, text string) string {
	results, err := o.Memory.Query(ctx, text, nil, []string{memory.CollectionAnalysisMemory, memory.CollectionPersonalKnowledge}, 3)
	if err != nil {
		return ""
	}
	var out string
	for _, recs := range results {
		for _, r := range recs {
			out += r.Content + "\n"
		}
	}
	return out
}

// retrievedSources queries trusted_sources and surfaces each hit as a
// SourceDescriptor the Deep Research Agent can cite, tagged
// prior_knowledge so it is distinguishable from filing-derived
// evidence in the resulting EvidenceItem.SourceType.
func (o *Orchestrator) retrievedSources(ctx context.Context, text string) []agent.SourceDescriptor {
	results, err := o.Memory.Query(ctx, text, nil, []string{memory.CollectionTrustedSources}, 3)
	if err != nil {
		return nil
	}
	var out []agent.SourceDescriptor
	for _, r := range results[memory.CollectionTrustedSources] {
		out = append(out, agent.SourceDescriptor{SourceType: "prior_knowledge", Reference: r.ID, Content: r.Content})
	}
	return out
}

func previousTitles(a *models.Analysis) []string {
	titles := make([]string, 0, len(a.HypothesisOrder))
	for _, id := range a.HypothesisOrder {
		titles = append(titles, a.Hypotheses[id].Title)
	}
	return titles
}

// recomputeImpactRanks assigns impact_rank 1..N across every hypothesis
// in the Analysis, ordered HIGH, then MEDIUM, then LOW, ties broken by
// insertion order (spec.md §4.6.5).
func recomputeImpactRanks(a *models.Analysis) {
	ordered := make([]*models.Hypothesis, 0, len(a.Hypotheses))
	for _, id := range a.HypothesisOrder {
		ordered = append(ordered, a.Hypotheses[id])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := impactPriority(ordered[i].Impact), impactPriority(ordered[j].Impact)
		if pi != pj {
			return pi < pj
		}
		return ordered[i].InsertionIndex < ordered[j].InsertionIndex
	})
	for i, h := range ordered {
		h.ImpactRank = i + 1
	}
}

func impactPriority(i models.Impact) int {
	switch i {
	case models.ImpactHigh:
		return 0
	case models.ImpactMedium:
		return 1
	default:
		return 2
	}
}

// selectForResearch implements spec.md §4.6.2 step 2's selection rule:
// all HIGH-impact hypotheses, plus any MEDIUM whose confidence is
// below the refinement threshold.
func selectForResearch(a *models.Analysis) []string {
	var selected []string
	for _, id := range a.HypothesisOrder {
		h := a.Hypotheses[id]
		if h.Uncertain {
			continue
		}
		if h.Impact == models.ImpactHigh || (h.Impact == models.ImpactMedium && h.Confidence < a.Config.RefinementThreshold) {
			selected = append(selected, id)
		}
	}
	return selected
}

type researchResult struct {
	hypothesisID string
	out          agent.ResearchOutput
	err          error
}

// runResearchStep invokes Deep Research for every selected hypothesis,
// up to K in parallel (spec.md §4.6.2 step 2, §5's semaphore of size
// K). Merge back into the Analysis happens single-threaded after the
// fan-out join, so EvidenceItem id allocation stays deterministic
// regardless of completion order.
func (o *Orchestrator) runResearchStep(ctx context.Context, a *models.Analysis, selected []string) []string {
	k := a.Config.ParallelResearch
	if k <= 0 {
		k = 1
	}
	sem := make(chan struct{}, k)
	results := make([]researchResult, len(selected))

	var wg sync.WaitGroup
	for i, id := range selected {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			h := a.Hypotheses[id]
			bundle := a.Evidence[id]
			sources, err := o.Sources.Sources(ctx, *h)
			if err != nil {
				results[i] = researchResult{hypothesisID: id, err: err}
				return
			}
			sources = append(sources, o.retrievedSources(ctx, h.Title+" "+h.Thesis)...)
			out, err := o.Research.Research(ctx, agent.ResearchInput{
				Hypothesis:                 *h,
				PriorEvidenceForHypothesis: bundle.Items,
				Sources:                    sources,
			})
			results[i] = researchResult{hypothesisID: id, out: out, err: err}
		}(i, id)
	}
	wg.Wait()

	var allNewIDs []string
	for _, r := range results {
		h := a.Hypotheses[r.hypothesisID]
		if r.err != nil {
			h.Uncertain = true
			o.recordError(a, "deep_research_agent", r.err)
			continue
		}
		newIDs := o.mergeEvidence(a, r.hypothesisID, r.out)
		allNewIDs = append(allNewIDs, newIDs...)
	}
	return allNewIDs
}

// mergeEvidence reassigns each returned EvidenceItem's id through the
// centralized allocator and remaps any Contradicts reference that
// pointed at another item in the same batch, then appends to the
// hypothesis's bundle. References to prior, already-persisted evidence
// ids pass through unchanged.
func (o *Orchestrator) mergeEvidence(a *models.Analysis, hypothesisID string, out agent.ResearchOutput) []string {
	remap := make(map[string]string, len(out.EvidenceItems))
	for i := range out.EvidenceItems {
		remap[out.EvidenceItems[i].ID] = o.ids.Next()
	}

	bundle := a.Evidence[hypothesisID]
	newIDs := make([]string, 0, len(out.EvidenceItems))
	for _, item := range out.EvidenceItems {
		item.ID = remap[item.ID]
		for i, c := range item.Contradicts {
			if mapped, ok := remap[c]; ok {
				item.Contradicts[i] = mapped
			}
		}
		bundle.Items = append(bundle.Items, item)
		newIDs = append(newIDs, item.ID)
	}
	return newIDs
}

// runEvaluation calls the Evaluator in iteration mode (spec.md §4.6.2
// step 4); a worker failure degrades the score to the prior iteration's
// rather than aborting.
func (o *Orchestrator) runEvaluation(ctx context.Context, a *models.Analysis, n, generated, researched, evidenceCount int) float64 {
	out, err := o.Evaluator.Evaluate(ctx, agent.EvaluatorInput{
		EvaluationType: agent.EvaluationIteration,
		Output: map[string]interface{}{
			"iteration":            n,
			"hypotheses_generated": generated,
			"hypotheses_researched": researched,
			"evidence_items":       evidenceCount,
			"overall_confidence":   overallConfidence(a),
		},
		Criteria: map[string]float64{"data_quality": 0, "evidence_coverage": 0, "threshold": 0.5},
	})
	if err != nil {
		o.recordError(a, "evaluator", err)
		if len(a.Iterations) > 0 {
			return a.Iterations[len(a.Iterations)-1].QualityScore
		}
		return 0
	}
	return out.OverallScore
}

// deriveResearchGaps implements spec.md §4.6.2 step 5: hypotheses whose
// confidence did not improve by at least MIN_DELTA since the last
// checkpoint, plus contradictions still unresolved in the current
// evidence bundle.
func (o *Orchestrator) deriveResearchGaps(a *models.Analysis) []string {
	var gaps []string
	for _, id := range a.HypothesisOrder {
		h := a.Hypotheses[id]
		if stalled(h, a.Config.MinDelta) {
			gaps = append(gaps, fmt.Sprintf("confidence stalled on %q (%.2f)", h.Title, h.Confidence))
		}
	}

	resolved := resolvedEvidenceIDs(a)
	var allEvidence []models.EvidenceItem
	for _, b := range a.Evidence {
		allEvidence = append(allEvidence, b.Items...)
	}
	if graph, err := memory.NewContradictionGraph(allEvidence); err == nil {
		if unresolved, err := graph.Unresolved(resolved); err == nil {
			for _, id := range unresolved {
				gaps = append(gaps, fmt.Sprintf("unresolved contradiction involving evidence %s", id))
			}
		}
	}
	return gaps
}

func stalled(h *models.Hypothesis, minDelta float64) bool {
	t := h.ConfidenceTrajectory
	if len(t) < 2 {
		return false
	}
	delta := t[len(t)-1] - t[len(t)-2]
	return delta < minDelta
}

// resolvedEvidenceIDs treats every evidence id cited by a synthesis
// argument as reconciled.
func resolvedEvidenceIDs(a *models.Analysis) map[string]bool {
	resolved := map[string]bool{}
	for _, recs := range a.Synthesis {
		for _, rec := range recs {
			for _, arg := range append(append([]models.BullBearArgument{}, rec.BullCase...), rec.BearCase...) {
				for _, id := range arg.EvidenceIDs {
					resolved[id] = true
				}
			}
		}
	}
	return resolved
}

// finalize implements spec.md §4.6.4: Narrative Builder call, Valuation
// Kernel call, merge into FinalReport, full validation pipeline,
// persist terminal state.
func (o *Orchestrator) finalize(ctx context.Context, a *models.Analysis, stopReason string) (*models.Analysis, error) {
	_ = o.Trace.Record(models.TraceEvent{AnalysisID: a.AnalysisID, Timestamp: time.Now(), Kind: "checkpoint", Details: map[string]interface{}{"finalizing": stopReason}})

	inputs := deriveValuationInputs(a)
	valResult, err := valuation.CalculateDCF(inputs)
	if err != nil {
		a.Status = models.StatusFailed
		a.FailureReason = fmt.Sprintf("finalization valuation failed: %v", err)
		_ = o.Store.SaveAnalysisState(a)
		return a, err
	}
	a.Valuation = &valResult

	report, err := o.Narrative.Build(ctx, agent.NarrativeInput{
		ValidatedHypotheses: a.Hypotheses,
		EvidenceBundle:      a.Evidence,
		SynthesisRecords:    a.Synthesis,
		ValuationResult:     valResult,
	}, a.Config.HoldBandPct)
	if err != nil {
		a.Status = models.StatusFailed
		a.FailureReason = fmt.Sprintf("narrative builder failed: %v", err)
		_ = o.Store.SaveAnalysisState(a)
		return a, err
	}
	report.Valuation.FairValue = valResult.ValuePerShare

	result, err := o.Review.Run(ctx, report, 0)
	if err != nil {
		a.Status = models.StatusFailed
		a.FailureReason = fmt.Sprintf("validation pipeline failed: %v", err)
		_ = o.Store.SaveAnalysisState(a)
		return a, err
	}

	a.Report = &report
	a.Status = models.StatusCompleted
	if !result.Passed {
		a.FailureReason = fmt.Sprintf("graded %s below minimum", result.Grade)
	}

	if err := o.Store.SaveFinalReport(a.AnalysisID, &report); err != nil {
		diag.Warnf("persist final report: %v", err)
	}
	if err := o.Store.SaveAnalysisState(a); err != nil {
		return a, fmt.Errorf("persist terminal state: %w", err)
	}
	return a, nil
}

// deriveValuationInputs assembles ValuationInputs from hypothesis-
// derived assumptions with explicit provenance (spec.md §4.6.4): every
// HIGH-impact hypothesis not marked uncertain shifts the growth
// assumption by 0.02 × (confidence − 0.5), so confidence below 0.5
// lowers it. The provenance is the
// hypothesis set itself, recorded in the Analysis already persisted
// alongside the report.
func deriveValuationInputs(a *models.Analysis) models.ValuationInputs {
	const horizon = 5
	growth := make([]float64, horizon)
	margin := make([]float64, horizon)
	s2c := make([]float64, horizon)
	wacc := make([]float64, horizon)

	baseGrowth, baseMargin := 0.06, 0.15
	var tilt float64
	for _, h := range a.Hypotheses {
		if h.Impact == models.ImpactHigh && !h.Uncertain {
			tilt += (h.Confidence - 0.5) * 0.02
		}
	}

	for t := 0; t < horizon; t++ {
		growth[t] = baseGrowth + tilt
		margin[t] = baseMargin
		s2c[t] = 2.5
		wacc[t] = 0.09
	}

	return models.ValuationInputs{
		BaseRevenue:       1000,
		Growth:            growth,
		Margin:            margin,
		SalesToCapital:    s2c,
		WACC:              wacc,
		StableGrowth:      0.025,
		StableMargin:      baseMargin,
		TaxRate:           0.21,
		NetDebt:           0,
		Cash:              0,
		SharesOutstanding: 100,
	}
}
