package orchestrator

import (
	"context"
	"sort"
	"time"

	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
)

// shouldSynthesize implements spec.md §4.6.2 step 3's checkpoint
// predicate: n is a configured checkpoint, h ranks among the top K by
// impact, and h has cleared the minimum confidence a synthesis pass is
// worth running against.
func shouldSynthesize(policy models.PolicyConfig, n int, h *models.Hypothesis) bool {
	if !containsInt(policy.Checkpoints, n) {
		return false
	}
	if h.ImpactRank > policy.TopKForSynthesis {
		return false
	}
	return h.Confidence >= policy.MinSynthesisConfidence
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// runCheckpointSynthesis applies synthesis to every hypothesis
// satisfying should_synthesize, in ascending impact_rank (spec.md
// §4.6.5: "so that confidence progression is stable and reproducible"
// — and §5's concurrency model, which keeps synthesis sequential).
// A worker failure marks its hypothesis uncertain and the loop
// continues (spec.md §4.6.6); it never aborts the iteration.
func (o *Orchestrator) runCheckpointSynthesis(ctx context.Context, a *models.Analysis, n int) []string {
	var candidates []*models.Hypothesis
	for _, id := range a.HypothesisOrder {
		h := a.Hypotheses[id]
		if h != nil && shouldSynthesize(a.Config, n, h) {
			candidates = append(candidates, h)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ImpactRank < candidates[j].ImpactRank })

	var synthesized []string
	for _, h := range candidates {
		bundle := a.Evidence[h.ID]
		var evidence []models.EvidenceItem
		if bundle != nil {
			evidence = bundle.Items
		}

		rec, err := o.Synthesis.Synthesize(ctx, agent.SynthesisInput{
			Hypothesis:          *h,
			AccumulatedEvidence: evidence,
			PriorSynthesis:      lastSynthesis(a, h.ID),
			Iteration:           n,
			ConfidenceTrajectory: h.ConfidenceTrajectory,
		})
		if err != nil {
			h.Uncertain = true
			o.recordError(a, "synthesis_agent", err)
			continue
		}

		h.Confidence = rec.UpdatedConfidence
		h.ConfidenceTrajectory = append(h.ConfidenceTrajectory, rec.UpdatedConfidence)
		a.Synthesis[h.ID] = append(a.Synthesis[h.ID], rec)
		synthesized = append(synthesized, h.ID)
	}
	return synthesized
}

func lastSynthesis(a *models.Analysis, hypothesisID string) *models.SynthesisRecord {
	recs := a.Synthesis[hypothesisID]
	if len(recs) == 0 {
		return nil
	}
	return &recs[len(recs)-1]
}

func (o *Orchestrator) recordError(a *models.Analysis, kind string, err error) {
	details := map[string]interface{}{"error": err.Error()}
	if k, ok := errs.KindOf(err); ok {
		details["kind"] = string(k)
	}
	_ = o.Trace.Record(models.TraceEvent{
		AnalysisID: a.AnalysisID,
		Timestamp:  time.Now(),
		Kind:       "error",
		Agent:      kind,
		Details:    details,
	})
}
