package agent

import (
	"context"
	"fmt"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/workerio"
)

const researchSystemPrompt = `You are the Deep Research Agent. Given one hypothesis, its prior evidence, and a set of
source documents, extract attributable evidence items. Respond with strict JSON matching:
{"hypothesis_id":string,"evidence_items":[{"id":string,"hypothesis_id":string,"claim":string,
"source_type":string,"source_reference":string,"quote":string,"confidence":number,
"impact_direction":"+"|"-"|"unclear","contradicts":[string]}],"sources_processed":number,
"source_diversity":number,"contradictions":[{"evidence_a":string,"evidence_b":string,"nature":string}]}`

// DeepResearchAgent calls the Deep Research worker (spec.md §4.5.2).
// The Orchestrator runs up to K of these concurrently across
// hypotheses; this type holds no per-call mutable state so it is safe
// to share across goroutines.
type DeepResearchAgent struct {
	Manager  *Manager
	Breakers *Breakers
}

func (a *DeepResearchAgent) Research(ctx context.Context, in ResearchInput) (ResearchOutput, error) {
	out, err := CallWithRetry(ctx, a.Breakers, "deep_research_agent", func(ctx context.Context) (ResearchOutput, error) {
		return a.call(ctx, in)
	})
	if err != nil {
		return ResearchOutput{}, err
	}
	if err := validateResearch(out, in.PriorEvidenceForHypothesis); err != nil {
		return ResearchOutput{}, err
	}
	return out, nil
}

func (a *DeepResearchAgent) call(ctx context.Context, in ResearchInput) (ResearchOutput, error) {
	prompt := fmt.Sprintf(
		"Hypothesis: %s\nThesis: %s\nPrior evidence count: %d\nSources: %d",
		in.Hypothesis.Title, in.Hypothesis.Thesis, len(in.PriorEvidenceForHypothesis), len(in.Sources),
	)

	raw, err := a.Manager.ExecutePrompt(ctx, "deep_research_agent", prompt, researchSystemPrompt, map[string]interface{}{
		"response_format": map[string]interface{}{"type": "json_object"},
	})
	if err != nil {
		return ResearchOutput{}, err
	}

	var out ResearchOutput
	if err := workerio.Decode(raw, &out); err != nil {
		return ResearchOutput{}, errs.Wrap(errs.SchemaViolation, "deep research agent output", err)
	}
	return out, nil
}

// validateResearch enforces spec.md §4.5.2: every field present, every
// confidence in [0,1], impact_direction in the enumerated set, and
// every contradicts reference resolving to a returned or prior id.
func validateResearch(out ResearchOutput, prior []models.EvidenceItem) error {
	known := map[string]bool{}
	for _, item := range prior {
		known[item.ID] = true
	}
	for _, item := range out.EvidenceItems {
		known[item.ID] = true
	}

	for _, item := range out.EvidenceItems {
		if item.ID == "" || item.HypothesisID == "" || item.Claim == "" || item.SourceType == "" {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("evidence item %q missing a required field", item.ID))
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("evidence item %q confidence %v out of [0,1]", item.ID, item.Confidence))
		}
		switch item.ImpactDirection {
		case "+", "-", "unclear":
		default:
			return errs.New(errs.SchemaViolation, fmt.Sprintf("evidence item %q has invalid impact_direction %q", item.ID, item.ImpactDirection))
		}
		for _, c := range item.Contradicts {
			if !known[c] {
				return errs.New(errs.SchemaViolation, fmt.Sprintf("evidence item %q contradicts unknown id %q", item.ID, c))
			}
		}
	}
	return nil
}
