package agent

import (
	"context"
	"fmt"
	"math"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/workerio"
)

const synthesisSystemPrompt = `You are the Dialectical Synthesis Agent. Given a hypothesis and its accumulated
evidence, produce a bull case, a bear case, non-obvious insights, exactly three probability-weighted
scenarios, and an updated confidence. Respond with strict JSON matching the SynthesisRecord schema:
{"hypothesis_id":string,"checkpoint_iteration":number,"bull_case":[{"argument":string,"evidence_ids":[string],
"strength":string,"confidence":number}],"bear_case":[...],"insights":[string],"tension_resolution":string,
"confidence_rationale":string,"updated_confidence":number,"scenarios":[{"name":string,"probability":number,
"conditions":string,"fair_value":number}]}`

const scenarioCount = 3
const probabilityTolerance = 0.01

// DialecticalSynthesisAgent calls the Synthesis worker (spec.md §4.5.3).
type DialecticalSynthesisAgent struct {
	Manager  *Manager
	Breakers *Breakers
}

func (a *DialecticalSynthesisAgent) Synthesize(ctx context.Context, in SynthesisInput) (models.SynthesisRecord, error) {
	out, err := CallWithRetry(ctx, a.Breakers, "synthesis_agent", func(ctx context.Context) (models.SynthesisRecord, error) {
		return a.call(ctx, in)
	})
	if err != nil {
		return models.SynthesisRecord{}, err
	}
	if err := validateSynthesis(out, in.AccumulatedEvidence); err != nil {
		return models.SynthesisRecord{}, err
	}
	return out, nil
}

func (a *DialecticalSynthesisAgent) call(ctx context.Context, in SynthesisInput) (models.SynthesisRecord, error) {
	prompt := fmt.Sprintf(
		"Hypothesis: %s\nIteration: %d\nAccumulated evidence count: %d\nConfidence trajectory: %v",
		in.Hypothesis.Title, in.Iteration, len(in.AccumulatedEvidence), in.ConfidenceTrajectory,
	)

	raw, err := a.Manager.ExecutePrompt(ctx, "synthesis_agent", prompt, synthesisSystemPrompt, map[string]interface{}{
		"response_format": map[string]interface{}{"type": "json_object"},
	})
	if err != nil {
		return models.SynthesisRecord{}, err
	}

	var out models.SynthesisRecord
	if err := workerio.Decode(raw, &out); err != nil {
		return models.SynthesisRecord{}, errs.Wrap(errs.SchemaViolation, "synthesis agent output", err)
	}
	return out, nil
}

// validateSynthesis enforces spec.md §4.5.3: at least three insights,
// exactly three scenarios summing to 1.0±0.01, every argument citing a
// known evidence id, updated_confidence in [0,1].
func validateSynthesis(rec models.SynthesisRecord, known []models.EvidenceItem) error {
	if len(rec.Insights) < 3 {
		return errs.New(errs.SchemaViolation, fmt.Sprintf("synthesis for %q returned %d insights, need >= 3", rec.HypothesisID, len(rec.Insights)))
	}

	if len(rec.Scenarios) != scenarioCount {
		return errs.New(errs.SchemaViolation, fmt.Sprintf("synthesis for %q returned %d scenarios, need exactly %d", rec.HypothesisID, len(rec.Scenarios), scenarioCount))
	}
	var probSum float64
	for _, s := range rec.Scenarios {
		probSum += s.Probability
	}
	if math.Abs(probSum-1.0) > probabilityTolerance {
		return errs.New(errs.SchemaViolation, fmt.Sprintf("synthesis for %q scenario probabilities sum to %.4f, not 1.0", rec.HypothesisID, probSum))
	}

	knownIDs := map[string]bool{}
	for _, e := range known {
		knownIDs[e.ID] = true
	}
	for _, arg := range append(append([]models.BullBearArgument{}, rec.BullCase...), rec.BearCase...) {
		if len(arg.EvidenceIDs) == 0 {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("synthesis for %q argument %q cites no evidence", rec.HypothesisID, arg.Argument))
		}
		for _, id := range arg.EvidenceIDs {
			if !knownIDs[id] {
				return errs.New(errs.SchemaViolation, fmt.Sprintf("synthesis for %q argument cites unknown evidence id %q", rec.HypothesisID, id))
			}
		}
	}

	if rec.UpdatedConfidence < 0 || rec.UpdatedConfidence > 1 {
		return errs.New(errs.SchemaViolation, fmt.Sprintf("synthesis for %q updated_confidence %v out of [0,1]", rec.HypothesisID, rec.UpdatedConfidence))
	}
	return nil
}
