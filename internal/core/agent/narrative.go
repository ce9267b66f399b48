package agent

import (
	"context"
	"fmt"
	"math"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/workerio"
)

const narrativeSystemPrompt = `You are the Narrative Builder. Given validated hypotheses, their evidence bundles,
synthesis records, the valuation result, and compressed iteration history, write the final investment report.
Respond with strict JSON matching the FinalReport schema (executive_summary, investment_thesis,
financial_analysis, valuation{fair_value,current_price,scenarios,methodology}, bull_bear_analysis, risks,
recommendation{action,conviction,timeframe,entry_conditions,exit_conditions}, sections[], limitations[]).
action must be one of BUY, HOLD, SELL.`

const defaultHoldBandPct = 0.05

// NarrativeBuilder calls the Narrative Builder worker (spec.md §4.5.4).
type NarrativeBuilder struct {
	Manager  *Manager
	Breakers *Breakers
}

func (a *NarrativeBuilder) Build(ctx context.Context, in NarrativeInput, holdBandPct float64) (models.FinalReport, error) {
	if holdBandPct <= 0 {
		holdBandPct = defaultHoldBandPct
	}

	out, err := CallWithRetry(ctx, a.Breakers, "narrative_builder", func(ctx context.Context) (models.FinalReport, error) {
		return a.call(ctx, in)
	})
	if err != nil {
		return models.FinalReport{}, err
	}
	if err := validateNarrative(out, holdBandPct); err != nil {
		return models.FinalReport{}, err
	}
	return out, nil
}

func (a *NarrativeBuilder) call(ctx context.Context, in NarrativeInput) (models.FinalReport, error) {
	prompt := fmt.Sprintf(
		"Validated hypotheses: %d\nValuation per share: %.2f\nEquity value: %.2f",
		len(in.ValidatedHypotheses), in.ValuationResult.ValuePerShare, in.ValuationResult.EquityValue,
	)

	raw, err := a.Manager.ExecutePrompt(ctx, "narrative_builder", prompt, narrativeSystemPrompt, map[string]interface{}{
		"response_format": map[string]interface{}{"type": "json_object"},
	})
	if err != nil {
		return models.FinalReport{}, err
	}

	var out models.FinalReport
	if err := workerio.Decode(raw, &out); err != nil {
		return models.FinalReport{}, errs.Wrap(errs.SchemaViolation, "narrative builder output", err)
	}
	return out, nil
}

// validateNarrative enforces spec.md §4.5.4's scenario-probability and
// recommendation-consistency contract; structural completeness and
// evidence-ref coverage are the Validation Pipeline's job (§4.8,
// internal/core/review), not the worker's own output gate.
func validateNarrative(r models.FinalReport, holdBandPct float64) error {
	var probSum float64
	for _, s := range r.Valuation.Scenarios {
		probSum += s.Probability
	}
	if len(r.Valuation.Scenarios) > 0 && math.Abs(probSum-1.0) > probabilityTolerance {
		return errs.New(errs.SchemaViolation, fmt.Sprintf("narrative scenario probabilities sum to %.4f, not 1.0", probSum))
	}

	switch r.Recommendation.Action {
	case "BUY", "HOLD", "SELL":
	default:
		return errs.New(errs.SchemaViolation, fmt.Sprintf("narrative recommendation action %q invalid", r.Recommendation.Action))
	}

	if r.Valuation.CurrentPrice > 0 {
		gap := (r.Valuation.FairValue - r.Valuation.CurrentPrice) / r.Valuation.CurrentPrice
		if err := checkActionConsistency(r.Recommendation.Action, gap, holdBandPct); err != nil {
			return err
		}
	}
	return nil
}

func checkActionConsistency(action string, gap, holdBandPct float64) error {
	switch {
	case gap > holdBandPct && action == "SELL":
		return errs.New(errs.SchemaViolation, fmt.Sprintf("recommendation SELL inconsistent with fair-value gap %.2f%% above HOLD band", gap*100))
	case gap < -holdBandPct && action == "BUY":
		return errs.New(errs.SchemaViolation, fmt.Sprintf("recommendation BUY inconsistent with fair-value gap %.2f%% below HOLD band", gap*100))
	}
	return nil
}
