package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/workerio"
)

const hypothesisSystemPrompt = `You are the Hypothesis Generator of an equity research system.
Given the company, its prior hypothesis titles, and any open research gaps, propose falsifiable
investment hypotheses. Respond with strict JSON matching:
{"hypotheses":[{"id":string,"title":string,"thesis":string,"evidence_needed":[string],"impact":"HIGH"|"MEDIUM"|"LOW"}]}`

var quantifierPattern = regexp.MustCompile(`[0-9]|%|percent|quarter|year|month`)

// HypothesisGenerator calls the Hypothesis Generator worker (spec.md
// §4.5.1) and enforces its contract beyond bare JSON-Schema validity.
type HypothesisGenerator struct {
	Manager  *Manager
	Breakers *Breakers
}

func (g *HypothesisGenerator) Generate(ctx context.Context, in HypothesisGeneratorInput) (HypothesisGeneratorOutput, error) {
	out, err := CallWithRetry(ctx, g.Breakers, "hypothesis_generator", func(ctx context.Context) (HypothesisGeneratorOutput, error) {
		return g.call(ctx, in)
	})
	if err != nil {
		return HypothesisGeneratorOutput{}, err
	}
	if err := validateHypotheses(out.Hypotheses, in.PreviousHypothesisTitles); err != nil {
		return HypothesisGeneratorOutput{}, err
	}
	return out, nil
}

func (g *HypothesisGenerator) call(ctx context.Context, in HypothesisGeneratorInput) (HypothesisGeneratorOutput, error) {
	prompt := fmt.Sprintf(
		"Company: %s (%s)\nIteration: %d\nPrevious titles: %v\nResearch gaps: %v\nEnriched context: %s",
		in.Company, in.Ticker, in.Iteration, in.PreviousHypothesisTitles, in.ResearchGaps, in.EnrichedContext,
	)

	raw, err := g.Manager.ExecutePrompt(ctx, "hypothesis_generator", prompt, hypothesisSystemPrompt, map[string]interface{}{
		"response_format": map[string]interface{}{"type": "json_object"},
	})
	if err != nil {
		return HypothesisGeneratorOutput{}, err
	}

	var out HypothesisGeneratorOutput
	if err := workerio.Decode(raw, &out); err != nil {
		return HypothesisGeneratorOutput{}, errs.Wrap(errs.SchemaViolation, "hypothesis generator output", err)
	}
	return out, nil
}

// validateHypotheses enforces spec.md §4.5.1's contract: at least five
// hypotheses, title word limits, a concrete quantifier in the thesis,
// no duplicate titles against history, no duplicate ids, valid impact.
func validateHypotheses(hyps []models.Hypothesis, previousTitles []string) error {
	if len(hyps) < 5 {
		return errs.New(errs.SchemaViolation, fmt.Sprintf("hypothesis generator returned %d hypotheses, need >= 5", len(hyps)))
	}

	seenIDs := map[string]bool{}
	seenTitles := map[string]bool{}
	for _, t := range previousTitles {
		seenTitles[t] = true
	}

	for _, h := range hyps {
		if seenIDs[h.ID] {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("duplicate hypothesis id %q", h.ID))
		}
		seenIDs[h.ID] = true

		if seenTitles[h.Title] {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("hypothesis title %q duplicates a previous hypothesis", h.Title))
		}

		if len(strings.Fields(h.Title)) > 15 {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("hypothesis title %q exceeds 15 words", h.Title))
		}

		if !quantifierPattern.MatchString(strings.ToLower(h.Thesis)) {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("hypothesis %q thesis lacks a concrete quantifier", h.ID))
		}

		switch h.Impact {
		case models.ImpactHigh, models.ImpactMedium, models.ImpactLow:
		default:
			return errs.New(errs.SchemaViolation, fmt.Sprintf("hypothesis %q has invalid impact %q", h.ID, h.Impact))
		}
	}
	return nil
}
