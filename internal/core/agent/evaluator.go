package agent

import (
	"context"
	"fmt"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/workerio"
)

const evaluatorSystemPrompt = `You are the Evaluator. Score the given output against the named criteria dimensions.
Respond with strict JSON matching:
{"overall_score":number,"dimensions":{"<name>":number},"passed":bool,"issues":[string],"recommendations":[string]}`

// Evaluator calls the Evaluator worker (spec.md §4.5.5), used both for
// per-iteration scoring and the final 100-point rubric (§4.8 layer 4).
type Evaluator struct {
	Manager  *Manager
	Breakers *Breakers
}

func (a *Evaluator) Evaluate(ctx context.Context, in EvaluatorInput) (EvaluatorOutput, error) {
	out, err := CallWithRetry(ctx, a.Breakers, "evaluator", func(ctx context.Context) (EvaluatorOutput, error) {
		return a.call(ctx, in)
	})
	if err != nil {
		return EvaluatorOutput{}, err
	}
	if err := validateEvaluation(out, in); err != nil {
		return EvaluatorOutput{}, err
	}
	return out, nil
}

func (a *Evaluator) call(ctx context.Context, in EvaluatorInput) (EvaluatorOutput, error) {
	prompt := fmt.Sprintf("Evaluation type: %s\nCriteria: %v\nOutput: %+v", in.EvaluationType, in.Criteria, in.Output)

	raw, err := a.Manager.ExecutePrompt(ctx, "evaluator", prompt, evaluatorSystemPrompt, map[string]interface{}{
		"response_format": map[string]interface{}{"type": "json_object"},
	})
	if err != nil {
		return EvaluatorOutput{}, err
	}

	var out EvaluatorOutput
	if err := workerio.Decode(raw, &out); err != nil {
		return EvaluatorOutput{}, errs.Wrap(errs.SchemaViolation, "evaluator output", err)
	}
	return out, nil
}

// validateEvaluation enforces spec.md §4.5.5: every criteria dimension
// named must appear in the output, and passed must track the supplied
// threshold exactly.
func validateEvaluation(out EvaluatorOutput, in EvaluatorInput) error {
	threshold, hasThreshold := in.Criteria["threshold"]
	for name := range in.Criteria {
		if name == "threshold" {
			continue
		}
		if _, ok := out.Dimensions[name]; !ok {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("evaluator output missing required dimension %q", name))
		}
	}
	if hasThreshold {
		expectedPass := out.OverallScore >= threshold
		if out.Passed != expectedPass {
			return errs.New(errs.SchemaViolation, fmt.Sprintf("evaluator passed=%v inconsistent with overall_score=%.3f vs threshold=%.3f", out.Passed, out.OverallScore, threshold))
		}
	}
	return nil
}
