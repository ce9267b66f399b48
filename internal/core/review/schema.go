// Package review implements the four-layer Validation Pipeline (spec.md
// §4.8) applied to a FinalReport before an Analysis can reach TERMINAL.
// Layers 1-3 are cheap pre-checks grounded in the teacher's
// pkg/core/validate package's tolerance-check idiom (*Check structs
// with an IsBalanced/Passed flag); layer 4 is always required and
// delegates to the already-built agent.Evaluator in its final-report
// mode.
package review

import (
	"fmt"
	"math"

	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/workerio"
)

// SchemaCheck is the result of layer 1.
type SchemaCheck struct {
	Passed bool
	Issues []string
}

const scenarioProbabilityTolerance = 0.01

// ValidateSchema runs layer 1 (spec.md §4.8.1): field types, value
// ranges, scenario probabilities sum to 1.0, non-negative prices,
// action in the enumerated set. The jsonschema-go derived schema
// catches structural shape; the numeric/business checks below catch
// what bare JSON-Schema cannot express.
func ValidateSchema(r models.FinalReport) SchemaCheck {
	var issues []string

	if schema, err := workerio.SchemaFor[models.FinalReport](); err == nil {
		if err := workerio.Validate(schema, r); err != nil {
			issues = append(issues, fmt.Sprintf("schema: %v", err))
		}
	}

	if r.Valuation.FairValue < 0 {
		issues = append(issues, "valuation.fair_value is negative")
	}
	if r.Valuation.CurrentPrice < 0 {
		issues = append(issues, "valuation.current_price is negative")
	}

	var probSum float64
	for _, s := range r.Valuation.Scenarios {
		probSum += s.Probability
	}
	if len(r.Valuation.Scenarios) > 0 && math.Abs(probSum-1.0) > scenarioProbabilityTolerance {
		issues = append(issues, fmt.Sprintf("scenario probabilities sum to %.4f, not 1.0", probSum))
	}

	switch r.Recommendation.Action {
	case "BUY", "HOLD", "SELL":
	default:
		issues = append(issues, fmt.Sprintf("recommendation action %q not in {BUY,HOLD,SELL}", r.Recommendation.Action))
	}

	return SchemaCheck{Passed: len(issues) == 0, Issues: issues}
}
