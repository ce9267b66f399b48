package review

import (
	"context"
	"fmt"

	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/models"
)

// finalCriteria names the six rubric dimensions spec.md §4.8.4 assigns
// to the Evaluator's 100-point letter-grade pass.
var finalCriteria = map[string]float64{
	"decision_readiness": 0,
	"data_quality":       0,
	"investment_thesis":  0,
	"financial_analysis": 0,
	"risk_assessment":    0,
	"presentation":       0,
	"threshold":          0.6, // a score of 0.60 (D on letterGrade's scale) and above passes; callers may override
}

// Result is the outcome of running all four layers against a
// FinalReport.
type Result struct {
	Schema      SchemaCheck
	Structure   StructureCheck
	Heuristic   HeuristicCheck
	Evaluation  agent.EvaluatorOutput
	Grade       string
	Score       float64
	Passed      bool
}

// Pipeline runs the four validation layers in order (spec.md §4.8).
// Layers 1-3 are pre-checks; layer 4 (the Evaluator worker in final
// mode) is always required and is authoritative for Passed.
type Pipeline struct {
	Evaluator *agent.Evaluator
}

func NewPipeline(evaluator *agent.Evaluator) *Pipeline {
	return &Pipeline{Evaluator: evaluator}
}

func (p *Pipeline) Run(ctx context.Context, r models.FinalReport, passThreshold float64) (Result, error) {
	schema := ValidateSchema(r)
	structure := ValidateStructure(r)
	heuristic := ValidateHeuristics(r, structure, defaultHoldBand)

	criteria := make(map[string]float64, len(finalCriteria))
	for k, v := range finalCriteria {
		criteria[k] = v
	}
	if passThreshold > 0 {
		criteria["threshold"] = passThreshold
	}

	evalOut, err := p.Evaluator.Evaluate(ctx, agent.EvaluatorInput{
		EvaluationType: agent.EvaluationFinal,
		Output:         r,
		Criteria:       criteria,
	})
	if err != nil {
		return Result{}, fmt.Errorf("final evaluation: %w", err)
	}

	score := evalOut.OverallScore - pointPenaltyFraction(structure)
	if score < 0 {
		score = 0
	}

	grade := letterGrade(score)
	if structure.HasCritical() {
		grade = capAtB(grade)
	}

	return Result{
		Schema:     schema,
		Structure:  structure,
		Heuristic:  heuristic,
		Evaluation: evalOut,
		Grade:      grade,
		Score:      score,
		Passed:     schema.Passed && evalOut.Passed,
	}, nil
}

// pointPenaltyFraction converts structure.PointPenalty()'s 100-point
// deduction into the Evaluator's [0,1] score scale.
func pointPenaltyFraction(s StructureCheck) float64 {
	return s.PointPenalty() / 100.0
}

func letterGrade(score float64) string {
	switch {
	case score >= 0.93:
		return "A"
	case score >= 0.90:
		return "A-"
	case score >= 0.87:
		return "B+"
	case score >= 0.83:
		return "B"
	case score >= 0.80:
		return "B-"
	case score >= 0.77:
		return "C+"
	case score >= 0.70:
		return "C"
	case score >= 0.60:
		return "D"
	default:
		return "F"
	}
}

var gradeOrder = []string{"F", "D", "C", "C+", "B-", "B", "B+", "A-", "A"}

func gradeRank(g string) int {
	for i, v := range gradeOrder {
		if v == g {
			return i
		}
	}
	return 0
}

// capAtB caps a grade better than B down to B when a CRITICAL finding
// is present (spec.md §4.8.2), leaving grades already at or below B
// untouched.
func capAtB(g string) string {
	if gradeRank(g) > gradeRank("B") {
		return "B"
	}
	return g
}
