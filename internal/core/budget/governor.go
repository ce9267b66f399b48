// Package budget implements the Cost/Budget Governor (spec.md §4.9):
// it watches cumulative spend recorded in the Reasoning Trace and, when
// projected total cost exceeds the configured budget, degrades the
// running PolicyConfig by one level. It never touches a worker's
// output, only the knobs that govern how much further work the
// Orchestrator schedules.
package budget

import (
	"fmt"

	"equity_orchestrator/internal/core/models"
)

// Governor tracks one Analysis's budget ceiling.
type Governor struct {
	BudgetUSD float64
}

// NewGovernor returns a Governor with no ceiling when budgetUSD <= 0
// (an unbounded-cost configuration, e.g. local development).
func NewGovernor(budgetUSD float64) *Governor {
	return &Governor{BudgetUSD: budgetUSD}
}

// ProjectedTotal extrapolates total cost to completion per spec.md
// §4.9: current_cost * (MAX_ITERATIONS / n).
func (g *Governor) ProjectedTotal(currentCostUSD float64, n, maxIterations int) float64 {
	if n <= 0 {
		return currentCostUSD
	}
	return currentCostUSD * (float64(maxIterations) / float64(n))
}

// Exhausted reports whether the governor has no budget ceiling left to
// give: the ceiling is set and a projection already exceeds it even
// after degradation has bottomed out (every degradable knob at its
// floor). The Orchestrator's stop check (spec.md §4.6.3) treats this as
// one of the five stopping conditions.
func (g *Governor) Exhausted(currentCostUSD float64, n, maxIterations int, policy models.PolicyConfig) bool {
	if g.BudgetUSD <= 0 {
		return false
	}
	if g.ProjectedTotal(currentCostUSD, n, maxIterations) <= g.BudgetUSD {
		return false
	}
	return atFloor(policy)
}

func atFloor(p models.PolicyConfig) bool {
	return p.TopKForSynthesis <= 1 && p.ParallelResearch <= 1 && p.MaxIterations <= p.MinIterations
}

// CheckAndDegrade projects total spend and, if the projection exceeds
// BudgetUSD, degrades policy by one level in place: fewer checkpoints,
// lower TOP_K_FOR_SYNTHESIS, less research parallelism, a lower
// iteration ceiling. Each degradation is reported so the Orchestrator
// can log it to the trace (spec.md §4.9: "Governor decisions are logged
// to the trace").
func (g *Governor) CheckAndDegrade(policy *models.PolicyConfig, currentCostUSD float64, n int) (degraded bool, reason string) {
	if g.BudgetUSD <= 0 {
		return false, ""
	}
	projected := g.ProjectedTotal(currentCostUSD, n, policy.MaxIterations)
	if projected <= g.BudgetUSD {
		return false, ""
	}

	before := *policy
	if len(policy.Checkpoints) > 1 {
		policy.Checkpoints = policy.Checkpoints[:len(policy.Checkpoints)-1]
	}
	if policy.TopKForSynthesis > 1 {
		policy.TopKForSynthesis--
	}
	if policy.ParallelResearch > 1 {
		policy.ParallelResearch--
	}
	if policy.MaxIterations > policy.MinIterations {
		policy.MaxIterations--
	}

	reason = fmt.Sprintf(
		"projected cost %.2f exceeds budget %.2f at iteration %d: degraded checkpoints %v->%v, top_k %d->%d, parallel_research %d->%d, max_iterations %d->%d",
		projected, g.BudgetUSD, n, before.Checkpoints, policy.Checkpoints, before.TopKForSynthesis, policy.TopKForSynthesis,
		before.ParallelResearch, policy.ParallelResearch, before.MaxIterations, policy.MaxIterations,
	)
	return true, reason
}
