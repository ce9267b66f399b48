package orchestrator

import (
	"fmt"

	"equity_orchestrator/internal/core/models"
)

const qualityDeltaFloor = 0.05 // 5%, spec.md §4.6.3
const flatDeltaStreak = 3

// stopDecision is the outcome of evaluating spec.md §4.6.3's five
// stopping conditions. max_iterations and budget exhaustion apply at
// any n; the other three are gated by n >= MIN_ITERATIONS.
type stopDecision struct {
	Stop   bool
	Reason string
}

// overallConfidence averages confidence across every hypothesis that
// has not been marked uncertain; an uncertain hypothesis contributes
// no signal either way rather than dragging the average down on a
// transient worker failure.
func overallConfidence(a *models.Analysis) float64 {
	var sum float64
	var n int
	for _, h := range a.Hypotheses {
		if h.Uncertain {
			continue
		}
		sum += h.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// anySynthesisOccurred reports whether at least one hypothesis has a
// synthesis history, required by the fifth stopping condition.
func anySynthesisOccurred(a *models.Analysis) bool {
	for _, recs := range a.Synthesis {
		if len(recs) > 0 {
			return true
		}
	}
	return false
}

// flatQualityStreak reports whether the last flatDeltaStreak
// iterations all changed quality_score by less than qualityDeltaFloor
// in absolute terms.
func flatQualityStreak(iterations []models.IterationRecord) bool {
	if len(iterations) < flatDeltaStreak+1 {
		return false
	}
	tail := iterations[len(iterations)-flatDeltaStreak-1:]
	for i := 1; i < len(tail); i++ {
		delta := tail[i].QualityScore - tail[i-1].QualityScore
		if delta < 0 {
			delta = -delta
		}
		if delta >= qualityDeltaFloor {
			return false
		}
	}
	return true
}

// evaluateStop checks every stopping condition in spec.md §4.6.3.
// budgetExhausted is supplied by the Cost/Budget Governor (C9).
func evaluateStop(a *models.Analysis, n int, budgetExhausted bool) stopDecision {
	policy := a.Config

	if n >= policy.MaxIterations {
		return stopDecision{true, fmt.Sprintf("reached max_iterations=%d", policy.MaxIterations)}
	}
	if budgetExhausted {
		return stopDecision{true, "budget governor declared exhaustion"}
	}
	if n < policy.MinIterations {
		return stopDecision{false, ""}
	}

	if c := overallConfidence(a); c >= policy.ConfidenceStop {
		return stopDecision{true, fmt.Sprintf("overall_confidence %.3f >= confidence_stop %.3f", c, policy.ConfidenceStop)}
	}
	if flatQualityStreak(a.Iterations) {
		return stopDecision{true, fmt.Sprintf("quality_score delta stayed below %.0f%% for %d iterations", qualityDeltaFloor*100, flatDeltaStreak)}
	}
	if noHypothesisBelowStop(a, policy.ConfidenceStop) && anySynthesisOccurred(a) {
		return stopDecision{true, "no hypothesis remains below confidence_stop and synthesis has occurred"}
	}

	return stopDecision{false, ""}
}

func noHypothesisBelowStop(a *models.Analysis, confidenceStop float64) bool {
	if len(a.Hypotheses) == 0 {
		return false
	}
	for _, h := range a.Hypotheses {
		if h.Confidence < confidenceStop {
			return false
		}
	}
	return true
}
