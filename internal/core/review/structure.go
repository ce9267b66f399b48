package review

import (
	"strings"

	"equity_orchestrator/internal/core/models"
)

// Severity tiers structure findings (spec.md §4.8.2).
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Finding is one structural defect at a given severity.
type Finding struct {
	Severity Severity
	Message  string
}

// StructureCheck is the result of layer 2.
type StructureCheck struct {
	Findings []Finding
}

// HasCritical reports whether any CRITICAL finding is present, which
// caps the final letter grade at B (spec.md §4.8.2).
func (c StructureCheck) HasCritical() bool {
	for _, f := range c.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// PointPenalty converts findings to the point deduction spec.md §4.8.2
// describes: each HIGH subtracts 3-5 points, each (MEDIUM) warning
// subtracts 1. CRITICAL does not itself subtract points; it caps the
// grade, applied by the caller.
func (c StructureCheck) PointPenalty() float64 {
	var penalty float64
	for _, f := range c.Findings {
		switch f.Severity {
		case SeverityHigh:
			penalty += 4 // midpoint of the 3-5 point range
		case SeverityMedium:
			penalty += 1
		}
	}
	return penalty
}

// ValidateStructure runs layer 2 (spec.md §4.8.2): required sections
// present, tiered by severity.
func ValidateStructure(r models.FinalReport) StructureCheck {
	var findings []Finding

	if len(r.Valuation.Scenarios) == 0 {
		findings = append(findings, Finding{SeverityCritical, "no valuation scenarios present"})
	}

	if strings.TrimSpace(r.Valuation.Methodology) == "" {
		findings = append(findings, Finding{SeverityHigh, "valuation methodology not disclosed"})
	}
	if r.Valuation.FairValue == 0 {
		findings = append(findings, Finding{SeverityHigh, "fair value not set"})
	}
	if len(r.Recommendation.EntryConditions) == 0 {
		findings = append(findings, Finding{SeverityHigh, "no entry conditions given"})
	}
	if len(r.Recommendation.ExitConditions) == 0 {
		findings = append(findings, Finding{SeverityHigh, "no exit conditions given"})
	}

	if strings.TrimSpace(r.BullBearAnalysis) == "" {
		findings = append(findings, Finding{SeverityMedium, "no explicit bull/bear section"})
	}
	if strings.TrimSpace(r.Recommendation.Action) == "" {
		findings = append(findings, Finding{SeverityMedium, "no named recommendation"})
	}

	return StructureCheck{Findings: findings}
}
