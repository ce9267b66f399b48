package review

import (
	"fmt"
	"math"
	"strings"

	"equity_orchestrator/internal/core/models"
)

const (
	minSectionWords  = 25
	defaultHoldBand  = 0.05
	plausibleSpreadX = 4.0 // bull/bear spread beyond 4x base fair value is implausible
)

// HeuristicCheck is the result of layer 3.
type HeuristicCheck struct {
	Findings []Finding
}

// ValidateHeuristics runs layer 3 (spec.md §4.8.3): reuses structure
// findings, adds scenario ordering sanity (bear < base < bull),
// spread-plausibility, per-section text-length floors, and
// valuation-vs-recommendation consistency against the HOLD band.
func ValidateHeuristics(r models.FinalReport, structure StructureCheck, holdBandPct float64) HeuristicCheck {
	if holdBandPct <= 0 {
		holdBandPct = defaultHoldBand
	}
	findings := append([]Finding{}, structure.Findings...)

	findings = append(findings, scenarioOrderingFindings(r.Valuation.Scenarios)...)
	findings = append(findings, sectionLengthFindings(r)...)
	findings = append(findings, consistencyFindings(r, holdBandPct)...)

	return HeuristicCheck{Findings: findings}
}

func scenarioOrderingFindings(scenarios []models.Scenario) []Finding {
	var bull, base, bear *models.Scenario
	for i := range scenarios {
		switch scenarios[i].Name {
		case "bull":
			bull = &scenarios[i]
		case "base":
			base = &scenarios[i]
		case "bear":
			bear = &scenarios[i]
		}
	}
	if bull == nil || base == nil || bear == nil {
		return nil
	}

	var findings []Finding
	if !(bear.FairValue < base.FairValue && base.FairValue < bull.FairValue) {
		findings = append(findings, Finding{SeverityHigh, "scenario fair values are not ordered bear < base < bull"})
	}
	if base.FairValue != 0 {
		spread := (bull.FairValue - bear.FairValue) / math.Abs(base.FairValue)
		if spread > plausibleSpreadX {
			findings = append(findings, Finding{SeverityMedium, fmt.Sprintf("bull/bear spread %.1fx base is implausibly wide", spread)})
		}
	}
	return findings
}

func sectionLengthFindings(r models.FinalReport) []Finding {
	var findings []Finding
	check := func(name, body string) {
		if len(strings.Fields(body)) < minSectionWords {
			findings = append(findings, Finding{SeverityMedium, fmt.Sprintf("%s is shorter than the %d-word floor", name, minSectionWords)})
		}
	}
	check("executive_summary", r.ExecutiveSummary)
	check("investment_thesis", r.InvestmentThesis)
	check("financial_analysis", r.FinancialAnalysis)
	return findings
}

// consistencyFindings flags a recommendation that contradicts the
// fair-value gap against current price, outside the HOLD band — the
// same rule the Narrative Builder's own output gate applies (spec.md
// §4.5.4), reapplied here because the Validation Pipeline must hold
// even if a later edit altered the report post-generation.
func consistencyFindings(r models.FinalReport, holdBandPct float64) []Finding {
	if r.Valuation.CurrentPrice <= 0 {
		return nil
	}
	gap := (r.Valuation.FairValue - r.Valuation.CurrentPrice) / r.Valuation.CurrentPrice
	switch {
	case gap > holdBandPct && r.Recommendation.Action == "SELL":
		return []Finding{{SeverityHigh, fmt.Sprintf("SELL inconsistent with fair-value gap %.2f%% above HOLD band", gap*100)}}
	case gap < -holdBandPct && r.Recommendation.Action == "BUY":
		return []Finding{{SeverityHigh, fmt.Sprintf("BUY inconsistent with fair-value gap %.2f%% below HOLD band", gap*100)}}
	}
	return nil
}
