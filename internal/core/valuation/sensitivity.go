package valuation

import (
	"equity_orchestrator/internal/core/models"
)

// ScanPoint is one value scanned for a sensitivity variable.
type ScanPoint struct {
	Value float64 `json:"value"`
	VPS   float64 `json:"vps"`
	PctChange float64 `json:"pct_change"`
}

// Grid enumerates per-variable scan points for sensitivity_analysis
// (spec.md §4.2).
type Grid struct {
	StableGrowth []float64 `json:"stable_growth"`
	StableMargin []float64 `json:"stable_margin"`
	WACC         []float64 `json:"wacc"` // scanned as a uniform shift applied to every year's WACC entry
}

// SensitivityResult is the output of sensitivity_analysis.
type SensitivityResult struct {
	BaseVPS       float64                `json:"base_vps"`
	StableGrowth  []ScanPoint            `json:"stable_growth"`
	StableMargin  []ScanPoint            `json:"stable_margin"`
	WACC          []ScanPoint            `json:"wacc"`
}

// RunSensitivity computes base_vps = CalculateDCF(inputs).value_per_share
// and scans each grid variable, holding the others fixed at the base
// case, per spec.md §4.2's invariant. Scan points come back in the
// order of the caller-supplied Grid; they are not sorted. For an
// ascending stable_growth grid over realistic inputs, VPS is returned
// non-decreasing (spec.md §8.1 property 6).
func RunSensitivity(in models.ValuationInputs, grid Grid) (SensitivityResult, error) {
	base, err := CalculateDCF(in)
	if err != nil {
		return SensitivityResult{}, err
	}

	result := SensitivityResult{BaseVPS: base.ValuePerShare}

	for _, g := range grid.StableGrowth {
		variant := in
		variant.StableGrowth = g
		r, err := CalculateDCF(variant)
		if err != nil {
			continue
		}
		result.StableGrowth = append(result.StableGrowth, scanPoint(g, r.ValuePerShare, base.ValuePerShare))
	}

	for _, m := range grid.StableMargin {
		variant := in
		variant.StableMargin = m
		r, err := CalculateDCF(variant)
		if err != nil {
			continue
		}
		result.StableMargin = append(result.StableMargin, scanPoint(m, r.ValuePerShare, base.ValuePerShare))
	}

	for _, w := range grid.WACC {
		variant := in
		shiftedWACC := make([]float64, len(in.WACC))
		for i, orig := range in.WACC {
			shiftedWACC[i] = orig + (w - in.WACC[len(in.WACC)-1])
		}
		variant.WACC = shiftedWACC
		r, err := CalculateDCF(variant)
		if err != nil {
			continue
		}
		result.WACC = append(result.WACC, scanPoint(w, r.ValuePerShare, base.ValuePerShare))
	}

	return result, nil
}

func scanPoint(value, vps, baseVPS float64) ScanPoint {
	pct := 0.0
	if baseVPS != 0 {
		pct = (vps - baseVPS) / baseVPS
	}
	return ScanPoint{Value: value, VPS: vps, PctChange: pct}
}
