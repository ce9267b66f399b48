// Package valuation implements the deterministic DCF kernel (spec.md
// §4.1): pure-numeric, no language-model involvement, identical inputs
// yield byte-identical outputs. Grounded on the teacher's
// pkg/core/valuation/dcf.go (discount-factor accumulation, Gordon
// growth terminal value) generalized from projection-engine output to
// the spec's flat per-year assumption vectors.
package valuation

import (
	"fmt"
	"math"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
)

// ValidateInputs enforces the invariants of spec.md §3.1/§4.1.
func ValidateInputs(in models.ValuationInputs) error {
	n := len(in.Growth)
	if n == 0 {
		return errs.New(errs.InvalidInputs, "growth vector must not be empty")
	}
	if len(in.Margin) != n || len(in.SalesToCapital) != n || len(in.WACC) != n {
		return errs.New(errs.InvalidInputs, "growth, margin, sales-to-capital, and WACC vectors must share the explicit horizon length")
	}
	if in.SharesOutstanding <= 0 {
		return errs.New(errs.InvalidInputs, "shares outstanding must be > 0")
	}
	minWACC := math.Inf(1)
	for _, w := range in.WACC {
		if w < minWACC {
			minWACC = w
		}
	}
	if in.StableGrowth >= minWACC {
		return errs.New(errs.InvalidInputs, "stable growth must be < min(WACC)")
	}
	if !finite(in.BaseRevenue) || !finite(in.StableGrowth) || !finite(in.StableMargin) ||
		!finite(in.TaxRate) || !finite(in.NetDebt) || !finite(in.Cash) || !finite(in.SharesOutstanding) {
		return errs.New(errs.InvalidInputs, "non-finite scalar input")
	}
	for i := 0; i < n; i++ {
		if !finite(in.Growth[i]) || !finite(in.Margin[i]) || !finite(in.SalesToCapital[i]) || !finite(in.WACC[i]) {
			return errs.New(errs.InvalidInputs, fmt.Sprintf("non-finite vector input at year %d", i))
		}
		if in.SalesToCapital[i] == 0 {
			return errs.New(errs.InvalidInputs, fmt.Sprintf("sales-to-capital at year %d must be nonzero", i))
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// CalculateDCF computes the deterministic value-per-share and the
// full audit series from ValuationInputs, per spec.md §4.1.
func CalculateDCF(in models.ValuationInputs) (models.ValuationResult, error) {
	if err := ValidateInputs(in); err != nil {
		return models.ValuationResult{}, err
	}

	n := len(in.Growth)
	revenue := make([]float64, n)
	ebit := make([]float64, n)
	nopat := make([]float64, n)
	reinvestment := make([]float64, n)
	fcff := make([]float64, n)
	discount := make([]float64, n)
	years := make([]int, n)

	prevRevenue := in.BaseRevenue
	cumDF := 1.0
	for t := 0; t < n; t++ {
		years[t] = t + 1
		revenue[t] = prevRevenue * (1 + in.Growth[t])
		ebit[t] = revenue[t] * in.Margin[t]
		nopat[t] = ebit[t] * (1 - in.TaxRate)
		reinvestment[t] = (revenue[t] - prevRevenue) / in.SalesToCapital[t]
		fcff[t] = nopat[t] - reinvestment[t]

		cumDF = cumDF / (1 + in.WACC[t])
		discount[t] = cumDF

		prevRevenue = revenue[t]
	}

	pvExplicit := 0.0
	for t := 0; t < n; t++ {
		pvExplicit += fcff[t] * discount[t]
	}

	terminalWACC := in.WACC[n-1]
	terminalRevenue := revenue[n-1] * (1 + in.StableGrowth)
	terminalEBIT := terminalRevenue * in.StableMargin
	terminalNOPAT := terminalEBIT * (1 - in.TaxRate)
	// Terminal reinvestment funds the stable growth rate out of the
	// final-year sales-to-capital efficiency.
	terminalReinvestment := (terminalRevenue - revenue[n-1]) / in.SalesToCapital[n-1]
	terminalFCFF := terminalNOPAT - terminalReinvestment

	tv := terminalFCFF / (terminalWACC - in.StableGrowth)
	pvTerminal := tv * discount[n-1]

	equityValue := pvExplicit + pvTerminal - in.NetDebt + in.Cash
	valuePerShare := equityValue / in.SharesOutstanding

	return models.ValuationResult{
		ValuePerShare:   valuePerShare,
		EquityValue:     equityValue,
		PVExplicit:      pvExplicit,
		PVTerminal:      pvTerminal,
		Years:           years,
		Revenue:         revenue,
		EBIT:            ebit,
		NOPAT:           nopat,
		Reinvestment:    reinvestment,
		FCFF:            fcff,
		DiscountFactors: discount,
	}, nil
}

// PVOperatingFromSeries recomputes PV of explicit-horizon FCFF purely
// from the arrays get_series returns (spec.md §8.2 round-trip law):
// it must match CalculateDCF's PVExplicit to within 1e-9 relative.
func PVOperatingFromSeries(fcff, discountFactors []float64) float64 {
	total := 0.0
	for i := range fcff {
		total += fcff[i] * discountFactors[i]
	}
	return total
}
