// Package diagnostics computes deterministic financial health checks
// over a pair of reporting periods: growth, margin/return ratios,
// balance and cash-flow identity checks, outlier detection, and the
// Altman Z / Beneish M risk scores. It is a Deep Research Agent
// evidence source (spec.md §4.5.2): a SourceDescriptor of source_type
// "diagnostic" can carry a Report's JSON, and ToEvidence turns the
// flagged findings directly into models.EvidenceItem values the
// Orchestrator can merge without another LLM round trip.
//
// Grounded on pkg/core/validate/validate.go's YoY/CAGR/BalanceCheck/
// CashFlowCheck/Outlier functions and pkg/core/calc/three_level.go's
// DuPont decomposition and Altman Z / Beneish M scores, generalized
// away from the teacher's edgar.FSAPDataResponse input toward a flat
// Period struct any structured-extraction source can populate.
package diagnostics

import (
	"fmt"
	"math"

	"equity_orchestrator/internal/core/models"
)

// Period is one reporting period's flat financial facts. Zero-valued
// fields are tolerated throughout: ratios divide through safeDiv,
// which returns 0 rather than panicking or producing NaN/Inf on a zero
// denominator. Growth rates are the exception: CalculateYoY returns
// +Inf for growth from a zero prior, and that value is carried into
// the growth report as is.
type Period struct {
	Label string

	Revenue         float64
	GrossProfit     float64
	OperatingIncome float64
	NetIncome       float64
	EPS             float64
	SGA             float64
	Depreciation    float64

	CFO             float64
	CFI             float64
	CFF             float64
	NetChangeInCash float64
	CapEx           float64

	TotalAssets        float64
	TotalLiabilities   float64
	TotalEquity        float64
	CurrentAssets      float64
	CurrentLiabilities float64
	Inventory          float64
	Receivables        float64
	Cash               float64
	PPE                float64
	RetainedEarnings   float64
	LongTermDebt       float64
	ShortTermDebt      float64
	InterestExpense    float64
	IncomeTaxExpense   float64
	IncomeBeforeTax    float64
	SharesOutstanding  float64
	SharePrice         float64
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// CalculateYoY returns the percentage change (current-prior)/prior*100.
// A zero prior with a non-zero current is reported as +Inf, matching
// the teacher's treatment of "growth from zero" as unbounded rather
// than undefined.
func CalculateYoY(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return (current - prior) / prior * 100
}

// CalculateCAGR returns the compound annual growth rate, as a
// percentage, over the given whole number of years.
func CalculateCAGR(startValue, endValue float64, years int) float64 {
	if startValue <= 0 || years <= 0 {
		return 0
	}
	return (math.Pow(endValue/startValue, 1.0/float64(years)) - 1) * 100
}

// CalculateFCF computes Free Cash Flow = CFO + CapEx (CapEx carried
// as a negative outflow, matching the teacher's sign convention).
func CalculateFCF(cfo, capex float64) float64 {
	return cfo + capex
}

// GrowthReport is the Level 1 (momentum) view: YoY change on the
// headline income-statement and free-cash-flow lines.
type GrowthReport struct {
	RevenueGrowthPct         float64 `json:"revenue_growth_pct"`
	OperatingIncomeGrowthPct float64 `json:"operating_income_growth_pct"`
	NetIncomeGrowthPct       float64 `json:"net_income_growth_pct"`
	EPSGrowthPct             float64 `json:"eps_growth_pct"`
	FCFGrowthPct             float64 `json:"fcf_growth_pct"`
}

func computeGrowth(current, prior Period) GrowthReport {
	currentFCF := CalculateFCF(current.CFO, current.CapEx)
	priorFCF := CalculateFCF(prior.CFO, prior.CapEx)
	return GrowthReport{
		RevenueGrowthPct:         CalculateYoY(current.Revenue, prior.Revenue),
		OperatingIncomeGrowthPct: CalculateYoY(current.OperatingIncome, prior.OperatingIncome),
		NetIncomeGrowthPct:       CalculateYoY(current.NetIncome, prior.NetIncome),
		EPSGrowthPct:             CalculateYoY(current.EPS, prior.EPS),
		FCFGrowthPct:             CalculateYoY(currentFCF, priorFCF),
	}
}

// RatioReport is the Level 2 (DuPont) view: margins, turnover and the
// three-factor ROE decomposition for the current period, averaging
// balance-sheet bases against the prior period where one is supplied.
type RatioReport struct {
	GrossMargin       float64 `json:"gross_margin"`
	OperatingMargin   float64 `json:"operating_margin"`
	NetMargin         float64 `json:"net_margin"`
	AssetTurnover     float64 `json:"asset_turnover"`
	FinancialLeverage float64 `json:"financial_leverage"`
	ROA               float64 `json:"roa"`
	ROE               float64 `json:"roe"`
	ROIC              float64 `json:"roic"`
}

func computeRatios(current Period, prior *Period) RatioReport {
	avgAssets := current.TotalAssets
	avgEquity := current.TotalEquity
	if prior != nil {
		avgAssets = (current.TotalAssets + prior.TotalAssets) / 2
		avgEquity = (current.TotalEquity + prior.TotalEquity) / 2
	}

	r := RatioReport{
		GrossMargin:       safeDiv(current.GrossProfit, current.Revenue),
		OperatingMargin:   safeDiv(current.OperatingIncome, current.Revenue),
		NetMargin:         safeDiv(current.NetIncome, current.Revenue),
		AssetTurnover:     safeDiv(current.Revenue, avgAssets),
		FinancialLeverage: safeDiv(avgAssets, avgEquity),
	}
	r.ROA = r.NetMargin * r.AssetTurnover
	r.ROE = r.ROA * r.FinancialLeverage

	effectiveTaxRate := effectiveTaxRate(current)
	nopat := current.OperatingIncome * (1 - effectiveTaxRate)
	debt := current.LongTermDebt + current.ShortTermDebt
	investedCapital := avgEquity + debt - current.Cash
	r.ROIC = safeDiv(nopat, investedCapital)
	return r
}

func effectiveTaxRate(p Period) float64 {
	rate := 0.21
	if p.IncomeBeforeTax != 0 {
		rate = math.Abs(p.IncomeTaxExpense / p.IncomeBeforeTax)
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 0.4 {
		rate = 0.4
	}
	return rate
}

// BalanceCheck is the result of verifying Assets = Liabilities + Equity.
type BalanceCheck struct {
	ComputedAssets float64 `json:"computed_assets"`
	Difference     float64 `json:"difference"`
	IsBalanced     bool    `json:"is_balanced"`
	Tolerance      float64 `json:"tolerance"`
}

// CheckBalanceEquation validates A = L + E within tolerance.
func CheckBalanceEquation(assets, liabilities, equity, tolerance float64) BalanceCheck {
	computed := liabilities + equity
	diff := assets - computed
	return BalanceCheck{
		ComputedAssets: computed,
		Difference:     diff,
		IsBalanced:     math.Abs(diff) <= tolerance,
		Tolerance:      tolerance,
	}
}

// CashFlowCheck is the result of verifying CFO + CFI + CFF = Net
// Change in Cash.
type CashFlowCheck struct {
	ComputedTotal float64 `json:"computed_total"`
	Difference    float64 `json:"difference"`
	IsBalanced    bool    `json:"is_balanced"`
	Tolerance     float64 `json:"tolerance"`
}

// CheckCashFlowEquation validates CFO + CFI + CFF = reported net change.
func CheckCashFlowEquation(cfo, cfi, cff, reportedNetChange, tolerance float64) CashFlowCheck {
	computed := cfo + cfi + cff
	diff := reportedNetChange - computed
	return CashFlowCheck{
		ComputedTotal: computed,
		Difference:    diff,
		IsBalanced:    math.Abs(diff) <= tolerance,
		Tolerance:     tolerance,
	}
}

// OutlierCheck flags a suspicious period-over-period change in a
// single named line item.
type OutlierCheck struct {
	Item      string  `json:"item"`
	ChangePct float64 `json:"change_pct"`
	IsOutlier bool    `json:"is_outlier"`
	Reason    string  `json:"reason,omitempty"`
	Threshold float64 `json:"threshold"`
}

// CheckForOutlier flags current vs prior as suspicious when it drops
// to zero from a non-zero base, or moves beyond thresholdPct.
func CheckForOutlier(item string, current, prior, thresholdPct float64) OutlierCheck {
	changePct := CalculateYoY(current, prior)
	check := OutlierCheck{Item: item, ChangePct: changePct, Threshold: thresholdPct}

	if current == 0 && prior > 0 {
		check.IsOutlier = true
		check.Reason = "value dropped to zero, likely an extraction error"
		return check
	}
	if math.Abs(changePct) > thresholdPct {
		check.IsOutlier = true
		check.Reason = fmt.Sprintf("change of %.1f%% exceeds threshold of %.1f%%", changePct, thresholdPct)
	}
	return check
}

// RiskReport is the Level 3 view: liquidity, leverage, and the two
// fraud-risk scores.
type RiskReport struct {
	CurrentRatio     float64        `json:"current_ratio"`
	QuickRatio       float64        `json:"quick_ratio"`
	DebtToEquity     float64        `json:"debt_to_equity"`
	InterestCoverage float64        `json:"interest_coverage"`
	AltmanZScore     float64        `json:"altman_z_score"`
	BeneishMScore    *BeneishResult `json:"beneish_m_score,omitempty"`
}

// AltmanZScore computes the manufacturing-model Z-Score. marketValueEquity
// falls back to book equity when shares outstanding or share price are
// unavailable, matching the teacher's fallback.
func AltmanZScore(p Period, marketValueEquity float64) float64 {
	if p.TotalAssets == 0 || p.TotalLiabilities == 0 {
		return 0
	}
	wc := p.CurrentAssets - p.CurrentLiabilities
	mve := marketValueEquity
	if mve == 0 {
		mve = p.TotalEquity
	}
	a := wc / p.TotalAssets
	b := p.RetainedEarnings / p.TotalAssets
	c := p.OperatingIncome / p.TotalAssets
	d := mve / p.TotalLiabilities
	e := p.Revenue / p.TotalAssets
	return 1.2*a + 1.4*b + 3.3*c + 0.6*d + 1.0*e
}

// BeneishResult holds the 8 Beneish M-Score variables and the final
// score. Score > -1.78 is conventionally read as "earnings
// manipulation likely".
type BeneishResult struct {
	DSRI  float64 `json:"dsri"`
	GMI   float64 `json:"gmi"`
	AQI   float64 `json:"aqi"`
	SGI   float64 `json:"sgi"`
	DEPI  float64 `json:"depi"`
	SGAI  float64 `json:"sgai"`
	LVGI  float64 `json:"lvgi"`
	TATA  float64 `json:"tata"`
	Score float64 `json:"score"`
	Risk  string  `json:"risk"`
}

// CalculateBeneishMScore computes the 8-variable M-Score from two
// periods' flat facts.
func CalculateBeneishMScore(current, prior Period) BeneishResult {
	dsri := safeDiv(safeDiv(current.Receivables, current.Revenue), safeDiv(prior.Receivables, prior.Revenue))

	gmCurr := safeDiv(current.GrossProfit, current.Revenue)
	gmPrior := safeDiv(prior.GrossProfit, prior.Revenue)
	gmi := safeDiv(gmPrior, gmCurr)

	softAssetsRatio := func(p Period) float64 {
		if p.TotalAssets == 0 {
			return 0
		}
		return 1.0 - ((p.CurrentAssets + p.PPE) / p.TotalAssets)
	}
	aqi := safeDiv(softAssetsRatio(current), softAssetsRatio(prior))

	sgi := safeDiv(current.Revenue, prior.Revenue)

	depRate := func(p Period) float64 {
		return safeDiv(p.Depreciation, p.PPE+p.Depreciation)
	}
	depi := safeDiv(depRate(prior), depRate(current))

	sgaRatio := func(p Period) float64 {
		return safeDiv(p.SGA, p.Revenue)
	}
	sgai := safeDiv(sgaRatio(current), sgaRatio(prior))

	leverage := func(p Period) float64 {
		return safeDiv(p.TotalLiabilities, p.TotalAssets)
	}
	lvgi := safeDiv(leverage(current), leverage(prior))

	tata := safeDiv(current.NetIncome-current.CFO, current.TotalAssets)

	score := -4.84 +
		0.920*dsri +
		0.528*gmi +
		0.404*aqi +
		0.892*sgi +
		0.115*depi -
		0.172*sgai +
		4.679*tata -
		0.327*lvgi

	risk := "low probability"
	if score > -1.78 {
		risk = "high probability"
	}

	return BeneishResult{
		DSRI: dsri, GMI: gmi, AQI: aqi, SGI: sgi,
		DEPI: depi, SGAI: sgai, LVGI: lvgi, TATA: tata,
		Score: score, Risk: risk,
	}
}

func computeRisk(current, prior Period, marketValueEquity float64) RiskReport {
	interestCoverage := safeDiv(current.OperatingIncome, math.Abs(current.InterestExpense))
	beneish := CalculateBeneishMScore(current, prior)
	return RiskReport{
		CurrentRatio:     safeDiv(current.CurrentAssets, current.CurrentLiabilities),
		QuickRatio:       safeDiv(current.CurrentAssets-current.Inventory, current.CurrentLiabilities),
		DebtToEquity:     safeDiv(current.LongTermDebt+current.ShortTermDebt, current.TotalEquity),
		InterestCoverage: interestCoverage,
		AltmanZScore:     AltmanZScore(current, marketValueEquity),
		BeneishMScore:    &beneish,
	}
}

// Report bundles the three diagnostic levels plus the two identity
// checks for one current/prior period pair.
type Report struct {
	Growth   GrowthReport   `json:"growth"`
	Ratios   RatioReport    `json:"ratios"`
	Risk     RiskReport     `json:"risk"`
	Balance  BalanceCheck   `json:"balance"`
	CashFlow CashFlowCheck  `json:"cash_flow"`
	Outliers []OutlierCheck `json:"outliers"`
}

// Run computes the full diagnostic report for current against prior.
// marketValueEquity is shares outstanding times share price; pass 0
// to fall back to book equity. outlierThresholdPct gates CheckForOutlier
// across the headline lines checked by default (Revenue, NetIncome,
// CFO); 50 is a reasonable default absent a sharper policy.
func Run(current, prior Period, marketValueEquity, outlierThresholdPct float64) Report {
	outliers := []OutlierCheck{
		CheckForOutlier("revenue", current.Revenue, prior.Revenue, outlierThresholdPct),
		CheckForOutlier("net_income", current.NetIncome, prior.NetIncome, outlierThresholdPct),
		CheckForOutlier("cfo", current.CFO, prior.CFO, outlierThresholdPct),
	}

	return Report{
		Growth:   computeGrowth(current, prior),
		Ratios:   computeRatios(current, &prior),
		Risk:     computeRisk(current, prior, marketValueEquity),
		Balance:  CheckBalanceEquation(current.TotalAssets, current.TotalLiabilities, current.TotalEquity, current.TotalAssets*0.01),
		CashFlow: CheckCashFlowEquation(current.CFO, current.CFI, current.CFF, current.NetChangeInCash, math.Abs(current.NetChangeInCash)*0.01+1),
		Outliers: outliers,
	}
}

// ToEvidence turns a Report's flagged findings into evidence items for
// one hypothesis, always including the headline revenue-growth trend
// as a baseline claim and adding one item per integrity or risk signal
// that actually fired. IDs are placeholders ("diag-N"); the
// Orchestrator's merge step reassigns permanent ids the same way it
// does for Deep Research Agent output, so callers never need these to
// be globally unique. sourceRef identifies the period pair analyzed
// (e.g. "FY2024 vs FY2023 10-K").
func ToEvidence(r Report, hypothesisID, sourceRef string) []models.EvidenceItem {
	var items []models.EvidenceItem

	growthDirection := "unclear"
	switch {
	case r.Growth.RevenueGrowthPct > 0:
		growthDirection = "+"
	case r.Growth.RevenueGrowthPct < 0:
		growthDirection = "-"
	}

	add := func(claim string, confidence float64, direction string) {
		items = append(items, models.EvidenceItem{
			ID:              fmt.Sprintf("diag-%d", len(items)+1),
			HypothesisID:    hypothesisID,
			Claim:           claim,
			SourceType:      "diagnostic",
			SourceReference: sourceRef,
			Confidence:      confidence,
			ImpactDirection: direction,
		})
	}

	add(fmt.Sprintf("revenue grew %.1f%% year over year", r.Growth.RevenueGrowthPct), 0.9, growthDirection)

	if !r.Balance.IsBalanced {
		add(fmt.Sprintf("balance sheet fails to reconcile: assets differ from liabilities+equity by %.2f", r.Balance.Difference), 0.95, "unclear")
	}
	if !r.CashFlow.IsBalanced {
		add(fmt.Sprintf("cash flow statement fails to reconcile: CFO+CFI+CFF differs from reported net change by %.2f", r.CashFlow.Difference), 0.9, "unclear")
	}
	for _, o := range r.Outliers {
		if o.IsOutlier {
			add(fmt.Sprintf("%s shows an anomalous period-over-period change: %s", o.Item, o.Reason), 0.7, "-")
		}
	}
	if r.Risk.BeneishMScore != nil && r.Risk.BeneishMScore.Risk == "high probability" {
		add(fmt.Sprintf("Beneish M-Score of %.2f indicates elevated earnings manipulation risk", r.Risk.BeneishMScore.Score), 0.6, "-")
	}
	if r.Risk.AltmanZScore > 0 && r.Risk.AltmanZScore < 1.81 {
		add(fmt.Sprintf("Altman Z-Score of %.2f falls in the distress zone", r.Risk.AltmanZScore), 0.7, "-")
	}

	return items
}
