package store

import "equity_orchestrator/internal/core/models"

// Three resolution tiers over iteration history (spec.md §4.3): the
// most recent iterations stay fully resolved (L1), a middle band is
// compressed to a few scalar fields (L2), and everything older than
// that collapses into one running summary (L3). Raw per-iteration
// files on disk are never deleted, so full history is always
// reconstructible via LoadAllIterations regardless of which tier the
// in-memory view presents.
const (
	// L1Depth is how many of the most recent iterations stay fully
	// resolved.
	L1Depth = 3
	// L2Depth is how many iterations below the L1 window are kept in
	// compressed (not summarized) form. With L1Depth=3 this puts L3's
	// start at the 11th-most-recent iteration (spec.md §4.3: L2 spans
	// iterations 4..10, L3 begins at iteration >= 11).
	L2Depth = 7
)

// CompressedIteration is the L2 view of an iteration: enough to judge
// the trajectory without the full hypothesis/evidence payload.
type CompressedIteration struct {
	Iteration  int     `json:"iteration"`
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality_score"`
	CostUSD    float64 `json:"cost_usd"`
	Resolution string  `json:"resolution"`
}

// SummaryTier is the L3 view: a single running aggregate over every
// iteration older than the L1+L2 window.
type SummaryTier struct {
	IterationCount  int     `json:"iteration_count"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	FinalConfidence float64 `json:"final_confidence"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	LastIteration   int     `json:"last_iteration"`
}

// CompressedHistory is the tiered view of the raw, unbounded iteration
// list that the Orchestrator writes to compressed_history.json after
// each iteration. Stop-criteria evaluation reads the full iteration
// list, not this view.
type CompressedHistory struct {
	L1 []models.IterationRecord `json:"l1_full"`
	L2 []CompressedIteration    `json:"l2_compressed"`
	L3 *SummaryTier             `json:"l3_summary,omitempty"`
}

// Compress partitions a chronologically-sorted iteration history into
// the three tiers. recs must already be sorted ascending by Iteration,
// as LoadAllIterations returns them.
func Compress(recs []models.IterationRecord) CompressedHistory {
	n := len(recs)
	if n == 0 {
		return CompressedHistory{}
	}

	l1Start := n - L1Depth
	if l1Start < 0 {
		l1Start = 0
	}
	l2Start := l1Start - L2Depth
	if l2Start < 0 {
		l2Start = 0
	}

	hist := CompressedHistory{
		L1: append([]models.IterationRecord(nil), recs[l1Start:]...),
	}

	for _, r := range recs[l2Start:l1Start] {
		hist.L2 = append(hist.L2, CompressedIteration{
			Iteration:  r.Iteration,
			Confidence: r.Confidence,
			Quality:    r.QualityScore,
			CostUSD:    r.CostUSD,
			Resolution: r.Resolution,
		})
	}

	if l2Start > 0 {
		older := recs[:l2Start]
		summary := &SummaryTier{
			IterationCount: len(older),
			LastIteration:  older[len(older)-1].Iteration,
		}
		var qualitySum float64
		for _, r := range older {
			summary.TotalCostUSD += r.CostUSD
			qualitySum += r.QualityScore
			summary.FinalConfidence = r.Confidence
		}
		summary.AvgQualityScore = qualitySum / float64(len(older))
		hist.L3 = summary
	}

	return hist
}

// TotalCost sums cost across all three tiers without materializing the
// full raw history.
func (h CompressedHistory) TotalCost() float64 {
	var total float64
	if h.L3 != nil {
		total += h.L3.TotalCostUSD
	}
	for _, c := range h.L2 {
		total += c.CostUSD
	}
	for _, r := range h.L1 {
		total += r.CostUSD
	}
	return total
}
