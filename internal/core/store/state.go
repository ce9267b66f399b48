// Package store implements the Hierarchical State Store (spec.md §4.3):
// atomic per-analysis JSON persistence with three resolution layers
// for historical iterations. Grounded on dyike-CortexGo's
// internal/utils/config_store.go write-temp-then-rename primitive and
// the teacher's pkg/core/store/fsap_cache.go directory layout.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"equity_orchestrator/internal/core/models"
)

// AnalysisStore persists one Analysis's state under workDir/memory/<analysis_id>/.
type AnalysisStore struct {
	workDir string
}

// NewAnalysisStore creates a store rooted at workDir (spec.md §6.3:
// <work_dir>/memory/<analysis_id>/).
func NewAnalysisStore(workDir string) *AnalysisStore {
	return &AnalysisStore{workDir: workDir}
}

func (s *AnalysisStore) dir(analysisID string) string {
	return filepath.Join(s.workDir, "memory", analysisID)
}

// writeAtomic writes data to path via a temp file then os.Rename, the
// same primitive CortexGo's config_store.go uses for its config
// persistence.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}

// SaveAnalysisState writes analysis_state.json.
func (s *AnalysisStore) SaveAnalysisState(a *models.Analysis) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis state: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir(a.AnalysisID), "analysis_state.json"), data)
}

// LoadAnalysisState reads analysis_state.json.
func (s *AnalysisStore) LoadAnalysisState(analysisID string) (*models.Analysis, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(analysisID), "analysis_state.json"))
	if err != nil {
		return nil, fmt.Errorf("read analysis state: %w", err)
	}
	var a models.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal analysis state: %w", err)
	}
	return &a, nil
}

// SaveIteration writes iteration_<NN>.json.
func (s *AnalysisStore) SaveIteration(analysisID string, rec models.IterationRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal iteration record: %w", err)
	}
	name := fmt.Sprintf("iteration_%02d.json", rec.Iteration)
	return writeAtomic(filepath.Join(s.dir(analysisID), name), data)
}

// HighestPersistedIteration scans the analysis directory for the
// highest-indexed iteration file present, supporting crash recovery
// (spec.md §4.3: "resumes from the highest-indexed iteration present").
func (s *AnalysisStore) HighestPersistedIteration(analysisID string) (int, error) {
	entries, err := os.ReadDir(s.dir(analysisID))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read analysis dir: %w", err)
	}

	highest := 0
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "iteration_%02d.json", &n); err == nil {
			if n > highest {
				highest = n
			}
		}
	}
	return highest, nil
}

// LoadIteration reads a single iteration record back, allowing full
// reconstruction of history even after compression (spec.md §4.3:
// "Full history is always reconstructible by reading raw per-iteration
// files").
func (s *AnalysisStore) LoadIteration(analysisID string, iteration int) (*models.IterationRecord, error) {
	name := fmt.Sprintf("iteration_%02d.json", iteration)
	data, err := os.ReadFile(filepath.Join(s.dir(analysisID), name))
	if err != nil {
		return nil, fmt.Errorf("read iteration %d: %w", iteration, err)
	}
	var rec models.IterationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal iteration %d: %w", iteration, err)
	}
	return &rec, nil
}

// LoadAllIterations reads every persisted iteration file in order.
func (s *AnalysisStore) LoadAllIterations(analysisID string) ([]models.IterationRecord, error) {
	highest, err := s.HighestPersistedIteration(analysisID)
	if err != nil {
		return nil, err
	}
	recs := make([]models.IterationRecord, 0, highest)
	for i := 1; i <= highest; i++ {
		rec, err := s.LoadIteration(analysisID, i)
		if err != nil {
			continue // a gap is tolerated; callers rely on HighestPersistedIteration for resume
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Iteration < recs[j].Iteration })
	return recs, nil
}

// SaveValidatedHypotheses writes validated_hypotheses.json.
func (s *AnalysisStore) SaveValidatedHypotheses(analysisID string, hyps map[string]*models.Hypothesis) error {
	data, err := json.MarshalIndent(hyps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal validated hypotheses: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir(analysisID), "validated_hypotheses.json"), data)
}

// SaveEvidenceBundle writes evidence_bundle.json.
func (s *AnalysisStore) SaveEvidenceBundle(analysisID string, bundles map[string]*models.EvidenceBundle) error {
	data, err := json.MarshalIndent(bundles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal evidence bundle: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir(analysisID), "evidence_bundle.json"), data)
}

// SaveCompressedHistory writes compressed_history.json: the three-tier
// view recomputed from the full iteration history on every call. It is
// cheap and deterministic, so rather than conditionally rewriting only
// at an L1/L2 or L2/L3 boundary crossing (spec.md §4.6.2 step 7), the
// Orchestrator simply recomputes and overwrites it every iteration;
// raw per-iteration files remain the source of truth underneath it.
func (s *AnalysisStore) SaveCompressedHistory(analysisID string, h CompressedHistory) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal compressed history: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir(analysisID), "compressed_history.json"), data)
}

// SaveFinalReport writes final_report.json at terminal state.
func (s *AnalysisStore) SaveFinalReport(analysisID string, report *models.FinalReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal final report: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir(analysisID), "final_report.json"), data)
}
