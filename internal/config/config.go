// Package config loads process configuration: environment variables
// via .env (spec.md §6.3's API keys and work_dir override) and the
// Orchestrator's iteration/checkpoint policy from a YAML file carrying
// the two named presets of spec.md §9 Open Questions. Grounded on
// cmd/api/main.go's godotenv.Load() + yaml.Unmarshal(..., &agent.Config)
// pattern, generalized from the teacher's single hardcoded
// config/models.yaml path to a caller-supplied path plus named
// profile selection.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/models"
)

// PolicyFile is the on-disk shape of config/policy.yaml: a provider
// routing Config plus a named set of PolicyConfig profiles.
type PolicyFile struct {
	Providers agent.Config                   `yaml:"providers"`
	Profiles  map[string]models.PolicyConfig `yaml:"profiles"`
}

// QualityFirst and CostOptimized are the two named presets spec.md §9
// requires as distinct, partly contradictory configurations of the
// same engine, used as defaults when config/policy.yaml omits a
// profile the caller asks for.
var QualityFirst = models.PolicyConfig{
	Name:                   "quality-first",
	Checkpoints:            []int{3, 6, 9, 12},
	TopKForSynthesis:       5,
	MinSynthesisConfidence: 0.5,
	MinIterations:          10,
	MaxIterations:          15,
	ConfidenceStop:         0.90,
	RefinementThreshold:    0.7,
	MinDelta:               0.03,
	ParallelResearch:       3,
	HoldBandPct:            0.05,
	WorkerTimeoutSeconds:   120,
}

var CostOptimized = models.PolicyConfig{
	Name:                   "cost-optimized",
	Checkpoints:            []int{5, 10},
	TopKForSynthesis:       2,
	MinSynthesisConfidence: 0.6,
	MinIterations:          3,
	MaxIterations:          8,
	ConfidenceStop:         0.85,
	RefinementThreshold:    0.7,
	MinDelta:               0.03,
	ParallelResearch:       5,
	HoldBandPct:            0.05,
	WorkerTimeoutSeconds:   60,
}

func builtinProfiles() map[string]models.PolicyConfig {
	return map[string]models.PolicyConfig{
		"quality-first":  QualityFirst,
		"cost-optimized": CostOptimized,
	}
}

// Load reads .env from envPath (a missing file is not an error; the
// process environment may already carry the keys), then reads and
// parses the YAML policy file at policyPath, returning the provider
// routing Config and the resolved PolicyConfig for the named profile.
// A policyPath of "" or a profile absent from the file falls back to
// the builtin quality-first/cost-optimized presets.
func Load(envPath, policyPath, profile string) (agent.Config, models.PolicyConfig, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return agent.Config{}, models.PolicyConfig{}, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}

	var file PolicyFile
	if policyPath != "" {
		data, err := os.ReadFile(policyPath)
		if err != nil && !os.IsNotExist(err) {
			return agent.Config{}, models.PolicyConfig{}, fmt.Errorf("read policy file %s: %w", policyPath, err)
		}
		if err == nil {
			if uerr := yaml.Unmarshal(data, &file); uerr != nil {
				return agent.Config{}, models.PolicyConfig{}, fmt.Errorf("parse policy file %s: %w", policyPath, uerr)
			}
		}
	}

	policy, ok := file.Profiles[profile]
	if !ok {
		policy, ok = builtinProfiles()[profile]
	}
	if !ok {
		return agent.Config{}, models.PolicyConfig{}, fmt.Errorf("unknown policy profile %q", profile)
	}

	return file.Providers, policy, nil
}

// APIKey reads a named environment variable, returning ok=false rather
// than an error: the caller decides whether an absent key is fatal
// (a real LLM provider is selected) or irrelevant (no provider needs it).
func APIKey(name string) (string, bool) {
	v := os.Getenv(name)
	return v, v != ""
}

// WorkDir resolves the work directory: ANALYSIS_WORK_DIR if set, else
// "./data" (spec.md §6.2/§6.3).
func WorkDir() string {
	if v := os.Getenv("ANALYSIS_WORK_DIR"); v != "" {
		return v
	}
	return "./data"
}
