// Command analyze is the external collaborator contract of spec.md
// §6.1: one subcommand, `analyze <TICKER>`, that drives one Analysis
// end to end and emits a FinalReport. Grounded on
// dyike-CortexGo/internal/cli/commands.go's cobra root+subcommand
// layout and internal/cli/ui.go's lipgloss phase banners, wired to
// this repo's Orchestrator instead of CortexGo's trading pipeline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"equity_orchestrator/internal/config"
	"equity_orchestrator/internal/core/agent"
	"equity_orchestrator/internal/core/budget"
	"equity_orchestrator/internal/core/memory"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/orchestrator"
	"equity_orchestrator/internal/core/store"
	"equity_orchestrator/internal/core/trace"
)

// Exit codes, spec.md §6.1.
const (
	exitSuccess        = 0
	exitGradedBelowMin = 1
	exitInvalidArgs    = 2
	exitDataFetch      = 3
	exitInternal       = 4
)

var phaseStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#3B82F6")).
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#3B82F6")).
	Padding(0, 1)

var failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
var okStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		iterations       int
		confidence       float64
		format           string
		output           string
		parallelResearch bool
		profile          string
		policyPath       string
		envPath          string
		resumeID         string
		serveTrace       string
	)

	code := exitSuccess
	cmd := &cobra.Command{
		Use:   "analyze <TICKER>",
		Short: "Run an end-to-end equity research analysis for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			c, err := runAnalyze(cmd.Context(), cmdArgs[0], analyzeOptions{
				iterations:       iterations,
				confidence:       confidence,
				format:           format,
				output:           output,
				parallelResearch: parallelResearch,
				profile:          profile,
				policyPath:       policyPath,
				envPath:          envPath,
				resumeID:         resumeID,
				serveTrace:       serveTrace,
			})
			code = c
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 0, "override max_iterations (must be >= 1)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "override confidence_stop, in (0,1]")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, markdown, html")
	cmd.Flags().StringVar(&output, "output", "", "file destination (stdout if absent)")
	cmd.Flags().BoolVar(&parallelResearch, "parallel-research", true, "toggle K=parallel_research vs K=1")
	cmd.Flags().StringVar(&profile, "profile", "quality-first", "policy profile: quality-first or cost-optimized")
	cmd.Flags().StringVar(&policyPath, "policy", "config/policy.yaml", "path to the policy YAML file")
	cmd.Flags().StringVar(&envPath, "env", ".env", "path to the .env file")
	cmd.Flags().StringVar(&resumeID, "resume", "", "analysis_id of a prior run to resume from its highest-persisted iteration")
	cmd.Flags().StringVar(&serveTrace, "serve-trace", "", "if set, also serve GET /analyses/{id}/trace/stream on this address (e.g. :8090)")
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("invalid arguments: "+err.Error()))
		return exitInvalidArgs
	}
	return code
}

type analyzeOptions struct {
	iterations       int
	confidence       float64
	format           string
	output           string
	parallelResearch bool
	profile          string
	policyPath       string
	envPath          string
	resumeID         string
	serveTrace       string
}

func runAnalyze(ctx context.Context, ticker string, opts analyzeOptions) int {
	switch opts.format {
	case "text", "json", "markdown", "html":
	default:
		fmt.Fprintln(os.Stderr, failStyle.Render(fmt.Sprintf("invalid --format %q", opts.format)))
		return exitInvalidArgs
	}
	if opts.confidence != 0 && (opts.confidence <= 0 || opts.confidence > 1) {
		fmt.Fprintln(os.Stderr, failStyle.Render("--confidence must be in (0,1]"))
		return exitInvalidArgs
	}
	if opts.iterations != 0 && opts.iterations < 1 {
		fmt.Fprintln(os.Stderr, failStyle.Render("--iterations must be >= 1"))
		return exitInvalidArgs
	}

	providerCfg, policy, err := config.Load(opts.envPath, opts.policyPath, opts.profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("config: "+err.Error()))
		return exitInvalidArgs
	}
	if opts.iterations > 0 {
		policy.MaxIterations = opts.iterations
	}
	if opts.confidence > 0 {
		policy.ConfidenceStop = opts.confidence
	}
	if !opts.parallelResearch {
		policy.ParallelResearch = 1
	}

	workDir := config.WorkDir()
	st := store.NewAnalysisStore(workDir)

	var (
		a          *models.Analysis
		analysisID string
	)
	if opts.resumeID != "" {
		analysisID = opts.resumeID
		loaded, err := st.LoadAnalysisState(analysisID)
		if err != nil {
			fmt.Fprintln(os.Stderr, failStyle.Render("resume: "+err.Error()))
			return exitInvalidArgs
		}
		highest, err := st.HighestPersistedIteration(analysisID)
		if err != nil {
			fmt.Fprintln(os.Stderr, failStyle.Render("resume: "+err.Error()))
			return exitInternal
		}
		a = loaded
		a.Config = policy
		a.Status = models.StatusRunning
		fmt.Println(phaseStyle.Render(fmt.Sprintf(
			"resuming %s (profile=%s, analysis_id=%s, from iteration %d)",
			a.Ticker, opts.profile, analysisID, highest+1)))
	} else {
		analysisID = uuid.NewString()
		a = &models.Analysis{
			AnalysisID:  analysisID,
			Ticker:      ticker,
			CompanyName: ticker,
			Status:      models.StatusRunning,
			Config:      policy,
			Hypotheses:  map[string]*models.Hypothesis{},
			Evidence:    map[string]*models.EvidenceBundle{},
			Synthesis:   map[string][]models.SynthesisRecord{},
		}
		fmt.Println(phaseStyle.Render(fmt.Sprintf("analyzing %s (profile=%s, analysis_id=%s)", ticker, opts.profile, analysisID)))
	}

	tr, err := trace.NewRecorder(workDir, analysisID)
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("trace recorder: "+err.Error()))
		return exitInternal
	}

	if opts.serveTrace != "" {
		serveTraceStream(opts.serveTrace, analysisID, tr)
	}

	mgr := agent.NewManager(providerCfg)
	breakers := agent.NewBreakers()
	workers := orchestrator.Workers{
		Hypothesis: &agent.HypothesisGenerator{Manager: mgr, Breakers: breakers},
		Research:   &agent.DeepResearchAgent{Manager: mgr, Breakers: breakers},
		Synthesis:  &agent.DialecticalSynthesisAgent{Manager: mgr, Breakers: breakers},
		Narrative:  &agent.NarrativeBuilder{Manager: mgr, Breakers: breakers},
		Evaluator:  &agent.Evaluator{Manager: mgr, Breakers: breakers},
	}

	// No Embedder implementation is wired into this build (the example
	// pack ships no hosted embeddings client), so the CLI runs against
	// NullRetriever: memory.Vault remains available for out-of-band
	// population tooling once a concrete Embedder exists.
	var retriever memory.Retriever = memory.NullRetriever{}

	gov := budget.NewGovernor(0)
	o := orchestrator.New(st, tr, workers, retriever, gov, orchestrator.NullSourceProvider{})

	result, err := o.Run(ctx, a)
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("analysis failed: "+err.Error()))
		return exitInternal
	}
	if result.Status == models.StatusFailed {
		fmt.Fprintln(os.Stderr, failStyle.Render("analysis failed: "+result.FailureReason))
		return exitDataFetch
	}

	if err := emit(result, opts); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("emit report: "+err.Error()))
		return exitInternal
	}

	if result.FailureReason != "" {
		fmt.Println(failStyle.Render("graded below minimum: " + result.FailureReason))
		return exitGradedBelowMin
	}
	fmt.Println(okStyle.Render("analysis complete"))
	return exitSuccess
}

func emit(a *models.Analysis, opts analyzeOptions) error {
	var rendered string
	switch opts.format {
	case "json":
		data, err := json.MarshalIndent(a.Report, "", "  ")
		if err != nil {
			return err
		}
		rendered = string(data)
	case "markdown":
		rendered = renderMarkdown(a.Report)
	case "html":
		rendered = renderHTML(a.Report)
	default:
		rendered = renderText(a.Report)
	}

	if opts.output == "" {
		fmt.Println(rendered)
		return nil
	}
	return os.WriteFile(opts.output, []byte(rendered), 0o644)
}

// serveTraceStream mounts the Reasoning Trace's websocket live-tail
// endpoint (spec.md §6.4, "GET /analyses/{id}/trace/stream") on addr
// and starts it in the background. It runs for the lifetime of the
// process; the analysis itself proceeds on the calling goroutine.
func serveTraceStream(addr, analysisID string, tr *trace.Recorder) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /analyses/{id}/trace/stream", func(w http.ResponseWriter, req *http.Request) {
		if req.PathValue("id") != analysisID {
			http.Error(w, "unknown analysis_id", http.StatusNotFound)
			return
		}
		tr.ServeHTTP(w, req)
	})

	fmt.Println(phaseStyle.Render(fmt.Sprintf("trace stream at ws://%s/analyses/%s/trace/stream", addr, analysisID)))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("trace stream server stopped: %v", err)
		}
	}()
}

func renderText(r *models.FinalReport) string {
	return fmt.Sprintf(
		"EXECUTIVE SUMMARY\n%s\n\nINVESTMENT THESIS\n%s\n\nVALUATION\nfair_value=%.2f current_price=%.2f methodology=%s\n\nRECOMMENDATION\n%s (%s conviction, %s)\n",
		r.ExecutiveSummary, r.InvestmentThesis,
		r.Valuation.FairValue, r.Valuation.CurrentPrice, r.Valuation.Methodology,
		r.Recommendation.Action, r.Recommendation.Conviction, r.Recommendation.Timeframe,
	)
}

func renderMarkdown(r *models.FinalReport) string {
	return fmt.Sprintf(
		"# Equity Research Report\n\n## Executive Summary\n%s\n\n## Investment Thesis\n%s\n\n## Financial Analysis\n%s\n\n## Valuation\n- Fair value: %.2f\n- Current price: %.2f\n- Methodology: %s\n\n## Bull / Bear\n%s\n\n## Risks\n%s\n\n## Recommendation\n**%s** (%s conviction, %s)\n",
		r.ExecutiveSummary, r.InvestmentThesis, r.FinancialAnalysis,
		r.Valuation.FairValue, r.Valuation.CurrentPrice, r.Valuation.Methodology,
		r.BullBearAnalysis, r.Risks,
		r.Recommendation.Action, r.Recommendation.Conviction, r.Recommendation.Timeframe,
	)
}

func renderHTML(r *models.FinalReport) string {
	return fmt.Sprintf(
		"<html><body><h1>Equity Research Report</h1><h2>Executive Summary</h2><p>%s</p><h2>Investment Thesis</h2><p>%s</p><h2>Valuation</h2><p>fair_value=%.2f current_price=%.2f methodology=%s</p><h2>Recommendation</h2><p>%s (%s conviction, %s)</p></body></html>",
		r.ExecutiveSummary, r.InvestmentThesis,
		r.Valuation.FairValue, r.Valuation.CurrentPrice, r.Valuation.Methodology,
		r.Recommendation.Action, r.Recommendation.Conviction, r.Recommendation.Timeframe,
	)
}
