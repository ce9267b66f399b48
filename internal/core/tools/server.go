// Package tools exposes the Valuation Kernel (internal/core/valuation)
// as three callable MCP tools: calculate_dcf, get_series, and
// sensitivity_analysis (spec.md §4.2). Grounded on
// quanticsoul4772-unified-thinking/internal/server/server.go's
// mcp.AddTool registration idiom and handler signature shape.
package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"equity_orchestrator/internal/core/errs"
	"equity_orchestrator/internal/core/models"
	"equity_orchestrator/internal/core/valuation"
)

// ValuationServer implements the three tools on top of the pure
// valuation kernel. The server is stateless: no request carries
// implicit context (spec.md §6.4).
type ValuationServer struct{}

func NewValuationServer() *ValuationServer {
	return &ValuationServer{}
}

// RegisterTools wires calculate_dcf, get_series, and sensitivity_analysis
// onto an MCP server, matching the teacher pack's registration idiom.
func (s *ValuationServer) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "calculate_dcf",
		Description: "Compute a deterministic DCF value-per-share from structured valuation inputs",
	}, s.handleCalculateDCF)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_series",
		Description: "Return the year-by-year revenue/EBIT/NOPAT/FCFF/discount-factor arrays backing a DCF valuation",
	}, s.handleGetSeries)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "sensitivity_analysis",
		Description: "Scan value-per-share sensitivity to stable growth, stable margin, and WACC",
	}, s.handleSensitivityAnalysis)
}

// CalculateDCFRequest is the input shape for calculate_dcf.
type CalculateDCFRequest struct {
	Inputs models.ValuationInputs `json:"inputs"`
}

// ToolError is the {error:{kind,message}} shape of spec.md §4.2/§6.4.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CalculateDCFResponse is the output shape for calculate_dcf.
type CalculateDCFResponse struct {
	ValuePerShare float64                `json:"value_per_share"`
	EquityValue   float64                `json:"equity_value"`
	PVExplicit    float64                `json:"pv_explicit"`
	PVTerminal    float64                `json:"pv_terminal"`
	Metadata      map[string]interface{} `json:"metadata"`
	Error         *ToolError             `json:"error,omitempty"`
}

func (s *ValuationServer) handleCalculateDCF(ctx context.Context, req *mcp.CallToolRequest, input CalculateDCFRequest) (*mcp.CallToolResult, *CalculateDCFResponse, error) {
	result, err := valuation.CalculateDCF(input.Inputs)
	if err != nil {
		return nil, &CalculateDCFResponse{Error: toToolError(err)}, nil
	}
	return nil, &CalculateDCFResponse{
		ValuePerShare: result.ValuePerShare,
		EquityValue:   result.EquityValue,
		PVExplicit:    result.PVExplicit,
		PVTerminal:    result.PVTerminal,
		Metadata: map[string]interface{}{
			"horizon_years": len(input.Inputs.Growth),
		},
	}, nil
}

// GetSeriesRequest is the input shape for get_series.
type GetSeriesRequest struct {
	Inputs models.ValuationInputs `json:"inputs"`
}

// GetSeriesResponse is the output shape for get_series. The consumer
// computes derived aggregates only from these returned arrays
// (spec.md §4.2).
type GetSeriesResponse struct {
	Years           []int      `json:"years"`
	Revenue         []float64  `json:"revenue"`
	EBIT            []float64  `json:"ebit"`
	NOPAT           []float64  `json:"nopat"`
	Reinvestment    []float64  `json:"reinvestment"`
	FCFF            []float64  `json:"fcff"`
	DiscountFactors []float64  `json:"discount_factors"`
	PVOperating     float64    `json:"pv_operating"`
	Error           *ToolError `json:"error,omitempty"`
}

func (s *ValuationServer) handleGetSeries(ctx context.Context, req *mcp.CallToolRequest, input GetSeriesRequest) (*mcp.CallToolResult, *GetSeriesResponse, error) {
	result, err := valuation.CalculateDCF(input.Inputs)
	if err != nil {
		return nil, &GetSeriesResponse{Error: toToolError(err)}, nil
	}
	return nil, &GetSeriesResponse{
		Years:           result.Years,
		Revenue:         result.Revenue,
		EBIT:            result.EBIT,
		NOPAT:           result.NOPAT,
		Reinvestment:    result.Reinvestment,
		FCFF:            result.FCFF,
		DiscountFactors: result.DiscountFactors,
		PVOperating:     valuation.PVOperatingFromSeries(result.FCFF, result.DiscountFactors),
	}, nil
}

// SensitivityAnalysisRequest is the input shape for sensitivity_analysis.
type SensitivityAnalysisRequest struct {
	Inputs models.ValuationInputs `json:"inputs"`
	Grid   valuation.Grid         `json:"grid"`
}

// SensitivityAnalysisResponse is the output shape for sensitivity_analysis.
type SensitivityAnalysisResponse struct {
	BaseVPS       float64                       `json:"base_vps"`
	Sensitivities map[string][]valuation.ScanPoint `json:"sensitivities"`
	Error         *ToolError                    `json:"error,omitempty"`
}

func (s *ValuationServer) handleSensitivityAnalysis(ctx context.Context, req *mcp.CallToolRequest, input SensitivityAnalysisRequest) (*mcp.CallToolResult, *SensitivityAnalysisResponse, error) {
	result, err := valuation.RunSensitivity(input.Inputs, input.Grid)
	if err != nil {
		return nil, &SensitivityAnalysisResponse{Error: toToolError(err)}, nil
	}
	return nil, &SensitivityAnalysisResponse{
		BaseVPS: result.BaseVPS,
		Sensitivities: map[string][]valuation.ScanPoint{
			"stable_growth": result.StableGrowth,
			"stable_margin": result.StableMargin,
			"wacc":          result.WACC,
		},
	}, nil
}

func toToolError(err error) *ToolError {
	kind, ok := errs.KindOf(err)
	if !ok {
		kind = errs.Fatal
	}
	return &ToolError{Kind: string(kind), Message: err.Error()}
}
