// Command toolserver runs the Valuation Tool Server (spec.md §4.2) as
// a standalone MCP stdio server, so worker agents (or any MCP client)
// can call calculate_dcf, get_series, and sensitivity_analysis out of
// process. Grounded on
// quanticsoul4772-unified-thinking/cmd/server/main.go.
package main

import (
	"context"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"equity_orchestrator/internal/core/tools"
)

func main() {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "equity-valuation-tool-server",
		Version: "1.0.0",
	}, nil)

	srv := tools.NewValuationServer()
	srv.RegisterTools(mcpServer)
	log.Println("Registered tools: calculate_dcf, get_series, sensitivity_analysis")

	transport := &mcp.StdioTransport{}
	ctx := context.Background()
	log.Println("Starting valuation tool server...")
	if err := mcpServer.Run(ctx, transport); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
