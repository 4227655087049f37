// Package mcptools exposes the orchestrator as Model Context Protocol tools.
package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer creates an MCP server with the run_agents and list_agents
// tools registered.
func NewMCPServer(svc *Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "vidyavahini",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_agents",
		Description: "Run the VidyaVāhinī education agents (lesson planner, quiz, story teller, ...) the caller's role and level allow, and return one result per agent.",
	}, svc.RunAgents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_agents",
		Description: "List the agents a teacher or student at the given level may run, with their declared inputs and outputs.",
	}, svc.ListAgents)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
