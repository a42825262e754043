package bridge

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/example/loom/internal/version"
)

// NewServer assembles the MCP stdio server with every daemon tool
// registered. The caller owns the transport (typically server.ServeStdio).
func NewServer(client *Client) *server.MCPServer {
	s := server.NewMCPServer(
		"loom",
		version.String(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	saveMemory := NewSaveMemoryTool(client)
	s.AddTool(saveMemory.Definition(), saveMemory.Handle)

	retrieve := NewRetrieveTool(client)
	s.AddTool(retrieve.Definition(), retrieve.Handle)

	specStatus := NewSpecStatusTool(client)
	s.AddTool(specStatus.Definition(), specStatus.Handle)

	listProposals := NewListProposalsTool(client)
	s.AddTool(listProposals.Definition(), listProposals.Handle)

	decideProposal := NewDecideProposalTool(client)
	s.AddTool(decideProposal.Definition(), decideProposal.Handle)

	return s
}

// Serve runs the bridge over stdio until the transport closes.
func Serve(client *Client) error {
	return server.ServeStdio(NewServer(client))
}
