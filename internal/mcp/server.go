// Package mcp exposes the AdGuard DNS operations to an agent as MCP tools
// served over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"dnsmedic/internal/adguard"
)

const (
	ToolQueryLog = "get-adguard-query-log"
	ToolUnblock  = "unblock-adguard-domain"
)

// AdGuard is the client surface the tools call into
type AdGuard interface {
	FetchBlocked(ctx context.Context, minutes int) (*adguard.BlockedResult, error)
	Unblock(ctx context.Context, domains []string) (*adguard.UnblockResult, error)
}

// Server wraps the MCP SDK server with the AdGuard DNS tools.
type Server struct {
	mcpServer *mcpsdk.Server
	client    AdGuard
}

// New creates an MCP server with both tools registered.
func New(client AdGuard, version string) *Server {
	s := &Server{client: client}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "dnsmedic",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// MCPServer returns the underlying SDK server, e.g. to connect other transports.
func (s *Server) MCPServer() *mcpsdk.Server {
	return s.mcpServer
}

func boolPtr(b bool) *bool { return &b }

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name: ToolQueryLog,
		Description: "List DNS queries blocked by AdGuard DNS in the last N minutes (default 10). " +
			"Returns the blocked domains with the rule that blocked them and the number of queries inspected. " +
			"Only the most recent page of the query log is read; truncated=true means older entries in the window were not inspected.",
		Annotations: &mcpsdk.ToolAnnotations{
			Title:         "Blocked DNS queries",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(true),
		},
	}, s.handleQueryLog)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name: ToolUnblock,
		Description: "Whitelist domains in AdGuard DNS by adding @@||domain^ exception rules to the server's user rules. " +
			"Domains that are already whitelisted are reported and left unchanged; nothing is written when all are present.",
		Annotations: &mcpsdk.ToolAnnotations{
			Title:           "Unblock domains",
			DestructiveHint: boolPtr(true),
			IdempotentHint:  true,
			OpenWorldHint:   boolPtr(true),
		},
	}, s.handleUnblock)
}
