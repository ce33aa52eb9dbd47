package mcp

import (
	"context"
	"io"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docubot/internal/docubot"
	"github.com/mike-a-ellis/docubot/internal/indexer"
)

// Chatbot is the part of the chatbot service the tools call.
type Chatbot interface {
	Ingest(ctx context.Context, name string, r io.Reader) (*indexer.IngestResult, error)
	Ask(ctx context.Context, query string) (string, error)
	Status(ctx context.Context) (docubot.IndexStatus, error)
}

// Server wraps the MCP server with its chatbot.
type Server struct {
	server *mcp.Server
	bot    Chatbot
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(bot Chatbot, version string) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docubot",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Index a local .txt, .doc, .pdf or .csv file so questions can be asked about it. Replaces the previously indexed document.",
	}, makeIngestHandler(bot))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question using only the most relevant passage of the indexed document.",
	}, makeAskHandler(bot))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report whether the vector index exists and holds a document.",
	}, makeStatusHandler(bot))

	return &Server{server: server, bot: bot}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
