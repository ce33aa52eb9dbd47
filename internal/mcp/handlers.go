package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docubot/internal/docubot"
	"github.com/mike-a-ellis/docubot/internal/document"
)

// makeIngestHandler creates the ingest_document tool handler.
// The file is read from the server's filesystem and goes through the same
// save, load, split and insert path as an HTTP upload.
func makeIngestHandler(bot Chatbot) func(
	context.Context, *mcp.CallToolRequest, IngestDocumentInput,
) (*mcp.CallToolResult, IngestDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (
		*mcp.CallToolResult, IngestDocumentOutput, error,
	) {
		if input.Path == "" {
			return nil, IngestDocumentOutput{}, errors.New("path is required")
		}
		name := filepath.Base(input.Path)
		if !document.IsSupported(name) {
			return nil, IngestDocumentOutput{}, errors.New(docubot.MsgUnsupported)
		}

		f, err := os.Open(input.Path)
		if err != nil {
			return nil, IngestDocumentOutput{}, fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()

		res, err := bot.Ingest(ctx, name, f)
		if err != nil {
			return nil, IngestDocumentOutput{}, errors.New(docubot.UserMessage(err))
		}

		return nil, IngestDocumentOutput{
			SavedPath:  res.Path,
			Documents:  res.Documents,
			Chunks:     res.Chunks,
			DurationMS: res.Duration.Milliseconds(),
		}, nil
	}
}

// makeAskHandler creates the ask_document tool handler.
func makeAskHandler(bot Chatbot) func(
	context.Context, *mcp.CallToolRequest, AskDocumentInput,
) (*mcp.CallToolResult, AskDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentInput) (
		*mcp.CallToolResult, AskDocumentOutput, error,
	) {
		if input.Query == "" {
			return nil, AskDocumentOutput{}, errors.New("query is required")
		}

		answer, err := bot.Ask(ctx, input.Query)
		if err != nil {
			return nil, AskDocumentOutput{}, errors.New(docubot.UserMessage(err))
		}
		return nil, AskDocumentOutput{Result: answer}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(bot Chatbot) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		st, err := bot.Status(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("index_error: %w", err)
		}
		return nil, StatusOutput{Index: st.Name, State: st.State.String()}, nil
	}
}
